package authz

import (
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/catalog"
)

// CheckResult is the advisory outcome of a permission check
type CheckResult int

const (
	// NotReady means permissions have not been loaded yet; callers should
	// wait rather than treat the module as forbidden
	NotReady CheckResult = iota
	Denied
	Allowed
)

func (r CheckResult) String() string {
	switch r {
	case Allowed:
		return "allowed"
	case Denied:
		return "denied"
	}
	return "not_ready"
}

// PermissionContext is the advisory mirror a client session uses to shape its
// UI. It is an immutable value owned by the session: login, logout and role
// changes replace it with a new one. It is never an enforcement point.
type PermissionContext struct {
	ready     bool
	subject   Subject
	evaluator *Evaluator
}

// Empty returns a context that has not been loaded
func Empty() PermissionContext {
	return PermissionContext{}
}

// NewPermissionContext returns a ready context for s. It answers exactly as
// the server-side evaluator does. Without an evaluator the context stays
// not ready.
func NewPermissionContext(evaluator *Evaluator, s Subject) PermissionContext {
	if evaluator == nil {
		return Empty()
	}
	return PermissionContext{ready: true, subject: s, evaluator: evaluator}
}

// Ready reports whether permissions have been loaded
func (pc PermissionContext) Ready() bool {
	return pc.ready
}

// Subject returns the caller the context was built for
func (pc PermissionContext) Subject() Subject {
	return pc.subject
}

// Check evaluates an operation or action alias on module
func (pc PermissionContext) Check(module, action string) CheckResult {
	if !pc.ready {
		return NotReady
	}
	op, err := catalog.ParseOperation(action)
	if err != nil {
		return Denied
	}
	if pc.evaluator.HasPermission(pc.subject, module, op) {
		return Allowed
	}
	return Denied
}

// HasPermission is false until the context is ready
func (pc PermissionContext) HasPermission(module string, op catalog.Operation) bool {
	return pc.ready && pc.evaluator.HasPermission(pc.subject, module, op)
}

// HasAny is false until the context is ready
func (pc PermissionContext) HasAny(module string, ops ...catalog.Operation) bool {
	return pc.ready && pc.evaluator.HasAny(pc.subject, module, ops...)
}

// HasAll is false until the context is ready
func (pc PermissionContext) HasAll(module string, ops ...catalog.Operation) bool {
	return pc.ready && pc.evaluator.HasAll(pc.subject, module, ops...)
}

// CanAccessModule is false until the context is ready
func (pc PermissionContext) CanAccessModule(module string) bool {
	return pc.ready && pc.evaluator.CanAccessModule(pc.subject, module)
}

// CanPerformAction accepts the client action vocabulary (read, add, update, remove)
func (pc PermissionContext) CanPerformAction(module, action string) bool {
	return pc.Check(module, action) == Allowed
}

// AccessibleModules lists the catalog modules the caller may view, in catalog order
func (pc PermissionContext) AccessibleModules() []catalog.Module {
	if !pc.ready || pc.evaluator.Catalog() == nil {
		return nil
	}
	var out []catalog.Module
	for _, m := range pc.evaluator.Catalog().Modules() {
		if pc.CanAccessModule(m.ID) {
			out = append(out, m)
		}
	}
	return out
}

// ModuleOperations lists what the caller may do on module
func (pc PermissionContext) ModuleOperations(module string) []catalog.Operation {
	if !pc.ready {
		return nil
	}
	var out []catalog.Operation
	for _, op := range catalog.Operations {
		if pc.HasPermission(module, op) {
			out = append(out, op)
		}
	}
	return out
}
