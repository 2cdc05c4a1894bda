package authz

import (
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/catalog"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/observability"
)

// Decision reasons
const (
	ReasonGranted          = "granted"
	ReasonNotGranted       = "not_granted"
	ReasonNoTenant         = "no_tenant"
	ReasonNoRole           = "no_role"
	ReasonUnknownModule    = "unknown_module"
	ReasonInvalidOperation = "invalid_operation"
)

// Subject is the caller being evaluated
type Subject struct {
	UserID      int64
	TenantID    int64
	RoleID      int64
	Permissions PermissionSet
}

// Decision is the outcome of one evaluation
type Decision struct {
	Allowed   bool              `json:"allowed"`
	Module    string            `json:"module"`
	Operation catalog.Operation `json:"operation"`
	Reason    string            `json:"reason"`
}

// Evaluator is the single decision function behind server enforcement and
// the advisory client mirror. It holds no mutable state.
type Evaluator struct {
	catalog *catalog.Catalog
	metrics *observability.Metrics
}

// NewEvaluator creates an evaluator over c. metrics may be nil.
func NewEvaluator(c *catalog.Catalog, metrics *observability.Metrics) *Evaluator {
	return &Evaluator{catalog: c, metrics: metrics}
}

// Catalog returns the catalog module ids are checked against
func (e *Evaluator) Catalog() *catalog.Catalog {
	return e.catalog
}

// Decide evaluates op on module for s. Anything short of an explicit grant
// is a denial.
func (e *Evaluator) Decide(s Subject, module string, op catalog.Operation) Decision {
	d := Decision{Module: module, Operation: op, Reason: e.reason(s, module, op)}
	d.Allowed = d.Reason == ReasonGranted
	return d
}

func (e *Evaluator) reason(s Subject, module string, op catalog.Operation) string {
	switch {
	case s.TenantID <= 0:
		return ReasonNoTenant
	case s.RoleID <= 0:
		return ReasonNoRole
	case !op.Valid():
		return ReasonInvalidOperation
	case e.catalog != nil && !e.catalog.Has(module):
		return ReasonUnknownModule
	case !HasPermission(s.Permissions, module, op):
		return ReasonNotGranted
	}
	return ReasonGranted
}

// Enforce is Decide plus a decision metric. Server-side guards call this.
func (e *Evaluator) Enforce(s Subject, module string, op catalog.Operation) Decision {
	d := e.Decide(s, module, op)
	result := "allowed"
	if !d.Allowed {
		result = "denied"
	}
	e.metrics.RecordDecision(module, string(op), result)
	return d
}

// HasPermission reports whether s may perform op on module
func (e *Evaluator) HasPermission(s Subject, module string, op catalog.Operation) bool {
	return e.Decide(s, module, op).Allowed
}

// HasAny reports whether s may perform at least one of ops on module
func (e *Evaluator) HasAny(s Subject, module string, ops ...catalog.Operation) bool {
	for _, op := range ops {
		if e.HasPermission(s, module, op) {
			return true
		}
	}
	return false
}

// HasAll reports whether s may perform every one of ops on module
func (e *Evaluator) HasAll(s Subject, module string, ops ...catalog.Operation) bool {
	if len(ops) == 0 {
		return false
	}
	for _, op := range ops {
		if !e.HasPermission(s, module, op) {
			return false
		}
	}
	return true
}

// CanAccessModule reports whether s may view module
func (e *Evaluator) CanAccessModule(s Subject, module string) bool {
	return e.HasPermission(s, module, catalog.OpView)
}
