package authz

import (
	"context"
	"net/http"

	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/auth"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/catalog"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/contextkeys"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/httputil"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/observability"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/tenancy"
)

// DenialRecorder is told about every request the enforcer rejects
type DenialRecorder interface {
	RecordDenial(ctx context.Context, d Decision)
}

// Enforcer gates handlers on module permissions. It is the authoritative
// check; the advisory PermissionContext only mirrors it.
type Enforcer struct {
	resolver  *Resolver
	evaluator *Evaluator
	denials   DenialRecorder
}

// NewEnforcer creates an enforcer. denials may be nil.
func NewEnforcer(resolver *Resolver, evaluator *Evaluator, denials DenialRecorder) *Enforcer {
	return &Enforcer{resolver: resolver, evaluator: evaluator, denials: denials}
}

// Evaluator returns the evaluator decisions are made with
func (e *Enforcer) Evaluator() *Evaluator {
	return e.evaluator
}

// Require returns middleware that lets a request through only if the caller
// may perform op on module
func (e *Enforcer) Require(module string, op catalog.Operation) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r, ok := e.Check(w, r, module, op)
			if !ok {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireFunc is Require for a HandlerFunc
func (e *Enforcer) RequireFunc(module string, op catalog.Operation, fn http.HandlerFunc) http.Handler {
	return e.Require(module, op)(fn)
}

// Check evaluates op on module for the request. On denial it writes the
// response and returns false; on success it returns the request carrying the
// resolved subject for later checks.
func (e *Enforcer) Check(w http.ResponseWriter, r *http.Request, module string, op catalog.Operation) (*http.Request, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthenticated(w, "authentication required")
		return r, false
	}
	if _, err := tenancy.Require(r.Context()); err != nil {
		httputil.WriteTenantRequired(w)
		return r, false
	}

	subject, cached := SubjectFromContext(r.Context())
	if !cached || subject.UserID != identity.UserID {
		var err error
		subject, err = e.resolver.Subject(r.Context(), identity)
		if err != nil {
			observability.FromContext(r.Context()).WithError(err).Error("failed to resolve permissions")
			httputil.WriteServiceUnavailable(w, "permissions unavailable")
			return r, false
		}
		r = r.WithContext(contextkeys.WithPermissions(r.Context(), subject))
	}

	d := e.evaluator.Enforce(subject, module, op)
	if !d.Allowed {
		observability.FromContext(r.Context()).WithFields(map[string]interface{}{
			"module":    module,
			"operation": string(op),
			"reason":    d.Reason,
		}).Info("permission denied")
		if e.denials != nil {
			e.denials.RecordDenial(r.Context(), d)
		}
		httputil.WritePermissionDenied(w, module, string(op))
		return r, false
	}
	return r, true
}

// SubjectFromContext returns the subject resolved earlier in the request
func SubjectFromContext(ctx context.Context) (Subject, bool) {
	s, ok := ctx.Value(contextkeys.PermissionsKey).(Subject)
	return s, ok
}

// CurrentSubject returns the request's subject, resolving it if no check has run yet
func (e *Enforcer) CurrentSubject(r *http.Request) (Subject, error) {
	if s, ok := SubjectFromContext(r.Context()); ok {
		return s, nil
	}
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return Subject{}, nil
	}
	return e.resolver.Subject(r.Context(), identity)
}
