package tenancy

import (
	"context"
	"errors"
	"fmt"

	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/contextkeys"
)

var (
	// ErrTenantRequired is returned when a tenant-scoped operation runs
	// without an established tenant
	ErrTenantRequired = errors.New("tenant required")

	// ErrForbidden is returned when a tenant claim does not match the caller
	ErrForbidden = errors.New("tenant forbidden")
)

// Scope confines data access to a single tenant. It is immutable and its zero
// value is invalid, so a store can never be handed an unscoped query by omission.
type Scope struct {
	tenantID int64
}

// For returns the scope for tenantID
func For(tenantID int64) (Scope, error) {
	if tenantID <= 0 {
		return Scope{}, ErrTenantRequired
	}
	return Scope{tenantID: tenantID}, nil
}

// MustFor is For for trusted ids such as CLI flags already validated by the caller
func MustFor(tenantID int64) Scope {
	s, err := For(tenantID)
	if err != nil {
		panic(fmt.Sprintf("tenancy: invalid tenant id %d", tenantID))
	}
	return s
}

// TenantID returns the scoped tenant
func (s Scope) TenantID() int64 {
	return s.tenantID
}

// Valid reports whether the scope names a tenant
func (s Scope) Valid() bool {
	return s.tenantID > 0
}

// Check returns ErrTenantRequired for the zero scope
func (s Scope) Check() error {
	if !s.Valid() {
		return ErrTenantRequired
	}
	return nil
}

// Filter renders the predicate "column = $argPos" and the argument to bind to it
func (s Scope) Filter(column string, argPos int) (string, int64) {
	return fmt.Sprintf("%s = $%d", column, argPos), s.tenantID
}

func (s Scope) String() string {
	if !s.Valid() {
		return "tenant(none)"
	}
	return fmt.Sprintf("tenant(%d)", s.tenantID)
}

// WithScope attaches s to ctx
func WithScope(ctx context.Context, s Scope) context.Context {
	return contextkeys.WithScope(ctx, s)
}

// FromContext returns the scope installed by the guard, if any
func FromContext(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(contextkeys.ScopeKey).(Scope)
	return s, ok && s.Valid()
}

// Require returns the request scope or ErrTenantRequired
func Require(ctx context.Context) (Scope, error) {
	s, ok := FromContext(ctx)
	if !ok {
		return Scope{}, ErrTenantRequired
	}
	return s, nil
}
