// Package tenancy confines every data access to the caller's tenant.
//
// Guard runs after authentication and installs an immutable Scope in the
// request context. Stores take the Scope as an explicit argument and render
// their tenant predicate with Scope.Filter:
//
//	scope, err := tenancy.Require(r.Context())
//	if err != nil {
//		httputil.WriteTenantRequired(w)
//		return
//	}
//	clause, arg := scope.Filter("tenant_id", 1)
//	rows, err := db.QueryContext(ctx, "SELECT id FROM roles WHERE "+clause, arg)
//
// There is no package-level scope; two requests for different tenants share
// nothing but the tenant status cache.
package tenancy
