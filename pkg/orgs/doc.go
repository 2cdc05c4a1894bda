// Package orgs is the tenant directory.
//
// A tenant (organization) owns users, roles and activity logs. Its status
// gates API access: only active tenants pass the tenancy guard.
//
//	dir := orgs.NewDirectory(db)
//	guardLookup := orgs.NewCachedDirectory(dir, 1024, 30*time.Second)
package orgs
