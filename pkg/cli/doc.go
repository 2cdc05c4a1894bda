// Package cli implements the bos-admin command line.
//
// # Commands
//
// migrate: apply pending schema migrations
//
//	bos-admin migrate
//
// create-tenant: create a tenant, seeding the built-in roles unless told not to
//
//	bos-admin create-tenant -name "Acme" -tier pro
//
// list-tenants: print id, status, tier and name of every tenant
//
//	bos-admin list-tenants
//
// seed-roles: create the built-in roles a tenant is missing. Existing roles
// with the same names are left untouched.
//
//	bos-admin seed-roles -tenant 4
//
// issue-token: issue a bearer token for an active user. The token is printed
// once; only its hash is stored.
//
//	bos-admin issue-token -user 5 -ttl 720h
//
// disable-user: deactivate a user of a tenant and drop their sessions. The
// change is recorded in the tenant's activity log.
//
//	bos-admin disable-user -tenant 4 -user 5
//
// Database settings come from the same BOS_* environment variables the
// server reads.
package cli
