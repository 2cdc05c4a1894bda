// Package rbac manages a tenant's roles and the module grants attached to them.
//
// # Roles
//
// A role belongs to one tenant and carries a permission map from catalog
// module ids to a set of the four operations (view, create, edit, delete).
// Every new tenant receives copies of the built-in roles:
//
//	Super Admin  every operation on every module
//	Manager      most modules, no deletes
//	Employee     day-to-day modules, view and create
//	Viewer       view only
//
// Built-in roles may be edited but not deleted. Custom roles are created by
// tenant administrators; a custom role created without permissions grants
// nothing.
//
// Role names are unique per tenant, compared case-insensitively.
//
// # Editing grants
//
// Grants change in three ways, each in its own transaction:
//
//	SyncPermissions       replace the whole map
//	AddPermissionType     grant one operation on one module
//	RemovePermissionType  revoke one operation on one module
//
// Adding an operation twice, or syncing the same map twice, leaves the role
// as a single application would. After any change the handlers invalidate
// the role in the authz resolver so the next request sees the new grants.
//
// # Deleting
//
// A role that still has users can only be deleted with a reassignment
// target of the same tenant; the users move in the same transaction.
// BulkDeleteRoles applies the same rules per role and reports each failure
// against its role id.
//
// # Users
//
// Users are never deleted. SetUserStatus moves a user between active and
// inactive; an inactive user's sessions are dropped and its tokens stop
// authenticating.
//
// # HTTP
//
// Handlers exposes the role API guarded by the "roles" module:
//
//	GET    /roles                                         view
//	POST   /roles                                         create
//	DELETE /roles                                         delete (bulk)
//	GET    /roles/{id}                                    view
//	PUT    /roles/{id}                                    edit
//	DELETE /roles/{id}?reassign_to=N                      delete
//	PUT    /roles/{id}/permissions                        edit
//	POST   /roles/{id}/permissions/{module}/{operation}   edit
//	DELETE /roles/{id}/permissions/{module}/{operation}   edit
//	GET    /users                                         users: view
//	GET    /users/{id}                                    users: view
//	PUT    /users/{id}/status                             users: edit
//	PUT    /users/{id}/role                               users: edit
//	GET    /user/permissions                              any authenticated caller
//
// Every change is recorded in the audit log.
package rbac
