// Package authz answers "may this caller perform operation X on module Y".
//
// The same Evaluator backs server-side enforcement and the advisory
// PermissionContext handed to clients, so both give identical answers for
// identical input. Every path that is not an explicit grant is a denial: no
// tenant, no role, unknown module, invalid operation or missing entry.
//
//	eval := authz.NewEvaluator(catalog.Default(), metrics)
//	subject, err := resolver.Subject(ctx, identity)
//	if !eval.Enforce(subject, "products", catalog.OpDelete).Allowed {
//		...
//	}
//
// Resolver caches role grants in a per-process LRU and optionally in Redis.
// Invalidate publishes on a channel that every instance's Listen consumes,
// so a role edit is visible cluster-wide without waiting for the TTL.
package authz
