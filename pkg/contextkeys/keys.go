// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This keeps the set of request-scoped values discoverable in one place.
//
// USAGE PATTERN:
//
//	import "github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/contextkeys"
//	ctx = contextkeys.WithIdentity(ctx, identity)
//	identity, _ := ctx.Value(contextkeys.IdentityKey).(*auth.Identity)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// IdentityKey contains *auth.Identity
	// Set by: middleware.AuthMiddleware (pkg/middleware/auth.go)
	// Required by: tenancy.Guard, authz.Enforcer, audit recorder
	// Type: *auth.Identity
	IdentityKey Key = "identity"

	// ScopeKey contains tenancy.Scope
	// Set by: tenancy.Guard (pkg/tenancy/guard.go)
	// Required by: every tenant-scoped store call made from a handler
	// Type: tenancy.Scope
	ScopeKey Key = "tenant_scope"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, audit trail
	// Type: string
	RequestIDKey Key = "request_id"

	// LoggerKey contains *observability.Logger
	// Set by: httputil.LoggingMiddleware
	// Type: *observability.Logger
	LoggerKey Key = "logger"

	// RequestMetaKey contains audit.RequestMeta
	// Set by: audit.Middleware (pkg/audit/middleware.go)
	// Used by: audit recorder to capture ip and user agent
	// Type: audit.RequestMeta
	RequestMetaKey Key = "audit_request_meta"

	// ClientIPKey contains the resolved client address as a string
	// Set by: middleware.ClientIPResolver.Middleware
	// Used by: audit request metadata, rate limiting
	// Type: string
	ClientIPKey Key = "client_ip"

	// PermissionsKey contains authz.Subject for the current caller
	// Set by: authz.Enforcer once resolved, so later checks in the same request reuse it
	// Type: authz.Subject
	PermissionsKey Key = "permissions"
)

// WithIdentity adds the authenticated caller to the context
func WithIdentity(ctx context.Context, identity interface{}) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// WithScope adds the tenant scope to the context
func WithScope(ctx context.Context, scope interface{}) context.Context {
	return context.WithValue(ctx, ScopeKey, scope)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// WithRequestMeta adds audit request metadata to the context
func WithRequestMeta(ctx context.Context, meta interface{}) context.Context {
	return context.WithValue(ctx, RequestMetaKey, meta)
}

// WithPermissions adds the resolved permission set to the context
func WithPermissions(ctx context.Context, perms interface{}) context.Context {
	return context.WithValue(ctx, PermissionsKey, perms)
}

// WithClientIP adds the resolved client address to the context
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ClientIPKey, ip)
}

// GetClientIP retrieves the resolved client address from context
func GetClientIP(ctx context.Context) (string, bool) {
	ip, ok := ctx.Value(ClientIPKey).(string)
	return ip, ok
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}
