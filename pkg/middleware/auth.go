package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/auth"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/httputil"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/observability"
)

// Authenticator resolves a bearer token to the caller
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Identity, error)
}

// AuthMiddleware provides authentication middleware
type AuthMiddleware struct {
	authenticator Authenticator
	optional      bool // If true, allow requests without auth
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(authenticator Authenticator, optional bool) *AuthMiddleware {
	return &AuthMiddleware{authenticator: authenticator, optional: optional}
}

// Handler wraps an HTTP handler with authentication. On success the caller's
// identity is stored in the request context.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthenticated(w, "missing authorization header")
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			httputil.WriteUnauthenticated(w, "invalid authorization header format")
			return
		}

		identity, err := m.authenticator.Authenticate(r.Context(), strings.TrimSpace(token))
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidToken) {
				observability.FromContext(r.Context()).WithError(err).Error("token lookup failed")
			}
			httputil.WriteUnauthenticated(w, "invalid or expired token")
			return
		}

		ctx := auth.WithIdentity(r.Context(), identity)
		ctx = observability.WithLogger(ctx, observability.GetLogger(ctx).WithField("user_id", identity.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetIdentity extracts the caller from the request
func GetIdentity(r *http.Request) *auth.Identity {
	identity, _ := auth.IdentityFromContext(r.Context())
	return identity
}
