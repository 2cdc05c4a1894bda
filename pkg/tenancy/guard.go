package tenancy

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/auth"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/httputil"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/observability"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/orgs"
)

const (
	// TenantHeader lets a client state which tenant it believes it is acting in
	TenantHeader = "X-Tenant-ID"

	// TenantRouteVar is the route variable checked against the caller's tenant
	TenantRouteVar = "tenantID"
)

// Guard establishes the tenant scope for a request. It must run after
// authentication and before any handler touches tenant-owned data.
type Guard struct {
	statuses orgs.StatusLookup
	metrics  *observability.Metrics
}

// NewGuard creates a guard. A nil statuses skips the tenant status check.
func NewGuard(statuses orgs.StatusLookup, metrics *observability.Metrics) *Guard {
	return &Guard{statuses: statuses, metrics: metrics}
}

// Handler wraps next with tenant scoping
func (g *Guard) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := auth.IdentityFromContext(r.Context())
		if !ok {
			g.metrics.RecordTenantRejection("unauthenticated")
			httputil.WriteUnauthenticated(w, "authentication required")
			return
		}
		if !identity.HasTenant() {
			g.metrics.RecordTenantRejection("tenant_required")
			httputil.WriteTenantRequired(w)
			return
		}

		logger := observability.FromContext(r.Context()).
			WithField("user_id", identity.UserID).
			WithField("tenant_id", identity.TenantID)

		if claimed, ok := claimedTenant(r); ok && claimed != identity.TenantID {
			g.metrics.RecordTenantRejection("tenant_mismatch")
			logger.WithField("claimed_tenant_id", claimed).Warn("tenant claim does not match caller")
			httputil.WriteForbidden(w, "tenant does not match the authenticated user")
			return
		}

		if g.statuses != nil {
			status, err := g.statuses.TenantStatus(r.Context(), identity.TenantID)
			switch {
			case errors.Is(err, orgs.ErrTenantNotFound):
				g.metrics.RecordTenantRejection("tenant_missing")
				httputil.WriteForbidden(w, "tenant does not exist")
				return
			case err != nil:
				logger.WithError(err).Error("failed to load tenant status")
				httputil.WriteServiceUnavailable(w, "tenant status unavailable")
				return
			case status != orgs.StatusActive:
				g.metrics.RecordTenantRejection("tenant_inactive")
				httputil.WriteErrorMessage(w, http.StatusForbidden, httputil.CodeTenantInactive,
					"organization is "+string(status))
				return
			}
		}

		ctx := WithScope(r.Context(), Scope{tenantID: identity.TenantID})
		ctx = observability.WithLogger(ctx, logger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// claimedTenant returns a tenant id asserted by the request itself. An
// unparsable claim is reported as tenant 0 so it never matches.
func claimedTenant(r *http.Request) (int64, bool) {
	raw := mux.Vars(r)[TenantRouteVar]
	if raw == "" {
		raw = strings.TrimSpace(r.Header.Get(TenantHeader))
	}
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, true
	}
	return id, true
}
