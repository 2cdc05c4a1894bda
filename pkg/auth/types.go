package auth

import (
	"context"
	"time"

	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/contextkeys"
)

// User statuses
const (
	UserActive   = "active"
	UserInactive = "inactive"
)

// User is an account that may belong to one tenant and hold one role
type User struct {
	ID           int64     `json:"id"`
	TenantID     *int64    `json:"sme_id,omitempty"`
	RoleID       *int64    `json:"role_id,omitempty"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Status       string    `json:"status"`
	AuthProvider string    `json:"auth_provider"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity is the authenticated caller attached to a request. TenantID and
// RoleID are zero when the user has not joined a tenant or has no role.
type Identity struct {
	UserID   int64
	TenantID int64
	RoleID   int64
	Name     string
	Email    string
}

// HasTenant reports whether the caller belongs to a tenant
func (i *Identity) HasTenant() bool {
	return i != nil && i.TenantID > 0
}

// HasRole reports whether the caller has a role assigned
func (i *Identity) HasRole() bool {
	return i != nil && i.RoleID > 0
}

// IdentityFromUser builds the request identity for a user row
func IdentityFromUser(u *User) *Identity {
	id := &Identity{UserID: u.ID, Name: u.Name, Email: u.Email}
	if u.TenantID != nil {
		id.TenantID = *u.TenantID
	}
	if u.RoleID != nil {
		id.RoleID = *u.RoleID
	}
	return id
}

// WithIdentity attaches the caller to ctx
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return contextkeys.WithIdentity(ctx, identity)
}

// IdentityFromContext returns the caller, if any
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(contextkeys.IdentityKey).(*Identity)
	return identity, ok && identity != nil
}
