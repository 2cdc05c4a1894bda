package orgs

import (
	"errors"
	"time"
)

// Status is a tenant's lifecycle state. Only active tenants may use the API.
type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusSuspended:
		return true
	}
	return false
}

// ErrTenantNotFound is returned when no tenant has the requested id
var ErrTenantNotFound = errors.New("tenant not found")

// Tenant is an organization; every user, role and activity log row belongs to one
type Tenant struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	Status           Status    `json:"status"`
	SubscriptionTier string    `json:"subscription_tier"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
