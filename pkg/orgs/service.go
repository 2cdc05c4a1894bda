package orgs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Directory reads and maintains the tenants table
type Directory struct {
	db *sql.DB
}

// NewDirectory creates a tenant directory
func NewDirectory(db *sql.DB) *Directory {
	return &Directory{db: db}
}

// CreateTenant inserts an active tenant
func (d *Directory) CreateTenant(ctx context.Context, name, tier string) (*Tenant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("tenant name is required")
	}
	if tier == "" {
		tier = "free"
	}

	t := &Tenant{Name: name, Status: StatusActive, SubscriptionTier: tier}
	err := d.db.QueryRowContext(ctx, `
		INSERT INTO tenants (name, status, subscription_tier)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`,
		t.Name, t.Status, t.SubscriptionTier,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}
	return t, nil
}

// GetTenant retrieves a tenant by ID
func (d *Directory) GetTenant(ctx context.Context, id int64) (*Tenant, error) {
	t := &Tenant{}
	err := d.db.QueryRowContext(ctx, `
		SELECT id, name, status, subscription_tier, created_at, updated_at
		FROM tenants
		WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.Status, &t.SubscriptionTier, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return t, nil
}

// TenantStatus returns only the status column, for the request guard
func (d *Directory) TenantStatus(ctx context.Context, id int64) (Status, error) {
	var status Status
	err := d.db.QueryRowContext(ctx, "SELECT status FROM tenants WHERE id = $1", id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrTenantNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get tenant status: %w", err)
	}
	return status, nil
}

// SetStatus changes a tenant's status
func (d *Directory) SetStatus(ctx context.Context, id int64, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("invalid tenant status: %s", status)
	}
	res, err := d.db.ExecContext(ctx,
		"UPDATE tenants SET status = $1, updated_at = NOW() WHERE id = $2", status, id)
	if err != nil {
		return fmt.Errorf("failed to update tenant status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTenantNotFound
	}
	return nil
}

// ListTenants returns every tenant ordered by id
func (d *Directory) ListTenants(ctx context.Context) ([]*Tenant, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, name, status, subscription_tier, created_at, updated_at
		FROM tenants
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*Tenant
	for rows.Next() {
		t := &Tenant{}
		if err := rows.Scan(&t.ID, &t.Name, &t.Status, &t.SubscriptionTier, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}
