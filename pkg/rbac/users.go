package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/auth"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/tenancy"
)

// Member is a user of the tenant as shown to its administrators
type Member struct {
	ID        int64     `json:"id"`
	TenantID  int64     `json:"sme_id"`
	RoleID    *int64    `json:"role_id"`
	RoleName  string    `json:"role_name"`
	RoleColor string    `json:"role_color"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

const memberColumns = `u.id, u.tenant_id, u.role_id, COALESCE(r.name, 'No Role'), COALESCE(r.color, 'gray'),
	u.name, u.email, u.status, u.created_at`

// ListUsers returns the tenant's users ordered by name
func (s *Store) ListUsers(ctx context.Context, scope tenancy.Scope) ([]Member, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memberColumns+` FROM users u LEFT JOIN roles r ON r.id = u.role_id
		WHERE u.tenant_id = $1 ORDER BY u.name, u.id`, scope.TenantID())
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	members := []Member{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return members, nil
}

// GetUser returns one user of the tenant. Users of other tenants are
// reported as missing.
func (s *Store) GetUser(ctx context.Context, scope tenancy.Scope, userID int64) (*Member, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM users u LEFT JOIN roles r ON r.id = u.role_id
		WHERE u.id = $1 AND u.tenant_id = $2`, userID, scope.TenantID())
	m, err := scanMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	return m, err
}

// SetUserStatus activates or deactivates a user of the tenant and returns
// the previous status. Users are never deleted. Deactivation also drops the
// user's sessions, so reactivating does not revive old tokens.
func (s *Store) SetUserStatus(ctx context.Context, scope tenancy.Scope, userID int64, status string) (string, error) {
	if err := scope.Check(); err != nil {
		return "", err
	}
	if status != auth.UserActive && status != auth.UserInactive {
		verr := &ValidationError{}
		verr.add("status", fmt.Sprintf("status must be %s or %s", auth.UserActive, auth.UserInactive))
		return "", verr
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var previous string
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM users WHERE id = $1 AND tenant_id = $2 FOR UPDATE`,
		userID, scope.TenantID()).Scan(&previous)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrUserNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to load user: %w", err)
	}
	if previous == status {
		return previous, nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET status = $1 WHERE id = $2 AND tenant_id = $3`,
		status, userID, scope.TenantID()); err != nil {
		return "", fmt.Errorf("failed to update user status: %w", err)
	}
	if status == auth.UserInactive {
		if _, err := tx.ExecContext(ctx, `DELETE FROM api_sessions WHERE user_id = $1`, userID); err != nil {
			return "", fmt.Errorf("failed to revoke sessions: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit user status: %w", err)
	}
	return previous, nil
}

func scanMember(row interface{ Scan(...interface{}) error }) (*Member, error) {
	var (
		m      Member
		roleID sql.NullInt64
	)
	err := row.Scan(&m.ID, &m.TenantID, &roleID, &m.RoleName, &m.RoleColor, &m.Name, &m.Email, &m.Status, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	if roleID.Valid {
		id := roleID.Int64
		m.RoleID = &id
	}
	return &m, nil
}
