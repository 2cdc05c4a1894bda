package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/observability"
)

// ErrInvalidToken covers malformed, unknown, expired and disabled-user tokens
var ErrInvalidToken = errors.New("invalid or expired token")

// ErrUserNotFound is returned when issuing a token for a missing user
var ErrUserNotFound = errors.New("user not found")

// TouchInterval is how stale last_used_at must be before a request updates it
const TouchInterval = time.Minute

// SessionStore issues bearer tokens and resolves them to identities.
// Only the token hash is persisted.
type SessionStore struct {
	db        *sql.DB
	generator *TokenGenerator
	now       func() time.Time
}

// NewSessionStore creates a session store
func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db, generator: NewTokenGenerator(), now: time.Now}
}

// Issue creates a token for an active user. The plaintext token is returned
// once and never stored.
func (s *SessionStore) Issue(ctx context.Context, userID int64, ttl time.Duration) (string, time.Time, error) {
	var status string
	err := s.db.QueryRowContext(ctx, "SELECT status FROM users WHERE id = $1", userID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", time.Time{}, ErrUserNotFound
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to load user: %w", err)
	}
	if status != UserActive {
		return "", time.Time{}, fmt.Errorf("user %d is %s", userID, status)
	}

	token, hash, err := s.generator.GenerateToken()
	if err != nil {
		return "", time.Time{}, err
	}

	expiresAt := s.now().Add(ttl).UTC()
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO api_sessions (token_hash, user_id, expires_at) VALUES ($1, $2, $3)",
		hash, userID, expiresAt,
	); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to store session: %w", err)
	}
	return token, expiresAt, nil
}

// Authenticate resolves a bearer token to the caller's identity
func (s *SessionStore) Authenticate(ctx context.Context, token string) (*Identity, error) {
	if err := s.generator.ValidateTokenFormat(token); err != nil {
		return nil, ErrInvalidToken
	}
	hash := s.generator.HashToken(token)

	var (
		u        User
		lastUsed sql.NullTime
	)
	now := s.now().UTC()
	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.tenant_id, u.role_id, u.name, u.email, u.status, s.last_used_at
		FROM api_sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.token_hash = $1 AND s.expires_at > $2`,
		hash, now,
	).Scan(&u.ID, &u.TenantID, &u.RoleID, &u.Name, &u.Email, &u.Status, &lastUsed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}
	if u.Status != UserActive {
		return nil, ErrInvalidToken
	}

	if !lastUsed.Valid || now.Sub(lastUsed.Time) >= TouchInterval {
		s.touch(ctx, hash, now)
	}

	return IdentityFromUser(&u), nil
}

// touch records use of the session. The guard on last_used_at keeps
// concurrent requests from rewriting the row more than once per interval.
func (s *SessionStore) touch(ctx context.Context, hash string, now time.Time) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE api_sessions SET last_used_at = $1
		WHERE token_hash = $2 AND (last_used_at IS NULL OR last_used_at <= $3)`,
		now, hash, now.Add(-TouchInterval))
	if err != nil {
		observability.FromContext(ctx).WithError(err).Warn("failed to record session use")
	}
}

// Revoke deletes the session for token
func (s *SessionStore) Revoke(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM api_sessions WHERE token_hash = $1", s.generator.HashToken(token)); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// PurgeExpired deletes sessions that expired before now
func (s *SessionStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM api_sessions WHERE expires_at <= $1", s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	return res.RowsAffected()
}
