package orgs

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var tenantColumns = []string{"id", "name", "status", "subscription_tier", "created_at", "updated_at"}

func TestDirectory_CreateTenant(t *testing.T) {
	db, mock := setupMockDB(t)
	now := time.Now()

	mock.ExpectQuery("INSERT INTO tenants").
		WithArgs("Acme", StatusActive, "free").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(3, now, now))

	tenant, err := NewDirectory(db).CreateTenant(context.Background(), "  Acme ", "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), tenant.ID)
	assert.Equal(t, StatusActive, tenant.Status)
	assert.NoError(t, mock.ExpectationsWereMet())

	_, err = NewDirectory(db).CreateTenant(context.Background(), " ", "")
	assert.Error(t, err)
}

func TestDirectory_GetTenant(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		db, mock := setupMockDB(t)
		now := time.Now()
		mock.ExpectQuery("SELECT (.+) FROM tenants WHERE id = \\$1").
			WithArgs(int64(3)).
			WillReturnRows(sqlmock.NewRows(tenantColumns).AddRow(3, "Acme", "suspended", "pro", now, now))

		tenant, err := NewDirectory(db).GetTenant(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, StatusSuspended, tenant.Status)
		assert.Equal(t, "pro", tenant.SubscriptionTier)
	})

	t.Run("not found", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectQuery("SELECT (.+) FROM tenants").WillReturnError(sql.ErrNoRows)

		_, err := NewDirectory(db).GetTenant(ctx, 99)
		assert.ErrorIs(t, err, ErrTenantNotFound)
	})
}

func TestDirectory_SetStatus(t *testing.T) {
	ctx := context.Background()
	db, mock := setupMockDB(t)
	dir := NewDirectory(db)

	mock.ExpectExec("UPDATE tenants SET status").
		WithArgs(StatusSuspended, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE tenants SET status").
		WithArgs(StatusActive, int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, dir.SetStatus(ctx, 3, StatusSuspended))
	assert.ErrorIs(t, dir.SetStatus(ctx, 99, StatusActive), ErrTenantNotFound)
	assert.Error(t, dir.SetStatus(ctx, 3, Status("deleted")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDirectory_ListTenants(t *testing.T) {
	db, mock := setupMockDB(t)
	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM tenants\\s+ORDER BY id").
		WillReturnRows(sqlmock.NewRows(tenantColumns).
			AddRow(3, "Acme", "active", "free", now, now).
			AddRow(5, "Globex", "inactive", "pro", now, now))

	tenants, err := NewDirectory(db).ListTenants(context.Background())
	require.NoError(t, err)
	require.Len(t, tenants, 2)
	assert.Equal(t, "Globex", tenants[1].Name)
}

type countingLookup struct {
	calls  int
	status Status
	err    error
}

func (c *countingLookup) TenantStatus(ctx context.Context, id int64) (Status, error) {
	c.calls++
	return c.status, c.err
}

func TestCachedDirectory(t *testing.T) {
	ctx := context.Background()

	t.Run("caches hits", func(t *testing.T) {
		next := &countingLookup{status: StatusActive}
		cached := NewCachedDirectory(next, 10, time.Minute)

		for i := 0; i < 3; i++ {
			status, err := cached.TenantStatus(ctx, 3)
			require.NoError(t, err)
			assert.Equal(t, StatusActive, status)
		}
		assert.Equal(t, 1, next.calls)

		cached.Forget(3)
		_, _ = cached.TenantStatus(ctx, 3)
		assert.Equal(t, 2, next.calls)
	})

	t.Run("does not cache errors", func(t *testing.T) {
		next := &countingLookup{err: errors.New("db down")}
		cached := NewCachedDirectory(next, 10, time.Minute)

		_, err := cached.TenantStatus(ctx, 3)
		assert.Error(t, err)
		_, err = cached.TenantStatus(ctx, 3)
		assert.Error(t, err)
		assert.Equal(t, 2, next.calls)
	})

	t.Run("expires", func(t *testing.T) {
		next := &countingLookup{status: StatusActive}
		cached := NewCachedDirectory(next, 10, 20*time.Millisecond)

		_, _ = cached.TenantStatus(ctx, 3)
		time.Sleep(60 * time.Millisecond)
		_, _ = cached.TenantStatus(ctx, 3)
		assert.Equal(t, 2, next.calls)
	})
}
