//go:build integration

// Package pgtest starts a migrated Postgres container for integration tests.
package pgtest

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/storage/postgres"
)

// Setup starts Postgres, applies every migration and returns a connection.
// The container is terminated when the test finishes. The test is skipped
// when no container runtime is available.
func Setup(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker/Podman not available, skipping integration tests")
	}
	provider.Close()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("bos_test"),
		tcpostgres.WithUsername("bos"),
		tcpostgres.WithPassword("bos_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	require.NoError(t, db.PingContext(ctx))

	_, err = postgres.Migrate(ctx, db)
	require.NoError(t, err, "failed to run migrations")

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: failed to close database: %v", err)
		}
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	})
	return db
}

// CreateTenant inserts an active tenant and returns its id
func CreateTenant(t *testing.T, db *sql.DB, name string) int64 {
	t.Helper()
	var id int64
	err := db.QueryRow(`INSERT INTO tenants (name) VALUES ($1) RETURNING id`, name).Scan(&id)
	require.NoError(t, err)
	return id
}

// CreateUser inserts a user of tenantID with an optional role
func CreateUser(t *testing.T, db *sql.DB, tenantID int64, roleID *int64, email string) int64 {
	t.Helper()
	var id int64
	err := db.QueryRow(
		`INSERT INTO users (tenant_id, role_id, name, email) VALUES ($1, $2, $3, $4) RETURNING id`,
		tenantID, roleID, email, email,
	).Scan(&id)
	require.NoError(t, err)
	return id
}
