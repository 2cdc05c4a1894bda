package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations_Ordered(t *testing.T) {
	migrations, err := Migrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)

	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.SQL)
	}
	assert.Contains(t, migrations[0].SQL, "CREATE TABLE IF NOT EXISTS role_permissions")
	assert.Contains(t, migrations[1].SQL, "activity_logs")
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()
	migrations, err := Migrations()
	require.NoError(t, err)

	t.Run("applies pending migrations", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT COALESCE\\(MAX\\(version\\), 0\\) FROM schema_migrations").
			WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(1))

		for _, m := range migrations[1:] {
			mock.ExpectBegin()
			mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectExec("INSERT INTO schema_migrations").WithArgs(m.Version).WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectCommit()
		}

		applied, err := Migrate(ctx, db)
		require.NoError(t, err)
		assert.Len(t, applied, len(migrations)-1)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("up to date is a no-op", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT COALESCE").
			WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(len(migrations)))

		applied, err := Migrate(ctx, db)
		require.NoError(t, err)
		assert.Empty(t, applied)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed migration rolls back", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT COALESCE").WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(0))
		mock.ExpectBegin()
		mock.ExpectExec("CREATE").WillReturnError(errors.New("syntax error"))
		mock.ExpectRollback()

		applied, err := Migrate(ctx, db)
		assert.Error(t, err)
		assert.Empty(t, applied)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
