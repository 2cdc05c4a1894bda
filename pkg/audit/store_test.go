package audit

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/auth"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/tenancy"
)

var entryRowColumns = []string{
	"id", "tenant_id", "tenant_name", "user_id", "user_name", "user_email",
	"action", "entity_type", "entity_id", "details", "ip_address", "user_agent", "created_at",
}

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func fixedClock() time.Time {
	return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
}

func newTestStore(t *testing.T, config Config) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := setupMockDB(t)
	store := NewStore(Single(db), config, nil)
	store.now = fixedClock
	return store, mock
}

func TestNewStore_Defaults(t *testing.T) {
	store := NewStore(Single(nil), Config{}, nil)
	assert.Equal(t, DefaultConfig(), store.Config())

	store = NewStore(Single(nil), Config{MaxPageSize: 50}, nil)
	assert.Equal(t, 50, store.Config().MaxPageSize)
	assert.Equal(t, 20, store.Config().DefaultPageSize)
}

func TestStore_Record(t *testing.T) {
	t.Run("takes tenant and user from context", func(t *testing.T) {
		store, mock := newTestStore(t, Config{})
		ctx := auth.WithIdentity(context.Background(), &auth.Identity{UserID: 7, TenantID: 3})
		ctx = tenancy.WithScope(ctx, tenancy.MustFor(3))
		ctx = WithRequestMeta(ctx, RequestMeta{IPAddress: "10.0.0.1", UserAgent: "curl/8", RequestID: "req-1"})
		entityID := int64(9)

		mock.ExpectQuery("INSERT INTO activity_logs").
			WithArgs(int64(3), int64(7), "role.created", "role", int64(9),
				[]byte(`{"name":"Ops","request_id":"req-1"}`), "10.0.0.1", "curl/8").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(42), fixedClock()))

		entry, err := store.Record(ctx, Event{
			Action:     ActionRoleCreated,
			EntityType: "role",
			EntityID:   &entityID,
			Details:    map[string]interface{}{"name": "Ops"},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(42), entry.ID)
		assert.Equal(t, int64(3), *entry.TenantID)
		assert.Equal(t, int64(7), *entry.UserID)
		assert.Equal(t, "req-1", entry.Details["request_id"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("falls back to identity tenant", func(t *testing.T) {
		store, mock := newTestStore(t, Config{})
		ctx := auth.WithIdentity(context.Background(), &auth.Identity{UserID: 7, TenantID: 5})

		mock.ExpectQuery("INSERT INTO activity_logs").
			WithArgs(int64(5), int64(7), "auth.login", nil, nil, nil, nil, nil).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), fixedClock()))

		_, err := store.Record(ctx, Event{Action: ActionLogin})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("system event has no tenant or user", func(t *testing.T) {
		store, mock := newTestStore(t, Config{})

		mock.ExpectQuery("INSERT INTO activity_logs").
			WithArgs(nil, nil, "system.maintenance_mode", nil, nil, nil, nil, nil).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), fixedClock()))

		entry, err := store.Record(context.Background(), Event{Action: ActionMaintenanceMode})
		require.NoError(t, err)
		assert.Nil(t, entry.TenantID)
		assert.Nil(t, entry.UserID)
	})

	t.Run("insert failure", func(t *testing.T) {
		store, mock := newTestStore(t, Config{})
		mock.ExpectQuery("INSERT INTO activity_logs").WillReturnError(errors.New("connection reset"))

		_, err := store.Record(context.Background(), Event{Action: ActionLogin})
		assert.ErrorIs(t, err, ErrWriteFailed)
	})
}

func TestStore_Query(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("scoped to tenant with pagination", func(t *testing.T) {
		store, mock := newTestStore(t, Config{})

		mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)") + ".*" + regexp.QuoteMeta("WHERE l.tenant_id = $1")).
			WithArgs(int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(45)))
		mock.ExpectQuery(regexp.QuoteMeta("ORDER BY l.created_at DESC, l.id DESC LIMIT $2 OFFSET $3")).
			WithArgs(int64(3), 20, 20).
			WillReturnRows(sqlmock.NewRows(entryRowColumns).
				AddRow(int64(25), int64(3), "Acme", int64(7), "Alice", "alice@acme.test",
					"role.deleted", "role", int64(4), []byte(`{"name":"Ops"}`), "10.0.0.1", "curl/8", at).
				AddRow(int64(24), int64(3), "Acme", nil, "", "",
					"system.logs_cleanup", nil, nil, nil, nil, nil, at))

		result, err := store.Query(ctx, tenancy.MustFor(3), Filter{}, Page{Number: 2})
		require.NoError(t, err)
		require.Len(t, result.Data, 2)
		assert.Equal(t, Pagination{CurrentPage: 2, LastPage: 3, PerPage: 20, Total: 45, From: 21, To: 22}, result.Pagination)

		first := result.Data[0]
		assert.Equal(t, "Role Deleted", first.ActionDisplayName)
		assert.Equal(t, SeverityHigh, first.SeverityLevel)
		assert.Equal(t, "red", first.SeverityColor)
		assert.Equal(t, "Ops", first.Details["name"])

		second := result.Data[1]
		assert.Nil(t, second.UserID)
		assert.Nil(t, second.EntityType)
		assert.Nil(t, second.Details)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("tenant 3 never sees tenant 5", func(t *testing.T) {
		store, mock := newTestStore(t, Config{})

		mock.ExpectQuery("SELECT COUNT").WithArgs(int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))
		mock.ExpectQuery("SELECT l.id").WithArgs(int64(3), 20, 0).
			WillReturnRows(sqlmock.NewRows(entryRowColumns))

		result, err := store.Query(ctx, tenancy.MustFor(3), Filter{}, Page{})
		require.NoError(t, err)
		assert.Empty(t, result.Data)
		assert.Equal(t, 1, result.Pagination.LastPage)
		assert.Equal(t, 0, result.Pagination.From)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("filters and page cap", func(t *testing.T) {
		store, mock := newTestStore(t, Config{})
		userID := int64(7)
		from := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
		to := time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC)
		filter := Filter{
			UserID:     &userID,
			Action:     "role.created",
			EntityType: "role",
			Search:     "50%_off",
			From:       &from,
			To:         &to,
		}
		where := "l.tenant_id = $1 AND l.user_id = $2 AND l.action = $3 AND l.entity_type = $4 AND " +
			"(l.action ILIKE $5 OR l.entity_type ILIKE $5 OR u.name ILIKE $5 OR u.email ILIKE $5) AND " +
			"l.created_at >= $6 AND l.created_at <= $7"

		mock.ExpectQuery(regexp.QuoteMeta(where)).
			WithArgs(int64(3), int64(7), "role.created", "role", `%50\%\_off%`, from, to).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))
		mock.ExpectQuery(regexp.QuoteMeta("LIMIT $8 OFFSET $9")).
			WithArgs(int64(3), int64(7), "role.created", "role", `%50\%\_off%`, from, to, 100, 0).
			WillReturnRows(sqlmock.NewRows(entryRowColumns))

		_, err := store.Query(ctx, tenancy.MustFor(3), filter, Page{Number: 1, Size: 500})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("zero scope is rejected", func(t *testing.T) {
		store, _ := newTestStore(t, Config{})
		_, err := store.Query(ctx, tenancy.Scope{}, Filter{}, Page{})
		assert.ErrorIs(t, err, tenancy.ErrTenantRequired)
	})
}

func TestStore_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		store, mock := newTestStore(t, Config{})
		mock.ExpectQuery(regexp.QuoteMeta("WHERE l.id = $1 AND l.tenant_id = $2")).
			WithArgs(int64(25), int64(3)).
			WillReturnRows(sqlmock.NewRows(entryRowColumns).
				AddRow(int64(25), int64(3), "Acme", int64(7), "Alice", "alice@acme.test",
					"auth.login_failed", nil, nil, nil, "10.0.0.1", nil, fixedClock()))

		view, err := store.Get(ctx, tenancy.MustFor(3), 25)
		require.NoError(t, err)
		assert.Equal(t, SeverityMedium, view.SeverityLevel)
		assert.Equal(t, "yellow", view.SeverityColor)
	})

	t.Run("other tenant is not found", func(t *testing.T) {
		store, mock := newTestStore(t, Config{})
		mock.ExpectQuery("WHERE l.id").
			WithArgs(int64(25), int64(5)).
			WillReturnRows(sqlmock.NewRows(entryRowColumns))

		_, err := store.Get(ctx, tenancy.MustFor(5), 25)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_Statistics(t *testing.T) {
	ctx := context.Background()
	since := fixedClock().AddDate(0, 0, -7)

	t.Run("aggregates concurrently", func(t *testing.T) {
		store, mock := newTestStore(t, Config{})
		mock.MatchExpectationsInOrder(false)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM activity_logs WHERE tenant_id = $1 AND created_at >= $2")).
			WithArgs(int64(3), since).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(12)))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(DISTINCT user_id)")).
			WithArgs(int64(3), since).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(2)))
		mock.ExpectQuery(regexp.QuoteMeta("GROUP BY action ORDER BY count DESC, action ASC LIMIT 10")).
			WithArgs(int64(3), since).
			WillReturnRows(sqlmock.NewRows([]string{"action", "count"}).
				AddRow("auth.login", int64(8)).
				AddRow("role.updated", int64(4)))
		mock.ExpectQuery(regexp.QuoteMeta("TO_CHAR(DATE(created_at), 'YYYY-MM-DD')")).
			WithArgs(int64(3), since).
			WillReturnRows(sqlmock.NewRows([]string{"day", "count"}).
				AddRow("2024-02-28", int64(5)).
				AddRow("2024-02-29", int64(7)))

		stats, err := store.Statistics(ctx, tenancy.MustFor(3), 7)
		require.NoError(t, err)
		assert.Equal(t, int64(12), stats.TotalLogs)
		assert.Equal(t, int64(2), stats.UniqueUsers)
		assert.Equal(t, 7, stats.PeriodDays)
		assert.Equal(t, []ActionCount{
			{Action: ActionLogin, DisplayName: "User Login", Count: 8},
			{Action: ActionRoleUpdated, DisplayName: "Role Updated", Count: 4},
		}, stats.ActionBreakdown)
		assert.Equal(t, []DayCount{{Date: "2024-02-28", Count: 5}, {Date: "2024-02-29", Count: 7}}, stats.DailyActivity)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("days out of range", func(t *testing.T) {
		store, _ := newTestStore(t, Config{})
		for _, days := range []int{-1, 366} {
			_, err := store.Statistics(ctx, tenancy.MustFor(3), days)
			assert.Error(t, err, "days=%d", days)
		}
	})

	t.Run("query failure", func(t *testing.T) {
		store, mock := newTestStore(t, Config{})
		mock.MatchExpectationsInOrder(false)
		mock.ExpectQuery("SELECT COUNT").WillReturnError(errors.New("boom"))
		mock.ExpectQuery("SELECT COUNT").WillReturnError(errors.New("boom"))
		mock.ExpectQuery("GROUP BY action").WillReturnError(errors.New("boom"))
		mock.ExpectQuery("TO_CHAR").WillReturnError(errors.New("boom"))

		_, err := store.Statistics(ctx, tenancy.MustFor(3), 30)
		assert.Error(t, err)
	})
}

func TestStore_FilterOptions(t *testing.T) {
	store, mock := newTestStore(t, Config{})

	mock.ExpectQuery("SELECT DISTINCT action").WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"action"}).AddRow("auth.login").AddRow("custom.thing_done"))
	mock.ExpectQuery("SELECT DISTINCT entity_type").WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"entity_type"}).AddRow("role"))
	mock.ExpectQuery("SELECT DISTINCT u.id, u.name").WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(7), "Alice"))

	opts, err := store.FilterOptions(context.Background(), tenancy.MustFor(3))
	require.NoError(t, err)
	assert.Equal(t, []Option{
		{Value: "auth.login", Label: "User Login"},
		{Value: "custom.thing_done", Label: "Custom Thing Done"},
	}, opts.Actions)
	assert.Equal(t, []Option{{Value: "role", Label: "Role"}}, opts.EntityTypes)
	assert.Equal(t, []Option{{Value: "7", Label: "Alice"}}, opts.Users)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ExportCSV(t *testing.T) {
	store, mock := newTestStore(t, Config{ExportMaxRows: 500})

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY l.created_at DESC, l.id DESC LIMIT $2")).
		WithArgs(int64(3), 500).
		WillReturnRows(sqlmock.NewRows(entryRowColumns).
			AddRow(int64(2), int64(3), "Acme", int64(7), "Alice", "alice@acme.test",
				"role.created", "role", int64(9), []byte(`{"name":"Ops"}`), "10.0.0.1", "curl/8",
				time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)).
			AddRow(int64(1), int64(3), "Acme", nil, "", "",
				"custom.thing_done", nil, nil, nil, nil, nil,
				time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)))

	var buf bytes.Buffer
	n, err := store.ExportCSV(context.Background(), tenancy.MustFor(3), Filter{}, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	want := "ID,Date/Time,Action,User,SME,Entity Type,Entity ID,IP Address,User Agent,Details\n" +
		`2,2024-03-01 10:00:00,Role Created,Alice,Acme,role,9,10.0.0.1,curl/8,"{""name"":""Ops""}"` + "\n" +
		"1,2024-03-01 09:00:00,Custom Thing Done,System,Acme,N/A,N/A,N/A,N/A,[]\n"
	assert.Equal(t, want, buf.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Cleanup(t *testing.T) {
	ctx := context.Background()
	cutoff := fixedClock().AddDate(0, 0, -90)

	t.Run("deletes in batches under a fixed cutoff", func(t *testing.T) {
		store, mock := newTestStore(t, Config{CleanupBatchSize: 2})
		del := regexp.QuoteMeta("DELETE FROM activity_logs WHERE id IN (SELECT id FROM activity_logs WHERE created_at < $1 AND tenant_id = $2 ORDER BY id LIMIT $3)")

		expectCutoff(mock, 90, cutoff)

		mock.ExpectExec(del).WithArgs(cutoff, int64(3), 2).WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec(del).WithArgs(cutoff, int64(3), 2).WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec(del).WithArgs(cutoff, int64(3), 2).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("INSERT INTO activity_logs").
			WithArgs(int64(3), nil, "system.logs_cleanup", nil, nil, sqlmock.AnyArg(), nil, nil).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(99), fixedClock()))

		result, err := store.Cleanup(ctx, tenancy.MustFor(3), 90)
		require.NoError(t, err)
		assert.Equal(t, int64(5), result.DeletedCount)
		assert.Equal(t, cutoff, result.Cutoff)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("global run has no tenant predicate", func(t *testing.T) {
		store, mock := newTestStore(t, Config{})
		expectCutoff(mock, 90, cutoff)
		mock.ExpectExec(regexp.QuoteMeta("WHERE created_at < $1 ORDER BY id LIMIT $2)")).
			WithArgs(cutoff, 1000).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("INSERT INTO activity_logs").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), fixedClock()))

		result, err := store.CleanupAll(ctx, 90)
		require.NoError(t, err)
		assert.Zero(t, result.DeletedCount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("a failed cleanup record does not fail the run", func(t *testing.T) {
		store, mock := newTestStore(t, Config{})
		expectCutoff(mock, 30, fixedClock().AddDate(0, 0, -30))
		mock.ExpectExec("DELETE FROM activity_logs").WillReturnResult(sqlmock.NewResult(0, 3))
		mock.ExpectQuery("INSERT INTO activity_logs").WillReturnError(errors.New("read only"))

		result, err := store.CleanupAll(ctx, 30)
		require.NoError(t, err)
		assert.Equal(t, int64(3), result.DeletedCount)
	})

	t.Run("cutoff comes from the database clock", func(t *testing.T) {
		store, mock := newTestStore(t, Config{})
		dbCutoff := fixedClock().Add(-2 * time.Hour).AddDate(0, 0, -90)
		expectCutoff(mock, 90, dbCutoff)
		mock.ExpectExec("DELETE FROM activity_logs").
			WithArgs(dbCutoff, 1000).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("INSERT INTO activity_logs").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), fixedClock()))

		result, err := store.CleanupAll(ctx, 90)
		require.NoError(t, err)
		assert.Equal(t, dbCutoff, result.Cutoff)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("cutoff failure deletes nothing", func(t *testing.T) {
		store, mock := newTestStore(t, Config{})
		mock.ExpectQuery(regexp.QuoteMeta(cutoffQuery)).WillReturnError(errors.New("conn reset"))

		_, err := store.CleanupAll(ctx, 90)
		assert.ErrorContains(t, err, "retention cutoff")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid retention", func(t *testing.T) {
		store, _ := newTestStore(t, Config{})
		_, err := store.CleanupAll(ctx, 0)
		assert.Error(t, err)
	})
}

func expectCutoff(mock sqlmock.Sqlmock, days int, cutoff time.Time) {
	mock.ExpectQuery(regexp.QuoteMeta(cutoffQuery)).
		WithArgs(days).
		WillReturnRows(sqlmock.NewRows([]string{"cutoff"}).AddRow(cutoff))
}
