package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/auth"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/authz"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/catalog"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/storage"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/tenancy"
)

type staticRoles map[int64]authz.PermissionSet

func (s staticRoles) LoadPermissions(ctx context.Context, scope tenancy.Scope, roleID int64) (authz.PermissionSet, error) {
	return s[roleID], nil
}

type capturedEvents struct {
	mu      sync.Mutex
	events  []Event
	denials []authz.Decision
}

func (c *capturedEvents) Record(ctx context.Context, e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *capturedEvents) RecordDenial(ctx context.Context, d authz.Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.denials = append(c.denials, d)
}

const (
	roleAuditor = int64(1)
	roleClerk   = int64(2)
)

type handlerFixture struct {
	router   *mux.Router
	mock     sqlmock.Sqlmock
	captured *capturedEvents
}

func newHandlerFixture(t *testing.T, withArchive bool) *handlerFixture {
	t.Helper()
	store, mock := newTestStore(t, Config{})
	roles := staticRoles{
		roleAuditor: authz.NewPermissionSet(map[string]catalog.OperationSet{
			catalog.ModuleActivityLogs: catalog.NewOperationSet(catalog.OpView, catalog.OpDelete),
		}),
		roleClerk: authz.NewPermissionSet(map[string]catalog.OperationSet{
			"products": catalog.AllOperations(),
		}),
	}
	captured := &capturedEvents{}
	evaluator := authz.NewEvaluator(catalog.Default(), nil)
	resolver := authz.NewResolver(roles, nil, authz.DefaultResolverConfig(), nil)
	enforcer := authz.NewEnforcer(resolver, evaluator, captured)

	var exporter *Exporter
	if withArchive {
		objects, err := storage.NewFileSystemStore(t.TempDir())
		require.NoError(t, err)
		exporter = NewExporter(store, objects)
	}

	router := mux.NewRouter()
	NewHandlers(store, exporter, enforcer, captured, 90).RegisterRoutes(router.PathPrefix("/api").Subrouter())
	return &handlerFixture{router: router, mock: mock, captured: captured}
}

func (f *handlerFixture) do(method, target string, body io.Reader, roleID int64) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	ctx := auth.WithIdentity(req.Context(), &auth.Identity{UserID: 7, TenantID: 3, RoleID: roleID})
	ctx = tenancy.WithScope(ctx, tenancy.MustFor(3))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req.WithContext(ctx))
	return rec
}

func TestHandlers_List(t *testing.T) {
	f := newHandlerFixture(t, false)
	f.mock.ExpectQuery("SELECT COUNT").WithArgs(int64(3), "auth.login").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))
	f.mock.ExpectQuery("SELECT l.id").WithArgs(int64(3), "auth.login", 10, 0).
		WillReturnRows(sqlmock.NewRows(entryRowColumns).
			AddRow(int64(5), int64(3), "Acme", int64(7), "Alice", "alice@acme.test",
				"auth.login", nil, nil, nil, "10.0.0.1", nil, fixedClock()))

	rec := f.do(http.MethodGet, "/api/activity-logs?action=auth.login&per_page=10", nil, roleAuditor)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Data, 1)
	assert.Equal(t, "User Login", result.Data[0].ActionDisplayName)
	assert.Equal(t, int64(1), result.Pagination.Total)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestHandlers_ListValidation(t *testing.T) {
	f := newHandlerFixture(t, false)

	rec := f.do(http.MethodGet, "/api/activity-logs?start_date=2024-03-02&end_date=2024-03-01", nil, roleAuditor)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(http.MethodGet, "/api/activity-logs?start_date=yesterday", nil, roleAuditor)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/api/activity-logs/statistics?days=400", nil, roleAuditor)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandlers_DeniedWithoutModuleGrant(t *testing.T) {
	f := newHandlerFixture(t, false)

	rec := f.do(http.MethodGet, "/api/activity-logs", nil, roleClerk)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), `"module":"activity-logs"`)
	assert.Contains(t, rec.Body.String(), `"operation":"view"`)

	require.Len(t, f.captured.denials, 1)
	assert.Equal(t, catalog.ModuleActivityLogs, f.captured.denials[0].Module)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestHandlers_Get(t *testing.T) {
	f := newHandlerFixture(t, false)
	f.mock.ExpectQuery("WHERE l.id").WithArgs(int64(404), int64(3)).
		WillReturnRows(sqlmock.NewRows(entryRowColumns))

	rec := f.do(http.MethodGet, "/api/activity-logs/404", nil, roleAuditor)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlers_ExportStream(t *testing.T) {
	f := newHandlerFixture(t, false)
	f.mock.ExpectQuery("SELECT l.id").WithArgs(int64(3), 10000).
		WillReturnRows(sqlmock.NewRows(entryRowColumns))

	rec := f.do(http.MethodGet, "/api/activity-logs/export", nil, roleAuditor)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "activity-logs-2024-03-01.csv")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "ID,Date/Time,Action"))

	require.Len(t, f.captured.events, 1)
	assert.Equal(t, ActionLogsExported, f.captured.events[0].Action)
}

func TestHandlers_ArchiveAndDownload(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		f := newHandlerFixture(t, false)
		rec := f.do(http.MethodPost, "/api/activity-logs/export", nil, roleAuditor)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("round trip", func(t *testing.T) {
		f := newHandlerFixture(t, true)
		f.mock.ExpectQuery("SELECT l.id").WillReturnRows(sqlmock.NewRows(entryRowColumns))

		rec := f.do(http.MethodPost, "/api/activity-logs/export", nil, roleAuditor)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp ArchiveResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "/api/activity-logs/download/"+resp.Filename, resp.DownloadURL)

		rec = f.do(http.MethodGet, resp.DownloadURL, nil, roleAuditor)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, strings.HasPrefix(rec.Body.String(), "ID,Date/Time"))

		rec = f.do(http.MethodGet, "/api/activity-logs/download/activity-logs-missing.csv", nil, roleAuditor)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandlers_Cleanup(t *testing.T) {
	f := newHandlerFixture(t, false)
	expectCutoff(f.mock, 30, fixedClock().AddDate(0, 0, -30))
	f.mock.ExpectExec("DELETE FROM activity_logs").
		WithArgs(fixedClock().AddDate(0, 0, -30), int64(3), 1000).
		WillReturnResult(sqlmock.NewResult(0, 12))
	f.mock.ExpectQuery("INSERT INTO activity_logs").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), fixedClock()))

	rec := f.do(http.MethodPost, "/api/activity-logs/cleanup", bytes.NewBufferString(`{"retention_days":30}`), roleAuditor)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result CleanupResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, int64(12), result.DeletedCount)
	assert.Equal(t, 30, result.RetentionDays)

	rec = f.do(http.MethodPost, "/api/activity-logs/cleanup", nil, roleClerk)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}
