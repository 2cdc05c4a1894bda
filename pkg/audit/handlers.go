package audit

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/authz"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/catalog"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/httputil"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/observability"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/tenancy"
)

// Handlers serves the activity log API
type Handlers struct {
	store         *Store
	exporter      *Exporter
	enforcer      *authz.Enforcer
	recorder      Recorder
	retentionDays int
}

// NewHandlers creates activity log handlers. exporter is nil when no export
// archive is configured; the archive routes then answer 503.
func NewHandlers(store *Store, exporter *Exporter, enforcer *authz.Enforcer, recorder Recorder, retentionDays int) *Handlers {
	if recorder == nil {
		recorder = Discard{}
	}
	return &Handlers{
		store:         store,
		exporter:      exporter,
		enforcer:      enforcer,
		recorder:      recorder,
		retentionDays: retentionDays,
	}
}

// RegisterRoutes registers the activity log routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	view := h.enforcer.Require(catalog.ModuleActivityLogs, catalog.OpView)
	remove := h.enforcer.Require(catalog.ModuleActivityLogs, catalog.OpDelete)

	logs := router.PathPrefix("/activity-logs").Subrouter()
	logs.Handle("", view(http.HandlerFunc(h.list))).Methods(http.MethodGet)
	logs.Handle("/filter-options", view(http.HandlerFunc(h.filterOptions))).Methods(http.MethodGet)
	logs.Handle("/statistics", view(http.HandlerFunc(h.statistics))).Methods(http.MethodGet)
	logs.Handle("/export", view(http.HandlerFunc(h.exportCSV))).Methods(http.MethodGet)
	logs.Handle("/export", view(http.HandlerFunc(h.archive))).Methods(http.MethodPost)
	logs.Handle("/download/{filename}", view(http.HandlerFunc(h.download))).Methods(http.MethodGet)
	logs.Handle("/cleanup", remove(http.HandlerFunc(h.cleanup))).Methods(http.MethodPost)
	logs.Handle("/{id:[0-9]+}", view(http.HandlerFunc(h.get))).Methods(http.MethodGet)
}

// parseFilter reads the shared filter query params. It writes the error
// response itself and returns false on bad input.
func parseFilter(w http.ResponseWriter, r *http.Request) (Filter, bool) {
	var f Filter
	var err error
	if f.UserID, err = httputil.ParseQueryInt64Ptr(r, "user_id"); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return f, false
	}
	if f.From, err = httputil.ParseQueryTime(r, "start_date", false); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return f, false
	}
	if f.To, err = httputil.ParseQueryTime(r, "end_date", true); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return f, false
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		httputil.WriteValidationErrors(w, map[string]string{
			"end_date": "end_date must be on or after start_date",
		})
		return f, false
	}

	fields := map[string]string{}
	f.Action = httputil.ParseQueryString(r, "action", "")
	if len(f.Action) > 100 {
		fields["action"] = "action may not exceed 100 characters"
	}
	f.EntityType = httputil.ParseQueryString(r, "entity_type", "")
	if len(f.EntityType) > 100 {
		fields["entity_type"] = "entity_type may not exceed 100 characters"
	}
	f.Search = httputil.ParseQueryString(r, "search", "")
	if len(f.Search) > 255 {
		fields["search"] = "search may not exceed 255 characters"
	}
	if len(fields) > 0 {
		httputil.WriteValidationErrors(w, fields)
		return f, false
	}
	return f, true
}

// writeStoreError maps store errors onto responses
func writeStoreError(w http.ResponseWriter, r *http.Request, err error, message string) {
	switch {
	case errors.Is(err, ErrNotFound):
		httputil.WriteNotFound(w, "activity log not found")
	case errors.Is(err, tenancy.ErrTenantRequired):
		httputil.WriteTenantRequired(w)
	default:
		observability.FromContext(r.Context()).WithError(err).Error(message)
		httputil.WriteInternalError(w, message)
	}
}

// list handles GET /activity-logs
func (h *Handlers) list(w http.ResponseWriter, r *http.Request) {
	scope, err := tenancy.Require(r.Context())
	if err != nil {
		httputil.WriteTenantRequired(w)
		return
	}
	filter, ok := parseFilter(w, r)
	if !ok {
		return
	}
	number, err := httputil.ParseQueryInt(r, "page", 1)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	size, err := httputil.ParseQueryInt(r, "per_page", 0)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.store.Query(r.Context(), scope, filter, Page{Number: number, Size: size})
	if err != nil {
		writeStoreError(w, r, err, "failed to fetch activity logs")
		return
	}
	httputil.WriteSuccess(w, result)
}

// get handles GET /activity-logs/{id}
func (h *Handlers) get(w http.ResponseWriter, r *http.Request) {
	scope, err := tenancy.Require(r.Context())
	if err != nil {
		httputil.WriteTenantRequired(w)
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	view, err := h.store.Get(r.Context(), scope, id)
	if err != nil {
		writeStoreError(w, r, err, "failed to fetch activity log")
		return
	}
	httputil.WriteSuccess(w, view)
}

// filterOptions handles GET /activity-logs/filter-options
func (h *Handlers) filterOptions(w http.ResponseWriter, r *http.Request) {
	scope, err := tenancy.Require(r.Context())
	if err != nil {
		httputil.WriteTenantRequired(w)
		return
	}
	opts, err := h.store.FilterOptions(r.Context(), scope)
	if err != nil {
		writeStoreError(w, r, err, "failed to fetch filter options")
		return
	}
	httputil.WriteSuccess(w, opts)
}

// statistics handles GET /activity-logs/statistics?days=N
func (h *Handlers) statistics(w http.ResponseWriter, r *http.Request) {
	scope, err := tenancy.Require(r.Context())
	if err != nil {
		httputil.WriteTenantRequired(w)
		return
	}
	cfg := h.store.Config()
	days, err := httputil.ParseQueryInt(r, "days", cfg.DefaultStatsDays)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if days < 1 || days > cfg.MaxStatsDays {
		httputil.WriteValidationErrors(w, map[string]string{
			"days": fmt.Sprintf("days must be between 1 and %d", cfg.MaxStatsDays),
		})
		return
	}
	stats, err := h.store.Statistics(r.Context(), scope, days)
	if err != nil {
		writeStoreError(w, r, err, "failed to fetch statistics")
		return
	}
	httputil.WriteSuccess(w, stats)
}

// exportCSV handles GET /activity-logs/export by streaming the file
func (h *Handlers) exportCSV(w http.ResponseWriter, r *http.Request) {
	scope, err := tenancy.Require(r.Context())
	if err != nil {
		httputil.WriteTenantRequired(w)
		return
	}
	filter, ok := parseFilter(w, r)
	if !ok {
		return
	}

	filename := fmt.Sprintf("activity-logs-%s.csv", h.store.now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))

	n, err := h.store.ExportCSV(r.Context(), scope, filter, w)
	if err != nil {
		// Headers are already out once the first row is written
		observability.FromContext(r.Context()).WithError(err).WithField("rows", n).Error("activity log export failed")
		if n == 0 {
			httputil.WriteInternalError(w, "failed to export activity logs")
		}
		return
	}
	h.recorder.Record(r.Context(), Event{
		Action:  ActionLogsExported,
		Details: map[string]interface{}{"rows": n, "format": "csv"},
	})
}

// ArchiveResponse is returned for a stored export
type ArchiveResponse struct {
	DownloadURL string `json:"download_url"`
	Filename    string `json:"filename"`
	Rows        int    `json:"rows"`
}

// archive handles POST /activity-logs/export
func (h *Handlers) archive(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		httputil.WriteServiceUnavailable(w, "export archive is not configured")
		return
	}
	scope, err := tenancy.Require(r.Context())
	if err != nil {
		httputil.WriteTenantRequired(w)
		return
	}
	filter, ok := parseFilter(w, r)
	if !ok {
		return
	}

	export, err := h.exporter.Archive(r.Context(), scope, filter)
	if err != nil {
		writeStoreError(w, r, err, "failed to export activity logs")
		return
	}
	h.recorder.Record(r.Context(), Event{
		Action:  ActionLogsExported,
		Details: map[string]interface{}{"rows": export.Rows, "format": "csv", "filename": export.Filename},
	})

	downloadURL := strings.TrimSuffix(r.URL.Path, "/export") + "/download/" + export.Filename
	httputil.WriteSuccess(w, ArchiveResponse{DownloadURL: downloadURL, Filename: export.Filename, Rows: export.Rows})
}

// download handles GET /activity-logs/download/{filename}
func (h *Handlers) download(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		httputil.WriteServiceUnavailable(w, "export archive is not configured")
		return
	}
	scope, err := tenancy.Require(r.Context())
	if err != nil {
		httputil.WriteTenantRequired(w)
		return
	}
	filename := mux.Vars(r)["filename"]

	rc, err := h.exporter.Open(r.Context(), scope, filename)
	if errors.Is(err, ErrNotFound) {
		httputil.WriteNotFound(w, "export not found")
		return
	}
	if err != nil {
		writeStoreError(w, r, err, "failed to download export")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	if _, err := io.Copy(w, rc); err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("export download interrupted")
	}
}

// CleanupRequest optionally overrides the configured retention
type CleanupRequest struct {
	RetentionDays int `json:"retention_days"`
}

// cleanup handles POST /activity-logs/cleanup for the caller's tenant
func (h *Handlers) cleanup(w http.ResponseWriter, r *http.Request) {
	scope, err := tenancy.Require(r.Context())
	if err != nil {
		httputil.WriteTenantRequired(w)
		return
	}
	req := CleanupRequest{RetentionDays: h.retentionDays}
	if r.ContentLength > 0 {
		if !httputil.ParseJSONOrError(w, r, &req) {
			return
		}
		if req.RetentionDays == 0 {
			req.RetentionDays = h.retentionDays
		}
	}
	if req.RetentionDays < 1 {
		httputil.WriteValidationErrors(w, map[string]string{
			"retention_days": "retention_days must be at least 1",
		})
		return
	}

	result, err := h.store.Cleanup(r.Context(), scope, req.RetentionDays)
	if err != nil {
		writeStoreError(w, r, err, "failed to clean up activity logs")
		return
	}
	httputil.WriteSuccess(w, result)
}
