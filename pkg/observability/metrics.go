package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization metrics
	AuthzDecisionsTotal  *prometheus.CounterVec
	PermissionCacheTotal *prometheus.CounterVec

	// Tenant guard
	TenantRejectionsTotal *prometheus.CounterVec

	// Audit metrics
	AuditWritesTotal        *prometheus.CounterVec
	AuditCleanupDeleted     prometheus.Counter
	AuditCleanupDuration    prometheus.Histogram
	AuditExportRowsTotal    prometheus.Counter
	DBConnectionsInUse      prometheus.Gauge
	DBConnectionsIdle       prometheus.Gauge
	RedisCommandErrorsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bos_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bos_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bos_authz_decisions_total",
				Help: "Authorization decisions by module, operation and result",
			},
			[]string{"module", "operation", "result"},
		),
		PermissionCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bos_permission_cache_total",
				Help: "Permission set lookups by cache tier and outcome",
			},
			[]string{"tier", "outcome"},
		),
		TenantRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bos_tenant_rejections_total",
				Help: "Requests rejected by the tenant guard",
			},
			[]string{"reason"},
		),
		AuditWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bos_audit_writes_total",
				Help: "Activity log writes by status",
			},
			[]string{"status"},
		),
		AuditCleanupDeleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bos_audit_cleanup_deleted_total",
				Help: "Activity log rows removed by retention cleanup",
			},
		),
		AuditCleanupDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bos_audit_cleanup_duration_seconds",
				Help:    "Retention cleanup duration in seconds",
				Buckets: []float64{.05, .1, .5, 1, 5, 10, 30, 60, 300},
			},
		),
		AuditExportRowsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bos_audit_export_rows_total",
				Help: "Rows written to CSV exports",
			},
		),
		DBConnectionsInUse: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bos_db_connections_in_use",
				Help: "Number of database connections in use",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bos_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		RedisCommandErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bos_redis_command_errors_total",
				Help: "Redis command failures by command",
			},
			[]string{"command"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthzDecisionsTotal,
		m.PermissionCacheTotal,
		m.TenantRejectionsTotal,
		m.AuditWritesTotal,
		m.AuditCleanupDeleted,
		m.AuditCleanupDuration,
		m.AuditExportRowsTotal,
		m.DBConnectionsInUse,
		m.DBConnectionsIdle,
		m.RedisCommandErrorsTotal,
	)

	return m
}

// RecordDecision counts an authorization decision
func (m *Metrics) RecordDecision(module, operation, result string) {
	if m == nil {
		return
	}
	m.AuthzDecisionsTotal.WithLabelValues(module, operation, result).Inc()
}

// RecordCache counts a permission cache lookup for the given tier ("local", "redis")
func (m *Metrics) RecordCache(tier string, hit bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.PermissionCacheTotal.WithLabelValues(tier, outcome).Inc()
}

// RecordTenantRejection counts a request turned away by the tenant guard
func (m *Metrics) RecordTenantRejection(reason string) {
	if m == nil {
		return
	}
	m.TenantRejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordAuditWrite counts an activity log insert attempt
func (m *Metrics) RecordAuditWrite(err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.AuditWritesTotal.WithLabelValues(status).Inc()
}

// RecordCleanup records a finished retention run
func (m *Metrics) RecordCleanup(deleted int64, duration time.Duration) {
	if m == nil {
		return
	}
	m.AuditCleanupDeleted.Add(float64(deleted))
	m.AuditCleanupDuration.Observe(duration.Seconds())
}

// RecordExportRows counts rows written to an export
func (m *Metrics) RecordExportRows(n int) {
	if m == nil {
		return
	}
	m.AuditExportRowsTotal.Add(float64(n))
}

// RecordRedisError counts a failed redis command
func (m *Metrics) RecordRedisError(command string) {
	if m == nil {
		return
	}
	m.RedisCommandErrorsTotal.WithLabelValues(command).Inc()
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests. Labels use the mux route
// template so ids do not explode label cardinality.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if metrics == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := r.URL.Path
			if current := mux.CurrentRoute(r); current != nil {
				if tpl, err := current.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
