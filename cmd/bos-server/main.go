package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/async"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/audit"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/auth"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/authz"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/catalog"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/config"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/httputil"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/middleware"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/observability"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/orgs"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/rbac"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/storage"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/storage/postgres"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/tenancy"
)

var version = "dev"

func main() {
	migrate := flag.Bool("migrate", false, "Apply database migrations before serving")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", cfg.Observability.OTelServiceName)

	if err := run(cfg, logger, *migrate); err != nil {
		logger.WithError(err).Error("server exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger, migrate bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = observability.WithLogger(ctx, logger)

	telemetry, err := observability.InitTelemetry(ctx, cfg.OTel(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("telemetry shutdown failed")
		}
	}()

	dbs, err := postgres.NewConnectionManager(ctx, postgres.ConfigFromStorage(cfg.Storage), logger)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer dbs.Close()

	if migrate {
		applied, err := postgres.Migrate(ctx, dbs.Primary())
		if err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
		logger.WithField("applied", applied).Info("migrations applied")
	}

	redisClient, err := postgres.NewRedisClient(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	if redisClient == nil {
		logger.Warn("redis not configured; permission cache and rate limits are per-process")
	} else {
		defer redisClient.Close()
	}

	var metrics *observability.Metrics
	registry := prometheus.NewRegistry()
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	objects, err := storage.NewObjectStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open export archive: %w", err)
	}

	// Domain wiring
	modules := catalog.Default()
	directory := orgs.NewCachedDirectory(orgs.NewDirectory(dbs.Primary()), cfg.Authz.TenantCacheSize, cfg.Authz.TenantCacheTTL)
	roleStore := rbac.NewStore(dbs.Primary(), modules)
	sessions := auth.NewSessionStore(dbs.Primary())

	auditStore := audit.NewStore(dbs, audit.Config{
		DefaultPageSize:  cfg.Audit.DefaultPageSize,
		MaxPageSize:      cfg.Audit.MaxPageSize,
		ExportMaxRows:    cfg.Audit.ExportMaxRows,
		CleanupBatchSize: cfg.Audit.CleanupBatchSize,
	}, metrics)
	recorder := audit.NewBestEffortRecorder(auditStore, 5*time.Second)

	resolver := authz.NewResolver(roleStore, redisClient, authz.ResolverConfig{
		CacheSize:           cfg.Authz.CacheSize,
		CacheTTL:            cfg.Authz.CacheTTL,
		SharedCacheTTL:      cfg.Authz.SharedCacheTTL,
		InvalidationChannel: cfg.Authz.InvalidationChannel,
		KeyPrefix:           authz.DefaultResolverConfig().KeyPrefix,
	}, metrics)
	enforcer := authz.NewEnforcer(resolver, authz.NewEvaluator(modules, metrics), recorder)
	listenerDone := async.SafeGo(ctx, 0, "permission invalidation listener", resolver.Listen)

	var exporter *audit.Exporter
	if objects != nil {
		exporter = audit.NewExporter(auditStore, objects)
	}

	var limiter middleware.Limiter
	if cfg.Server.RateLimitPerMinute > 0 {
		limits := middleware.RateLimitConfig{
			RequestsPerWindow: cfg.Server.RateLimitPerMinute,
			WindowDuration:    time.Minute,
			BurstSize:         cfg.Server.RateLimitPerMinute / 10,
		}
		if redisClient != nil {
			limiter = middleware.NewDistributedRateLimiter(redisClient, limits, "bos:ratelimit")
		} else {
			local := middleware.NewRateLimiter(limits)
			async.Every(ctx, 5*time.Minute, "rate limiter prune", local.Prune)
			limiter = local
		}
	}

	clientIPs, err := middleware.NewClientIPResolver(cfg.Server.TrustedProxies)
	if err != nil {
		return err
	}

	// Routes
	router := mux.NewRouter()
	router.Use(
		httputil.RequestIDMiddleware,
		clientIPs.Middleware,
		httputil.RecoveryMiddleware,
		httputil.LoggingMiddleware(logger),
		observability.HTTPMetricsMiddleware(metrics),
		httputil.MaxBytesMiddleware(cfg.Server.MaxBodyBytes),
		audit.Middleware,
	)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(middleware.NewAuthMiddleware(sessions, false).Handler)
	if limiter != nil {
		api.Use(middleware.RateLimit(limiter))
	}

	roleHandlers := rbac.NewHandlers(roleStore, enforcer, resolver, recorder)
	roleHandlers.RegisterSelfRoutes(api)

	scoped := api.NewRoute().Subrouter()
	scoped.Use(tenancy.NewGuard(directory, metrics).Handler)
	catalog.NewHandlers(modules).RegisterRoutes(scoped)
	roleHandlers.RegisterRoutes(scoped)
	audit.NewHandlers(auditStore, exporter, enforcer, recorder, cfg.Audit.RetentionDays).RegisterRoutes(scoped)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      otelhttp.NewHandler(router, "bos-server"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics listen on their own port for probes and scrapers
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(dbs.Primary(), redisClient, version, metrics))
	if metrics != nil {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:              cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler:           healthMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if cfg.Audit.CleanupEnabled {
		scheduler, err := audit.NewRetentionScheduler(auditStore, cfg.Audit.CleanupSchedule, cfg.Audit.RetentionDays, newJobLogger(cfg))
		if err != nil {
			return err
		}
		scheduler.Start()
		defer scheduler.Stop()
		logger.WithField("schedule", cfg.Audit.CleanupSchedule).Info("activity log retention scheduled")
	}

	errCh := make(chan error, 2)
	go func() {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("health server: %w", err)
		}
	}()
	go func() {
		logger.WithFields(map[string]interface{}{
			"addr":    server.Addr,
			"version": version,
		}).Info("api server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case serveErr = <-errCh:
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("api server shutdown incomplete")
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("health server shutdown incomplete")
	}

	select {
	case <-listenerDone:
	case <-shutdownCtx.Done():
	}
	logger.Info("server stopped")
	return serveErr
}

// newJobLogger returns the logrus logger used by scheduled jobs
func newJobLogger(cfg *config.Config) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(cfg.Observability.LogLevel.String()); err == nil {
		l.SetLevel(level)
	}
	return l
}
