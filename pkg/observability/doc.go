// Package observability provides structured logging, Prometheus metrics, health
// checks and OpenTelemetry setup.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("tenant_id", 3).Info("role created")
//
// Handlers should use the request logger, which carries the request id:
//
//	observability.FromContext(r.Context()).WithError(err).Error("query failed")
//
// # Prometheus Metrics
//
// All Record* helpers accept a nil *Metrics, so packages can take metrics as an
// optional dependency:
//
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordDecision("products", "delete", "denied")
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, version, metrics)
//	observability.RegisterHealthRoutes(healthMux, checker)
//
// # OpenTelemetry
//
//	telemetry, err := observability.InitTelemetry(ctx, cfg, logger)
//	defer telemetry.Shutdown(ctx)
package observability
