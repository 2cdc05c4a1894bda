package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/audit"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/auth"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/config"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/observability"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/storage/postgres"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/tenancy"
)

var (
	cleanupSchedule = flag.String("cleanup-schedule", "", "Cron schedule for activity log cleanup (default: BOS_AUDIT_CLEANUP_SCHEDULE)")
	sessionSchedule = flag.String("session-schedule", "30 * * * *", "Cron schedule for expired token purge (default: hourly at :30)")
	retentionDays   = flag.Int("retention-days", 0, "Days of activity logs to keep (default: BOS_AUDIT_RETENTION_DAYS)")
	tenantID        = flag.Int64("tenant", 0, "Only clean this tenant's logs. Only used with --run-once")
	runOnce         = flag.Bool("run-once", false, "Run cleanup once and exit")
)

func main() {
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.Observability.LogLevel.String()); err == nil {
		log.SetLevel(level)
	}
	if *retentionDays == 0 {
		*retentionDays = cfg.Audit.RetentionDays
	}
	if *cleanupSchedule == "" {
		*cleanupSchedule = cfg.Audit.CleanupSchedule
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	// Store and session code log through the observability logger
	ctx = observability.WithLogger(ctx, observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", "bos-janitor"))

	dbs, err := postgres.NewConnectionManager(ctx, postgres.ConfigFromStorage(cfg.Storage), nil)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer dbs.Close()

	store := audit.NewStore(dbs, audit.Config{CleanupBatchSize: cfg.Audit.CleanupBatchSize}, nil)
	sessions := auth.NewSessionStore(dbs.Primary())

	if *runOnce {
		start := time.Now()
		var result *audit.CleanupResult
		if *tenantID > 0 {
			scope, scopeErr := tenancy.For(*tenantID)
			if scopeErr != nil {
				log.WithError(scopeErr).Fatal("Invalid tenant")
			}
			result, err = store.Cleanup(ctx, scope, *retentionDays)
		} else {
			result, err = store.CleanupAll(ctx, *retentionDays)
		}
		if err != nil {
			log.WithError(err).Fatal("Cleanup failed")
		}
		log.WithFields(logrus.Fields{
			"tenant_id":      *tenantID,
			"retention_days": result.RetentionDays,
			"deleted_count":  result.DeletedCount,
			"duration_ms":    time.Since(start).Milliseconds(),
		}).Info("Cleanup completed")

		purged, err := sessions.PurgeExpired(ctx)
		if err != nil {
			log.WithError(err).Fatal("Token purge failed")
		}
		log.WithField("purged", purged).Info("Expired tokens purged")
		return
	}

	// Scheduled mode
	scheduler, err := audit.NewRetentionScheduler(store, *cleanupSchedule, *retentionDays, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to schedule cleanup")
	}

	c := cron.New()
	_, err = c.AddFunc(*sessionSchedule, func() {
		purged, err := sessions.PurgeExpired(ctx)
		if err != nil {
			log.WithError(err).Error("Token purge failed")
			return
		}
		log.WithField("purged", purged).Info("Expired tokens purged")
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to schedule token purge")
	}

	scheduler.Start()
	c.Start()
	log.WithFields(logrus.Fields{
		"cleanup_schedule": *cleanupSchedule,
		"session_schedule": *sessionSchedule,
		"retention_days":   *retentionDays,
	}).Info("BOS janitor started")

	<-ctx.Done()
	log.Info("Shutting down janitor")

	<-c.Stop().Done()
	scheduler.Stop()
	log.Info("Janitor stopped")
}
