package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/observability"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/tenancy"
)

const cutoffQuery = `SELECT NOW() - make_interval(days => $1)`

// CleanupResult reports one retention run
type CleanupResult struct {
	DeletedCount  int64     `json:"deleted_count"`
	RetentionDays int       `json:"retention_days"`
	Cutoff        time.Time `json:"cutoff"`
}

// Cleanup deletes the tenant's entries older than retentionDays
func (s *Store) Cleanup(ctx context.Context, scope tenancy.Scope, retentionDays int) (*CleanupResult, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	return s.cleanup(tenancy.WithScope(ctx, scope), &scope, retentionDays)
}

// CleanupAll deletes entries older than retentionDays across every tenant
func (s *Store) CleanupAll(ctx context.Context, retentionDays int) (*CleanupResult, error) {
	return s.cleanup(ctx, nil, retentionDays)
}

// cleanup fixes the cutoff once, then deletes in id batches until a short
// batch. Rows appended meanwhile are newer than the cutoff and never match.
// The cutoff is read from the database clock, the same clock that stamps
// created_at.
func (s *Store) cleanup(ctx context.Context, scope *tenancy.Scope, retentionDays int) (*CleanupResult, error) {
	if retentionDays < 1 {
		return nil, fmt.Errorf("retention days must be at least 1, got %d", retentionDays)
	}
	start := time.Now()
	db := s.dbs.Primary()
	result := &CleanupResult{RetentionDays: retentionDays}
	if err := db.QueryRowContext(ctx, cutoffQuery, retentionDays).Scan(&result.Cutoff); err != nil {
		return nil, fmt.Errorf("failed to compute retention cutoff: %w", err)
	}

	inner := `SELECT id FROM activity_logs WHERE created_at < $1`
	args := []interface{}{result.Cutoff}
	if scope != nil {
		inner += ` AND tenant_id = $2`
		args = append(args, scope.TenantID())
	}
	inner += fmt.Sprintf(` ORDER BY id LIMIT $%d`, len(args)+1)
	args = append(args, s.config.CleanupBatchSize)
	query := `DELETE FROM activity_logs WHERE id IN (` + inner + `)`

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		res, err := db.ExecContext(ctx, query, args...)
		if err != nil {
			return result, fmt.Errorf("failed to delete old activity logs: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return result, fmt.Errorf("failed to count deleted activity logs: %w", err)
		}
		result.DeletedCount += n
		if n < int64(s.config.CleanupBatchSize) {
			break
		}
	}
	s.metrics.RecordCleanup(result.DeletedCount, time.Since(start))

	details := map[string]interface{}{
		"deleted_count":  result.DeletedCount,
		"retention_days": retentionDays,
	}
	if _, err := s.Record(ctx, Event{Action: ActionLogsCleanup, Details: details}); err != nil {
		observability.FromContext(ctx).WithError(err).Error("failed to record cleanup")
	}
	return result, nil
}

// RetentionScheduler runs CleanupAll on a cron schedule
type RetentionScheduler struct {
	store         *Store
	retentionDays int
	schedule      string
	logger        *logrus.Logger
	cron          *cron.Cron
}

// NewRetentionScheduler validates schedule and prepares the job. It does not
// start until Start is called.
func NewRetentionScheduler(store *Store, schedule string, retentionDays int, logger *logrus.Logger) (*RetentionScheduler, error) {
	if logger == nil {
		logger = logrus.New()
	}
	s := &RetentionScheduler{
		store:         store,
		retentionDays: retentionDays,
		schedule:      schedule,
		logger:        logger,
		cron:          cron.New(),
	}
	if _, err := s.cron.AddFunc(schedule, func() {
		_, _ = s.RunOnce(context.Background())
	}); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}
	return s, nil
}

// RunOnce performs one global cleanup and logs the outcome
func (s *RetentionScheduler) RunOnce(ctx context.Context) (*CleanupResult, error) {
	entry := s.logger.WithFields(logrus.Fields{
		"job":            "activity_log_retention",
		"retention_days": s.retentionDays,
	})
	entry.Info("starting activity log cleanup")

	start := time.Now()
	result, err := s.store.CleanupAll(ctx, s.retentionDays)
	if err != nil {
		entry.WithError(err).Error("activity log cleanup failed")
		return result, err
	}
	entry.WithFields(logrus.Fields{
		"deleted_count": result.DeletedCount,
		"cutoff":        result.Cutoff.Format(time.RFC3339),
		"duration_ms":   time.Since(start).Milliseconds(),
	}).Info("activity log cleanup completed")
	return result, nil
}

// Start begins running on schedule
func (s *RetentionScheduler) Start() {
	s.cron.Start()
	s.logger.WithField("schedule", s.schedule).Info("activity log retention scheduler started")
}

// Stop halts the schedule and waits for a running cleanup to finish
func (s *RetentionScheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("activity log retention scheduler stopped")
}
