// Package jobs defines River job types for background maintenance.
//
// Notification generation itself is never queued: it runs synchronously
// inside the trigger request.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"fieldops.io/fieldops/internal/pkg/logger"
)

// DefaultNotificationRetention is how long dismissed or expired notifications are kept.
const DefaultNotificationRetention = 90 * 24 * time.Hour

// NotificationPurger deletes notifications that stopped being live before cutoff.
type NotificationPurger interface {
	DeleteStaleNotifications(ctx context.Context, cutoff time.Time) (int64, error)
}

// NotificationCleanupArgs is a periodic maintenance job that removes
// dismissed and expired notifications past retention.
type NotificationCleanupArgs struct{}

// Kind returns the job kind identifier for periodic notification cleanup.
func (NotificationCleanupArgs) Kind() string { return "notification_cleanup" }

// InsertOpts ensures at most one cleanup job is enqueued within the same day.
func (NotificationCleanupArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 1,
		UniqueOpts: river.UniqueOpts{
			ByPeriod: 24 * time.Hour,
			ByQueue:  true,
			ByArgs:   true,
		},
	}
}

// NotificationCleanupWorker purges notifications older than the retention window.
type NotificationCleanupWorker struct {
	river.WorkerDefaults[NotificationCleanupArgs]
	purger    NotificationPurger
	retention time.Duration
	now       func() time.Time
}

// NewNotificationCleanupWorker creates a cleanup worker. Non-positive retention
// falls back to the 90-day default.
func NewNotificationCleanupWorker(purger NotificationPurger, retention time.Duration) *NotificationCleanupWorker {
	if retention <= 0 {
		retention = DefaultNotificationRetention
	}
	return &NotificationCleanupWorker{
		purger:    purger,
		retention: retention,
		now:       time.Now,
	}
}

// Work deletes stale notification rows.
func (w *NotificationCleanupWorker) Work(ctx context.Context, _ *river.Job[NotificationCleanupArgs]) error {
	if w == nil || w.purger == nil {
		return fmt.Errorf("notification cleanup worker is not initialized")
	}

	cutoff := w.now().UTC().Add(-w.retention)
	deleted, err := w.purger.DeleteStaleNotifications(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("delete stale notifications before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	logger.Info("notification cleanup completed",
		zap.Int64("deleted_rows", deleted),
		zap.String("cutoff", cutoff.Format(time.RFC3339)),
		zap.Duration("retention", w.retention),
	)
	return nil
}
