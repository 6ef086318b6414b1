package events

import (
	"context"
	"time"

	"go.uber.org/zap"

	"fieldops.io/fieldops/internal/notification"
	"fieldops.io/fieldops/internal/pkg/logger"
	"fieldops.io/fieldops/internal/pkg/worker"
)

// DetachedSubmitter runs tasks outside the submitting request. Implemented
// by *worker.Pool.
type DetachedSubmitter interface {
	SubmitDetached(task worker.Task) error
}

// Async hands each batch to a worker pool so a trigger response never waits
// on the broker. Failures are logged by the task.
type Async struct {
	inner   notification.EventPublisher
	pool    DetachedSubmitter
	timeout time.Duration
}

// NewAsync wraps inner. Each publish gets at most timeout.
func NewAsync(inner notification.EventPublisher, pool DetachedSubmitter, timeout time.Duration) *Async {
	return &Async{inner: inner, pool: pool, timeout: timeout}
}

// PublishCreated queues the batch. The returned error only reports a full or
// closed pool.
func (a *Async) PublishCreated(_ context.Context, runID string, created []notification.Notification) error {
	if len(created) == 0 {
		return nil
	}
	return a.pool.SubmitDetached(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		if err := a.inner.PublishCreated(ctx, runID, created); err != nil {
			logger.Warn("publish notification events failed",
				zap.String("run_id", runID),
				zap.Int("events", len(created)),
				zap.Error(err),
			)
		}
	})
}

var _ notification.EventPublisher = (*Async)(nil)
