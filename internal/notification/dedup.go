package notification

import (
	"context"
	"fmt"
	"time"
)

// Deduplicator checks whether a dedup key already has a live notification.
// The check is an optimisation; the unique index on the key is the guarantee.
type Deduplicator struct {
	store NotificationStore
	now   func() time.Time
}

// NewDeduplicator creates a Deduplicator. now defaults to time.Now.
func NewDeduplicator(store NotificationStore, now func() time.Time) *Deduplicator {
	if now == nil {
		now = time.Now
	}
	return &Deduplicator{store: store, now: now}
}

// IsLive reports whether key has a non-dismissed, non-expired notification.
// An empty key is never live.
func (d *Deduplicator) IsLive(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	live, err := d.store.HasLiveNotification(ctx, key, d.now())
	if err != nil {
		return false, fmt.Errorf("check dedup key %s: %w", key, err)
	}
	return live, nil
}
