package notification

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"fieldops.io/fieldops/internal/pkg/logger"
)

// InAppChannel writes notifications to the recipient's inbox.
type InAppChannel struct {
	prefs *PreferenceResolver
	dedup *Deduplicator
	store NotificationStore
	now   func() time.Time
}

// NewInAppChannel creates the in-app delivery channel.
func NewInAppChannel(prefs *PreferenceResolver, dedup *Deduplicator, store NotificationStore, now func() time.Time) *InAppChannel {
	if now == nil {
		now = time.Now
	}
	return &InAppChannel{prefs: prefs, dedup: dedup, store: store, now: now}
}

// Deliver resolves the recipient's preference and persists c when the
// preference routes to the inbox. It returns the new row id on OutcomeSent.
func (ch *InAppChannel) Deliver(ctx context.Context, c Candidate) (int64, Outcome, error) {
	pref, err := ch.prefs.Resolve(ctx, c.Recipient, c.Category)
	if err != nil {
		return 0, OutcomeFault, err
	}
	return ch.DeliverWith(ctx, c, pref)
}

// DeliverWith is Deliver with an already resolved preference.
func (ch *InAppChannel) DeliverWith(ctx context.Context, c Candidate, pref Preference) (int64, Outcome, error) {
	if !pref.Enabled {
		return 0, OutcomeDisabled, nil
	}
	if !pref.Method.IncludesInApp() {
		return 0, OutcomeSkipped, nil
	}

	live, err := ch.dedup.IsLive(ctx, c.DedupKey)
	if err != nil {
		return 0, OutcomeFault, err
	}
	if live {
		return 0, OutcomeDuplicate, nil
	}

	id, inserted, err := ch.store.InsertNotification(ctx, c.Notification(), ch.now())
	if err != nil {
		return 0, OutcomeFault, fmt.Errorf("insert notification for %s: %w", c.Recipient, err)
	}
	if !inserted {
		// Lost a race with a concurrent run; the other insert stands.
		logger.Debug("notification insert suppressed by dedup key",
			zap.String("recipient", c.Recipient),
			zap.String("dedup_key", c.DedupKey),
		)
		return 0, OutcomeDuplicate, nil
	}

	logger.Debug("notification created",
		zap.Int64("id", id),
		zap.String("recipient", c.Recipient),
		zap.String("subtype", c.Subtype),
		zap.String("severity", c.Severity.String()),
	)
	return id, OutcomeSent, nil
}
