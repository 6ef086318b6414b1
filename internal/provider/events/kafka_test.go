package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldops.io/fieldops/internal/notification"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

var fixedNow = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

func TestPublisher_PublishCreated(t *testing.T) {
	w := &recordingWriter{}
	p := &Publisher{writer: w, now: func() time.Time { return fixedNow }}

	created := []notification.Notification{
		{ID: 1, Recipient: "alice", Category: notification.CategorySchedule, Subtype: "no_crew", Severity: notification.SeverityError, Title: "No crew", DedupKey: "no_crew_alice_77", Related: &notification.EntityRef{Type: "job_schedule", ID: 77}},
		{ID: 2, Recipient: "bob", Category: notification.CategoryInventory, Subtype: "tech_shortage", Severity: notification.SeverityWarning, Title: "Shortage"},
	}
	require.NoError(t, p.PublishCreated(context.Background(), "run-1", created))
	require.Len(t, w.msgs, 2)

	assert.Equal(t, "alice", string(w.msgs[0].Key))
	assert.Equal(t, fixedNow, w.msgs[0].Time)

	var ev CreatedEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &ev))
	assert.Equal(t, EventCreated, ev.Type)
	assert.Equal(t, "run-1", ev.RunID)
	assert.Equal(t, int64(1), ev.NotificationID)
	assert.Equal(t, "error", ev.Severity)
	assert.Equal(t, "no_crew_alice_77", ev.DedupKey)
	assert.Equal(t, int64(77), ev.Related.ID)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublisher_EmptyAndErrors(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker down")}
	p := &Publisher{writer: w, now: time.Now}

	assert.NoError(t, p.PublishCreated(context.Background(), "run", nil))

	err := p.PublishCreated(context.Background(), "run", []notification.Notification{{ID: 1, Recipient: "a"}})
	assert.ErrorContains(t, err, "broker down")
}

func TestNoop(t *testing.T) {
	assert.NoError(t, Noop{}.PublishCreated(context.Background(), "run", []notification.Notification{{ID: 1}}))
}
