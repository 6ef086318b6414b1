// Package events publishes notification lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"fieldops.io/fieldops/internal/notification"
)

// EventCreated is the type of the event emitted per inserted notification.
const EventCreated = "notification.created"

// CreatedEvent is the JSON payload of one notification.created message.
type CreatedEvent struct {
	Type           string                  `json:"type"`
	RunID          string                  `json:"run_id"`
	NotificationID int64                   `json:"notification_id"`
	Recipient      string                  `json:"recipient"`
	Category       string                  `json:"category"`
	Subtype        string                  `json:"subtype"`
	Severity       string                  `json:"severity"`
	Title          string                  `json:"title"`
	DedupKey       string                  `json:"dedup_key,omitempty"`
	Related        *notification.EntityRef `json:"related_entity,omitempty"`
	OccurredAt     time.Time               `json:"occurred_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher implements notification.EventPublisher on a kafka-go writer.
type Publisher struct {
	writer messageWriter
	now    func() time.Time
}

// NewPublisher creates a publisher for topic on brokers.
func NewPublisher(brokers []string, topic string) *Publisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &Publisher{writer: w, now: time.Now}
}

// PublishCreated writes one message per notification, keyed by recipient so a
// recipient's events stay ordered within a partition.
func (p *Publisher) PublishCreated(ctx context.Context, runID string, created []notification.Notification) error {
	if len(created) == 0 {
		return nil
	}
	at := p.now().UTC()
	msgs := make([]kafka.Message, 0, len(created))
	for _, n := range created {
		payload, err := json.Marshal(CreatedEvent{
			Type:           EventCreated,
			RunID:          runID,
			NotificationID: n.ID,
			Recipient:      n.Recipient,
			Category:       n.Category,
			Subtype:        n.Subtype,
			Severity:       n.Severity.String(),
			Title:          n.Title,
			DedupKey:       n.DedupKey,
			Related:        n.Related,
			OccurredAt:     at,
		})
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(n.Recipient),
			Value: payload,
			Time:  at,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(EventCreated)},
			},
		})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d events: %w", len(msgs), err)
	}
	return nil
}

// Close flushes pending writes.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Noop discards events. Used when no brokers are configured.
type Noop struct{}

// PublishCreated does nothing.
func (Noop) PublishCreated(context.Context, string, []notification.Notification) error { return nil }

var (
	_ notification.EventPublisher = (*Publisher)(nil)
	_ notification.EventPublisher = Noop{}
)
