// Package notification implements the notification pipeline: preference
// resolution, deduplication, delivery channels (in-app, email, SMS) and the
// generation orchestrator that feeds rule candidates through the Notifier.
//
// All writes for one generation run share a single database transaction.
package notification

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Categories are coarse notification types; preferences are keyed by category.
const (
	CategoryWorkOrder = "work_order"
	CategorySchedule  = "schedule"
	CategoryInventory = "inventory"
	CategoryTimesheet = "timesheet"
)

// Severity is ordered: info < warning < error.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

// String returns the persisted form.
func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "info"
	}
}

// ParseSeverity parses the persisted form.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info":
		return SeverityInfo, nil
	case "warning":
		return SeverityWarning, nil
	case "error":
		return SeverityError, nil
	default:
		return SeverityInfo, fmt.Errorf("unknown severity %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// DeliveryMethod is a user's chosen channel set for one category.
type DeliveryMethod string

const (
	DeliveryNone  DeliveryMethod = "none"
	DeliveryInApp DeliveryMethod = "in_app"
	DeliveryEmail DeliveryMethod = "email"
	DeliveryBoth  DeliveryMethod = "both"
)

// IncludesInApp reports whether the method routes to the in-app inbox.
func (m DeliveryMethod) IncludesInApp() bool {
	return m == DeliveryInApp || m == DeliveryBoth
}

// IncludesEmail reports whether the method routes to the outbound channel.
func (m DeliveryMethod) IncludesEmail() bool {
	return m == DeliveryEmail || m == DeliveryBoth
}

// Preference is the resolved delivery setting for (user, category).
type Preference struct {
	Enabled bool           `json:"enabled"`
	Method  DeliveryMethod `json:"delivery_method"`
}

// DefaultPreference applies when no row exists.
var DefaultPreference = Preference{Enabled: true, Method: DeliveryInApp}

// EntityRef points at the record a notification is about.
type EntityRef struct {
	Type string `json:"type"`
	ID   int64  `json:"id"`
}

// Notification is a persisted, recipient-scoped alert.
type Notification struct {
	ID        int64      `json:"id"`
	Recipient string     `json:"recipient"`
	Category  string     `json:"category"`
	Subtype   string     `json:"subtype"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Severity  Severity   `json:"severity"`
	Related   *EntityRef `json:"related_entity,omitempty"`
	ActionURL string     `json:"action_url,omitempty"`
	DedupKey  string     `json:"dedup_key,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Dismissed bool       `json:"dismissed"`
	CreatedAt time.Time  `json:"created_at"`
}

// Live reports whether n is neither dismissed nor expired at now.
func (n *Notification) Live(now time.Time) bool {
	if n.Dismissed {
		return false
	}
	return n.ExpiresAt == nil || n.ExpiresAt.After(now)
}

// Message is the recipient-independent part of a notification.
type Message struct {
	Category  string
	Subtype   string
	Severity  Severity
	Title     string
	Body      string
	Related   *EntityRef
	ActionURL string
	ExpiresAt *time.Time

	// EmailTemplate selects the outbound template; empty means in-app only.
	EmailTemplate  string
	EmailVariables map[string]any
}

// Candidate is an unpersisted notification proposed by a rule evaluator.
type Candidate struct {
	Recipient string
	DedupKey  string
	Message
}

// Notification converts the candidate into the row to persist.
func (c Candidate) Notification() *Notification {
	return &Notification{
		Recipient: c.Recipient,
		Category:  c.Category,
		Subtype:   c.Subtype,
		Title:     c.Title,
		Message:   c.Body,
		Severity:  c.Severity,
		Related:   c.Related,
		ActionURL: c.ActionURL,
		DedupKey:  c.DedupKey,
		ExpiresAt: c.ExpiresAt,
	}
}

// Broadcast is one alert fanned out to a role-filtered recipient set.
// Each recipient gets the key "{Rule}_{recipient}_{Ref}".
type Broadcast struct {
	Rule string
	Ref  string
	Message
}

// KeyFor returns the per-recipient dedup key.
func (b Broadcast) KeyFor(recipient string) string {
	return DedupKey(b.Rule, recipient, b.Ref)
}

// DedupKey joins a rule name, recipient and entity ids into a stable key.
func DedupKey(rule, recipient string, ids ...string) string {
	parts := make([]string, 0, len(ids)+2)
	parts = append(parts, rule, recipient)
	for _, id := range ids {
		if id != "" {
			parts = append(parts, id)
		}
	}
	return strings.Join(parts, "_")
}

// Contact is what the outbound channels need to reach a user.
type Contact struct {
	Username   string
	Email      string
	Phone      string
	SMSCarrier string
}

// LogEntry is one append-only communication log row.
type LogEntry struct {
	Channel           string
	Recipient         string
	Status            string
	Subject           string
	Preview           string
	Related           *EntityRef
	ErrorMessage      string
	ProviderMessageID string
	SentBy            string
	CreatedAt         time.Time
}

// Communication log statuses and channels.
const (
	LogStatusSent   = "sent"
	LogStatusFailed = "failed"

	LogChannelEmail = "email"
	LogChannelSMS   = "sms"
)

// EmailTemplate is a stored subject/body pair addressed by key.
type EmailTemplate struct {
	Key     string
	Subject string
	Body    string
}

// PreferenceStore reads per-user delivery preferences.
type PreferenceStore interface {
	// GetPreference returns found=false when no row exists.
	GetPreference(ctx context.Context, username, category string) (pref Preference, found bool, err error)
}

// NotificationStore persists in-app notifications.
type NotificationStore interface {
	// HasLiveNotification reports whether an undismissed, unexpired row with key exists.
	HasLiveNotification(ctx context.Context, dedupKey string, now time.Time) (bool, error)
	// InsertNotification returns inserted=false when the dedup key collides.
	InsertNotification(ctx context.Context, n *Notification, now time.Time) (id int64, inserted bool, err error)
}

// Directory resolves users.
type Directory interface {
	// GetContact returns found=false for unknown or inactive users.
	GetContact(ctx context.Context, username string) (Contact, bool, error)
	// ActiveUsersWithRoles returns usernames of active users holding any role.
	ActiveUsersWithRoles(ctx context.Context, roles ...string) ([]string, error)
}

// TemplateStore loads email templates.
type TemplateStore interface {
	// GetEmailTemplate returns found=false when the key is unknown or inactive.
	GetEmailTemplate(ctx context.Context, key string) (EmailTemplate, bool, error)
}

// CommunicationLog appends outbound attempt records.
type CommunicationLog interface {
	AppendCommunicationLog(ctx context.Context, entry LogEntry) error
}

// SettingsStore loads the active transport configuration rows.
type SettingsStore interface {
	// ActiveEmailConfig returns found=false when no email transport is configured.
	ActiveEmailConfig(ctx context.Context) (EmailConfig, bool, error)
	// ActiveSMSProviderConfig returns found=false when no SMS API is configured.
	ActiveSMSProviderConfig(ctx context.Context) (SMSProviderConfig, bool, error)
}

// Store is everything the delivery side of the pipeline reads or writes.
type Store interface {
	PreferenceStore
	NotificationStore
	Directory
	TemplateStore
	CommunicationLog
	SettingsStore
}
