// Package notificationtest provides in-memory fakes of the notification
// stores and transports for tests.
package notificationtest

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"fieldops.io/fieldops/internal/notification"
)

// User is a directory entry.
type User struct {
	notification.Contact
	Role   string
	Active bool
}

// Store is an in-memory notification.Tx. Its insert honours the live dedup
// key uniqueness the database enforces. Source results are returned verbatim.
type Store struct {
	mu sync.Mutex

	Users         map[string]User
	Preferences   map[string]notification.Preference
	Templates     map[string]notification.EmailTemplate
	Notifications []notification.Notification
	Log           []notification.LogEntry
	Email         *notification.EmailConfig
	SMS           *notification.SMSProviderConfig

	Unstaffed      []notification.ScheduledJob
	Totals         []notification.MaterialTotals
	Past           []notification.ScheduledJob
	Crew           []notification.CrewAssignment
	CrewLines      []notification.CrewMaterial
	NoTimeEntry    []notification.CrewAssignment
	CompletedLines []notification.CrewMaterial

	// Fail makes the named method return an error.
	Fail map[string]error

	nextID int64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		Users:       map[string]User{},
		Preferences: map[string]notification.Preference{},
		Templates:   map[string]notification.EmailTemplate{},
		Fail:        map[string]error{},
	}
}

// AddUser registers an active user with an email address.
func (s *Store) AddUser(username, role, email string) {
	s.Users[username] = User{
		Contact: notification.Contact{Username: username, Email: email},
		Role:    role,
		Active:  true,
	}
}

// SetPreference stores a preference row.
func (s *Store) SetPreference(username, category string, enabled bool, method notification.DeliveryMethod) {
	s.Preferences[username+"/"+category] = notification.Preference{Enabled: enabled, Method: method}
}

// AddTemplate stores an active template.
func (s *Store) AddTemplate(key, subject, body string) {
	s.Templates[key] = notification.EmailTemplate{Key: key, Subject: subject, Body: body}
}

// Live returns the live notifications for recipient.
func (s *Store) Live(recipient string, now time.Time) []notification.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []notification.Notification
	for _, n := range s.Notifications {
		if n.Recipient == recipient && n.Live(now) {
			out = append(out, n)
		}
	}
	return out
}

func (s *Store) fail(name string) error {
	return s.Fail[name]
}

func (s *Store) GetPreference(_ context.Context, username, category string) (notification.Preference, bool, error) {
	if err := s.fail("GetPreference"); err != nil {
		return notification.Preference{}, false, err
	}
	p, ok := s.Preferences[username+"/"+category]
	return p, ok, nil
}

func (s *Store) HasLiveNotification(_ context.Context, key string, now time.Time) (bool, error) {
	if err := s.fail("HasLiveNotification"); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.Notifications {
		if n.DedupKey == key && n.Live(now) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) InsertNotification(_ context.Context, n *notification.Notification, now time.Time) (int64, bool, error) {
	if err := s.fail("InsertNotification"); err != nil {
		return 0, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.DedupKey != "" {
		for i := range s.Notifications {
			existing := &s.Notifications[i]
			if existing.DedupKey != n.DedupKey || existing.Dismissed {
				continue
			}
			if existing.Live(now) {
				return 0, false, nil
			}
			existing.Dismissed = true
		}
	}
	s.nextID++
	row := *n
	row.ID = s.nextID
	row.CreatedAt = now
	s.Notifications = append(s.Notifications, row)
	return row.ID, true, nil
}

func (s *Store) GetContact(_ context.Context, username string) (notification.Contact, bool, error) {
	if err := s.fail("GetContact"); err != nil {
		return notification.Contact{}, false, err
	}
	u, ok := s.Users[username]
	if !ok || !u.Active {
		return notification.Contact{}, false, nil
	}
	return u.Contact, true, nil
}

func (s *Store) ActiveUsersWithRoles(_ context.Context, roles ...string) ([]string, error) {
	if err := s.fail("ActiveUsersWithRoles"); err != nil {
		return nil, err
	}
	var out []string
	for name, u := range s.Users {
		if u.Active && slices.Contains(roles, u.Role) {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (s *Store) GetEmailTemplate(_ context.Context, key string) (notification.EmailTemplate, bool, error) {
	if err := s.fail("GetEmailTemplate"); err != nil {
		return notification.EmailTemplate{}, false, err
	}
	t, ok := s.Templates[key]
	return t, ok, nil
}

func (s *Store) AppendCommunicationLog(_ context.Context, e notification.LogEntry) error {
	if err := s.fail("AppendCommunicationLog"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Log = append(s.Log, e)
	return nil
}

func (s *Store) ActiveEmailConfig(context.Context) (notification.EmailConfig, bool, error) {
	if err := s.fail("ActiveEmailConfig"); err != nil {
		return notification.EmailConfig{}, false, err
	}
	if s.Email == nil {
		return notification.EmailConfig{}, false, nil
	}
	return *s.Email, true, nil
}

func (s *Store) ActiveSMSProviderConfig(context.Context) (notification.SMSProviderConfig, bool, error) {
	if err := s.fail("ActiveSMSProviderConfig"); err != nil {
		return notification.SMSProviderConfig{}, false, err
	}
	if s.SMS == nil {
		return notification.SMSProviderConfig{}, false, nil
	}
	return *s.SMS, true, nil
}

func inRange(d, from, to time.Time) bool {
	return !d.Before(from) && !d.After(to)
}

func (s *Store) SchedulesWithoutCrew(_ context.Context, from, to time.Time) ([]notification.ScheduledJob, error) {
	if err := s.fail("SchedulesWithoutCrew"); err != nil {
		return nil, err
	}
	var out []notification.ScheduledJob
	for _, j := range s.Unstaffed {
		if inRange(j.ScheduledDate, from, to) {
			out = append(out, j)
		}
	}
	return out, nil
}

func (s *Store) MaterialTotalsForSchedules(_ context.Context, from, to time.Time) ([]notification.MaterialTotals, error) {
	if err := s.fail("MaterialTotalsForSchedules"); err != nil {
		return nil, err
	}
	var out []notification.MaterialTotals
	for _, t := range s.Totals {
		if inRange(t.ScheduledDate, from, to) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) SchedulesBefore(_ context.Context, day time.Time) ([]notification.ScheduledJob, error) {
	if err := s.fail("SchedulesBefore"); err != nil {
		return nil, err
	}
	var out []notification.ScheduledJob
	for _, j := range s.Past {
		if j.ScheduledDate.Before(day) {
			out = append(out, j)
		}
	}
	return out, nil
}

func (s *Store) CrewAssignments(_ context.Context, from, to time.Time) ([]notification.CrewAssignment, error) {
	if err := s.fail("CrewAssignments"); err != nil {
		return nil, err
	}
	var out []notification.CrewAssignment
	for _, a := range s.Crew {
		if inRange(a.ScheduledDate, from, to) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) CrewMaterialLines(_ context.Context, from, to time.Time) ([]notification.CrewMaterial, error) {
	if err := s.fail("CrewMaterialLines"); err != nil {
		return nil, err
	}
	var out []notification.CrewMaterial
	for _, m := range s.CrewLines {
		if inRange(m.ScheduledDate, from, to) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Store) CrewAssignmentsWithoutTimeEntry(_ context.Context, from, to time.Time) ([]notification.CrewAssignment, error) {
	if err := s.fail("CrewAssignmentsWithoutTimeEntry"); err != nil {
		return nil, err
	}
	var out []notification.CrewAssignment
	for _, a := range s.NoTimeEntry {
		if inRange(a.ScheduledDate, from, to) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) CompletedCrewMaterialLines(context.Context) ([]notification.CrewMaterial, error) {
	if err := s.fail("CompletedCrewMaterialLines"); err != nil {
		return nil, err
	}
	return s.CompletedLines, nil
}

// InTx runs fn against the store and restores the notification and log
// state when fn fails.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx notification.Tx) error) error {
	if err := s.fail("InTx"); err != nil {
		return err
	}
	s.mu.Lock()
	notifications := slices.Clone(s.Notifications)
	log := slices.Clone(s.Log)
	next := s.nextID
	s.mu.Unlock()

	if err := fn(ctx, s); err != nil {
		s.mu.Lock()
		s.Notifications, s.Log, s.nextID = notifications, log, next
		s.mu.Unlock()
		return err
	}
	return nil
}

// ErrSend is a canned SMTP failure.
var ErrSend = errors.New("smtp: 535 authentication failed")

// Mailer records outbound email.
type Mailer struct {
	mu   sync.Mutex
	Sent []notification.OutboundEmail
	Err  error
}

func (m *Mailer) Send(_ context.Context, _ notification.EmailConfig, msg notification.OutboundEmail) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	m.Sent = append(m.Sent, msg)
	return "", nil
}

// SMSMessage is one text recorded by SMSClient.
type SMSMessage struct {
	To   string
	Body string
}

// SMSClient records outbound texts.
type SMSClient struct {
	mu   sync.Mutex
	Sent []SMSMessage
	Err  error
}

func (c *SMSClient) SendSMS(_ context.Context, _ notification.SMSProviderConfig, to, body string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return "", c.Err
	}
	c.Sent = append(c.Sent, SMSMessage{To: to, Body: body})
	return "SM" + to, nil
}

// Publisher records published events.
type Publisher struct {
	mu      sync.Mutex
	Batches [][]notification.Notification
	Err     error
}

func (p *Publisher) PublishCreated(_ context.Context, _ string, created []notification.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Batches = append(p.Batches, created)
	return p.Err
}

var (
	_ notification.Tx             = (*Store)(nil)
	_ notification.TxRunner       = (*Store)(nil)
	_ notification.MailSender     = (*Mailer)(nil)
	_ notification.SMSClient      = (*SMSClient)(nil)
	_ notification.EventPublisher = (*Publisher)(nil)
)
