package notification

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fieldops.io/fieldops/internal/pkg/logger"
)

// ManagerRoles are the roles that receive manager-facing broadcasts.
var ManagerRoles = []string{"admin", "manager"}

// Env is the clock a rule evaluates against.
type Env struct {
	Now      time.Time
	Location *time.Location
	// Today is the run's local civil date at UTC midnight, comparable with
	// ScheduledJob.ScheduledDate.
	Today time.Time
}

// NewEnv derives the civil date of now in loc.
func NewEnv(now time.Time, loc *time.Location) Env {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	return Env{
		Now:      now,
		Location: loc,
		Today:    time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC),
	}
}

// AddDays returns Today shifted by n days.
func (e Env) AddDays(n int) time.Time {
	return e.Today.AddDate(0, 0, n)
}

// DaysUntil returns the number of civil days from Today to date; negative for past dates.
func (e Env) DaysUntil(date time.Time) int {
	d := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	return int(d.Sub(e.Today).Hours() / 24)
}

// StartOfDayAfter returns local midnight following the civil date.
func (e Env) StartOfDayAfter(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day()+1, 0, 0, 0, 0, e.Location)
}

// Proposals are what one evaluator wants delivered.
type Proposals struct {
	// Broadcasts go to every active admin and manager.
	Broadcasts []Broadcast
	// Candidates are already addressed to one recipient.
	Candidates []Candidate
}

// Evaluator scans operational state and proposes notifications.
type Evaluator interface {
	Name() string
	Evaluate(ctx context.Context, src Source, env Env) (Proposals, error)
}

// EventPublisher is told about notifications after their transaction commits.
type EventPublisher interface {
	PublishCreated(ctx context.Context, runID string, created []Notification) error
}

// RuleError reports which rule aborted a generation.
type RuleError struct {
	Rule string
	Err  error
}

func (e *RuleError) Error() string { return fmt.Sprintf("rule %s: %v", e.Rule, e.Err) }

func (e *RuleError) Unwrap() error { return e.Err }

// RunError is the caller-visible record of a failed sub-generation.
// Details stay in the server log under Reference.
type RunError struct {
	Scope     string `json:"scope"`
	Rule      string `json:"rule,omitempty"`
	Reference string `json:"reference"`
}

// Summary aggregates one trigger call.
type Summary struct {
	Message              string         `json:"message"`
	NotificationsCreated int            `json:"notifications_created"`
	RecipientsNotified   int            `json:"recipients_notified"`
	Rules                map[string]int `json:"rules"`
	Errors               []RunError     `json:"errors,omitempty"`
	// OutboundUnavailable is set when transport settings could not be loaded
	// and the run fell back to in-app delivery.
	OutboundUnavailable bool `json:"outbound_unavailable,omitempty"`

	recipients map[string]struct{}
}

func newSummary() *Summary {
	return &Summary{Rules: map[string]int{}, recipients: map[string]struct{}{}}
}

func (s *Summary) addRecipients(names []string) {
	for _, n := range names {
		s.recipients[n] = struct{}{}
	}
	s.RecipientsNotified = len(s.recipients)
}

func (s *Summary) merge(o *Summary) {
	for rule, n := range o.Rules {
		s.Rules[rule] += n
	}
	s.NotificationsCreated += o.NotificationsCreated
	s.OutboundUnavailable = s.OutboundUnavailable || o.OutboundUnavailable
	names := make([]string, 0, len(o.recipients))
	for n := range o.recipients {
		names = append(names, n)
	}
	s.addRecipients(names)
}

// GeneratorConfig wires a Generator.
type GeneratorConfig struct {
	// Route is the configured outbound route; see ResolveTransport.
	Route    string
	SentBy   string
	Location *time.Location
	Now      func() time.Time

	Mailer MailSender
	SMS    SMSClient
	Events EventPublisher

	Manager    []Evaluator
	Technician []Evaluator
}

// Generator runs rule sets and feeds their proposals through a Notifier.
type Generator struct {
	tx  TxRunner
	cfg GeneratorConfig
}

// NewGenerator creates a Generator.
func NewGenerator(tx TxRunner, cfg GeneratorConfig) *Generator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Route == "" {
		cfg.Route = RouteInAppOnly
	}
	return &Generator{tx: tx, cfg: cfg}
}

// GenerateManager runs the manager-facing rules in one transaction.
func (g *Generator) GenerateManager(ctx context.Context) (*Summary, error) {
	s, err := g.run(ctx, "manager", g.cfg.Manager)
	if err != nil {
		return nil, err
	}
	s.Message = fmt.Sprintf("Generated %d manager notifications", s.NotificationsCreated)
	return s, nil
}

// GenerateTechnician runs the technician-facing rules in one transaction.
func (g *Generator) GenerateTechnician(ctx context.Context) (*Summary, error) {
	s, err := g.run(ctx, "technician", g.cfg.Technician)
	if err != nil {
		return nil, err
	}
	s.Message = fmt.Sprintf("Generated %d technician notifications", s.NotificationsCreated)
	return s, nil
}

// GenerateAll runs both rule sets in separate transactions. A failed
// sub-generation is rolled back and reported in Errors; the other still runs.
func (g *Generator) GenerateAll(ctx context.Context) *Summary {
	total := newSummary()
	for _, sub := range []struct {
		scope string
		rules []Evaluator
	}{
		{"manager", g.cfg.Manager},
		{"technician", g.cfg.Technician},
	} {
		s, err := g.run(ctx, sub.scope, sub.rules)
		if err != nil {
			ref := uuid.NewString()
			re := RunError{Scope: sub.scope, Reference: ref}
			var ruleErr *RuleError
			if errors.As(err, &ruleErr) {
				re.Rule = ruleErr.Rule
			}
			logger.Error("notification generation failed",
				zap.String("scope", sub.scope),
				zap.String("rule", re.Rule),
				zap.String("reference", ref),
				zap.Error(err),
			)
			total.Errors = append(total.Errors, re)
			continue
		}
		total.merge(s)
	}
	total.Message = fmt.Sprintf("Generated %d notifications", total.NotificationsCreated)
	if len(total.Errors) > 0 {
		total.Message += fmt.Sprintf(" (%d of 2 generations failed)", len(total.Errors))
	}
	return total
}

func (g *Generator) run(ctx context.Context, scope string, rules []Evaluator) (*Summary, error) {
	runID := uuid.NewString()
	env := NewEnv(g.cfg.Now(), g.cfg.Location)
	summary := newSummary()
	var created []Notification

	log := logger.With(zap.String("run_id", runID), zap.String("scope", scope))
	start := time.Now()

	transport := g.resolveTransport(ctx, log)
	summary.OutboundUnavailable = transport == nil
	if transport == nil {
		transport = InAppOnly{}
	}

	err := g.tx.InTx(ctx, func(ctx context.Context, tx Tx) error {
		notifier := NewNotifier(tx, transport, Options{
			Mailer: g.cfg.Mailer,
			SMS:    g.cfg.SMS,
			SentBy: g.cfg.SentBy,
			Now:    g.cfg.Now,
		})

		var audience []string
		audienceLoaded := false

		for _, rule := range rules {
			props, err := rule.Evaluate(ctx, tx, env)
			if err != nil {
				return &RuleError{Rule: rule.Name(), Err: err}
			}

			if len(props.Broadcasts) > 0 && !audienceLoaded {
				audience, err = tx.ActiveUsersWithRoles(ctx, ManagerRoles...)
				if err != nil {
					return &RuleError{Rule: rule.Name(), Err: fmt.Errorf("load recipients: %w", err)}
				}
				audienceLoaded = true
			}

			before := len(notifier.Created())
			for _, b := range props.Broadcasts {
				if _, err := notifier.NotifyBroadcast(ctx, audience, b); err != nil {
					return &RuleError{Rule: rule.Name(), Err: err}
				}
			}
			for _, c := range props.Candidates {
				if _, err := notifier.Notify(ctx, c); err != nil {
					return &RuleError{Rule: rule.Name(), Err: err}
				}
			}
			summary.Rules[rule.Name()] = len(notifier.Created()) - before
		}

		created = notifier.Created()
		log = log.With(zap.String("route", notifier.Route()))
		summary.NotificationsCreated = len(created)
		summary.addRecipients(notifier.RecipientsNotified())
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("notification generation committed",
		zap.Int("created", summary.NotificationsCreated),
		zap.Int("recipients", summary.RecipientsNotified),
		zap.Strings("rules", sortedCounts(summary.Rules)),
		zap.Duration("elapsed", time.Since(start)),
	)

	if g.cfg.Events != nil && len(created) > 0 {
		if err := g.cfg.Events.PublishCreated(ctx, runID, created); err != nil {
			log.Warn("publish notification events failed", zap.Error(err))
		}
	}
	return summary, nil
}

// resolveTransport loads the outbound settings in their own transaction so a
// settings fault cannot poison the generation transaction. It returns nil when
// the settings are unreadable; in-app delivery proceeds regardless and the
// email outcome of every candidate is reported as not_configured.
func (g *Generator) resolveTransport(ctx context.Context, log *zap.Logger) DeliveryTransport {
	var transport DeliveryTransport
	err := g.tx.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		transport, err = ResolveTransport(ctx, g.cfg.Route, tx)
		return err
	})
	if err != nil {
		log.Error("outbound settings unavailable, delivering in-app only",
			zap.String("route", g.cfg.Route), zap.Error(err))
		return nil
	}
	return transport
}

func sortedCounts(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, fmt.Sprintf("%s=%d", k, v))
	}
	sort.Strings(out)
	return out
}
