package notification

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"fieldops.io/fieldops/internal/pkg/logger"
)

// Options carries the transport clients a Notifier may need.
type Options struct {
	Mailer MailSender
	SMS    SMSClient
	SentBy string
	Now    func() time.Time
}

// Notifier delivers one notification to one recipient across the in-app
// channel and the outbound transport chosen when it was built.
type Notifier struct {
	store     Store
	prefs     *PreferenceResolver
	dedup     *Deduplicator
	inApp     *InAppChannel
	transport DeliveryTransport

	email   *EmailChannel
	gateway *SMSGatewayChannel
	smsAPI  *SMSAPIChannel

	created  []Notification
	notified map[string]struct{}
	now      func() time.Time
}

// NewNotifier wires the channels for transport. A nil transport means InAppOnly.
func NewNotifier(store Store, transport DeliveryTransport, opts Options) *Notifier {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if transport == nil {
		transport = InAppOnly{}
	}

	prefs := NewPreferenceResolver(store)
	dedup := NewDeduplicator(store, now)
	n := &Notifier{
		store:     store,
		prefs:     prefs,
		dedup:     dedup,
		inApp:     NewInAppChannel(prefs, dedup, store, now),
		transport: transport,
		notified:  map[string]struct{}{},
		now:       now,
	}

	switch t := transport.(type) {
	case EmailTransport:
		cfg := t.Config
		n.email = NewEmailChannel(&cfg, opts.Mailer, store, store, opts.SentBy, now)
	case SMSGateway:
		cfg := t.Config
		n.gateway = NewSMSGatewayChannel(NewEmailChannel(&cfg, opts.Mailer, store, store, opts.SentBy, now))
	case ThirdPartySMS:
		n.smsAPI = NewSMSAPIChannel(t.Config, opts.SMS, store, opts.SentBy, now)
	}
	return n
}

// Route returns the outbound route in use.
func (n *Notifier) Route() string { return n.transport.Route() }

// Notify delivers c according to the recipient's preference for c.Category.
// A live dedup key suppresses the outbound channel as well as the inbox, so a
// re-run against unchanged state sends nothing. The error is non-nil only for
// storage failures, which must abort the run.
func (n *Notifier) Notify(ctx context.Context, c Candidate) (Result, error) {
	pref, err := n.prefs.Resolve(ctx, c.Recipient, c.Category)
	if err != nil {
		return Result{InApp: OutcomeFault, Email: OutcomeFault}, err
	}
	if !pref.Enabled {
		return Result{InApp: OutcomeDisabled, Email: OutcomeDisabled}, nil
	}

	res := Result{Email: OutcomeSkipped}

	id, outcome, err := n.inApp.DeliverWith(ctx, c, pref)
	res.InApp = outcome
	if err != nil {
		return res, err
	}
	if outcome.Delivered() {
		row := c.Notification()
		row.ID = id
		row.CreatedAt = n.now()
		n.created = append(n.created, *row)
	}

	if pref.Method.IncludesEmail() && c.EmailTemplate != "" {
		live := outcome == OutcomeDuplicate
		if !pref.Method.IncludesInApp() {
			// Email-only recipients have no row of their own; an older live row
			// for the key (written under a previous preference) still counts.
			if live, err = n.dedup.IsLive(ctx, c.DedupKey); err != nil {
				res.Email = OutcomeFault
				return res, err
			}
		}
		if live {
			res.Email = OutcomeDuplicate
		} else {
			outcome, err := n.deliverOutbound(ctx, c)
			res.Email = outcome
			if err != nil {
				return res, err
			}
		}
	}

	if res.Any() {
		n.notified[c.Recipient] = struct{}{}
	}
	return res, nil
}

// NotifyBroadcast notifies every recipient with an independent dedup key and
// returns how many recipients got at least one delivery.
func (n *Notifier) NotifyBroadcast(ctx context.Context, recipients []string, b Broadcast) (int, error) {
	count := 0
	for _, r := range recipients {
		res, err := n.Notify(ctx, Candidate{Recipient: r, DedupKey: b.KeyFor(r), Message: b.Message})
		if err != nil {
			return count, err
		}
		if res.Any() {
			count++
		}
	}
	return count, nil
}

// Created returns the notifications persisted so far, in insert order.
func (n *Notifier) Created() []Notification {
	return n.created
}

// RecipientsNotified returns the usernames that received at least one delivery.
func (n *Notifier) RecipientsNotified() []string {
	out := make([]string, 0, len(n.notified))
	for r := range n.notified {
		out = append(out, r)
	}
	return out
}

func (n *Notifier) deliverOutbound(ctx context.Context, c Candidate) (Outcome, error) {
	if _, ok := n.transport.(InAppOnly); ok {
		return OutcomeNotConfigured, nil
	}

	contact, found, err := n.store.GetContact(ctx, c.Recipient)
	if err != nil {
		return OutcomeFault, fmt.Errorf("load contact %s: %w", c.Recipient, err)
	}
	if !found {
		return OutcomeNoAddress, nil
	}

	vars := emailVariables(c)
	lc := LogContext{Related: c.Related}

	switch n.transport.(type) {
	case EmailTransport:
		if contact.Email == "" {
			return OutcomeNoAddress, nil
		}
		return n.email.Deliver(ctx, contact.Email, c.EmailTemplate, vars, lc)

	case SMSGateway:
		if contact.Phone == "" || contact.SMSCarrier == "" {
			return OutcomeNoAddress, nil
		}
		text, outcome, err := n.smsText(ctx, c.EmailTemplate, vars)
		if outcome != "" || err != nil {
			return outcome, err
		}
		res, err := n.gateway.Send(ctx, contact.Phone, contact.SMSCarrier, text, lc)
		n.logSMS(c.Recipient, res)
		return res.Outcome, err

	case ThirdPartySMS:
		if contact.Phone == "" {
			return OutcomeNoAddress, nil
		}
		text, outcome, err := n.smsText(ctx, c.EmailTemplate, vars)
		if outcome != "" || err != nil {
			return outcome, err
		}
		res, err := n.smsAPI.Send(ctx, contact.Phone, text, lc)
		n.logSMS(c.Recipient, res)
		return res.Outcome, err
	}
	return OutcomeNotConfigured, nil
}

// smsText renders the template body as the text; subjects are not sent by SMS.
func (n *Notifier) smsText(ctx context.Context, key string, vars map[string]any) (string, Outcome, error) {
	tmpl, found, err := n.store.GetEmailTemplate(ctx, key)
	if err != nil {
		return "", OutcomeFault, fmt.Errorf("load email template %s: %w", key, err)
	}
	if !found {
		return "", OutcomeTemplateMissing, nil
	}
	return Render(tmpl.Body, vars), "", nil
}

func (n *Notifier) logSMS(recipient string, res SMSResult) {
	if res.OK {
		return
	}
	logger.Debug("sms not delivered",
		zap.String("recipient", recipient),
		zap.String("outcome", string(res.Outcome)),
		zap.String("info", res.Info),
	)
}

// emailVariables returns the candidate's variables on top of the defaults
// every template may reference.
func emailVariables(c Candidate) map[string]any {
	vars := map[string]any{
		"recipient":  c.Recipient,
		"title":      c.Title,
		"message":    c.Body,
		"severity":   c.Severity.String(),
		"action_url": c.ActionURL,
	}
	for k, v := range c.EmailVariables {
		vars[k] = v
	}
	return vars
}
