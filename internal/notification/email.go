package notification

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"fieldops.io/fieldops/internal/pkg/logger"
)

const previewLimit = 200

// EmailConfig is the decrypted SMTP transport configuration.
type EmailConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
	// UseTLS selects STARTTLS; false means implicit TLS (port 465).
	UseTLS bool
}

// OutboundEmail is one rendered message handed to a MailSender.
type OutboundEmail struct {
	To      string
	Subject string
	Body    string
}

// MailSender performs the actual SMTP exchange.
type MailSender interface {
	Send(ctx context.Context, cfg EmailConfig, msg OutboundEmail) (providerID string, err error)
}

// LogContext carries the fields recorded on the communication log.
type LogContext struct {
	Related *EntityRef
}

// EmailChannel renders stored templates and sends them through a MailSender.
// Every send attempt is recorded on the communication log.
type EmailChannel struct {
	cfg       *EmailConfig
	sender    MailSender
	templates TemplateStore
	log       CommunicationLog
	sentBy    string
	now       func() time.Time
}

// NewEmailChannel creates an email channel. A nil cfg means no transport is
// configured and every delivery reports OutcomeNotConfigured.
func NewEmailChannel(cfg *EmailConfig, sender MailSender, templates TemplateStore, log CommunicationLog, sentBy string, now func() time.Time) *EmailChannel {
	if now == nil {
		now = time.Now
	}
	return &EmailChannel{cfg: cfg, sender: sender, templates: templates, log: log, sentBy: sentBy, now: now}
}

// Configured reports whether a transport is available.
func (ch *EmailChannel) Configured() bool {
	return ch != nil && ch.cfg != nil && ch.sender != nil
}

// Deliver renders templateKey with vars and sends it to to.
// The returned error is reserved for storage failures; transport problems
// are reported through the Outcome.
func (ch *EmailChannel) Deliver(ctx context.Context, to, templateKey string, vars map[string]any, lc LogContext) (Outcome, error) {
	if !ch.Configured() {
		return OutcomeNotConfigured, nil
	}
	tmpl, found, err := ch.templates.GetEmailTemplate(ctx, templateKey)
	if err != nil {
		return OutcomeFault, fmt.Errorf("load email template %s: %w", templateKey, err)
	}
	if !found {
		logger.Warn("email template not found", zap.String("template", templateKey))
		return OutcomeTemplateMissing, nil
	}
	return ch.SendRaw(ctx, to, Render(tmpl.Subject, vars), Render(tmpl.Body, vars), lc)
}

// SendRaw sends an already-rendered message.
func (ch *EmailChannel) SendRaw(ctx context.Context, to, subject, body string, lc LogContext) (Outcome, error) {
	if !ch.Configured() {
		return OutcomeNotConfigured, nil
	}

	entry := LogEntry{
		Channel:   LogChannelEmail,
		Recipient: to,
		Subject:   subject,
		Preview:   truncateRunes(body, previewLimit),
		Related:   lc.Related,
		SentBy:    ch.sentBy,
		CreatedAt: ch.now(),
	}

	outcome := OutcomeSent
	providerID, sendErr := ch.sender.Send(ctx, *ch.cfg, OutboundEmail{To: to, Subject: subject, Body: body})
	if sendErr != nil {
		outcome = OutcomeTransportError
		entry.Status = LogStatusFailed
		entry.ErrorMessage = sendErr.Error()
		logger.Warn("email send failed",
			zap.String("to", to),
			zap.String("subject", subject),
			zap.Error(sendErr),
		)
	} else {
		entry.Status = LogStatusSent
		entry.ProviderMessageID = providerID
	}

	if err := ch.log.AppendCommunicationLog(ctx, entry); err != nil {
		return OutcomeFault, fmt.Errorf("append communication log: %w", err)
	}
	return outcome, nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
