package notification

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"fieldops.io/fieldops/internal/pkg/logger"
)

// SMSProviderConfig is the decrypted configuration of a third-party SMS API.
type SMSProviderConfig struct {
	Provider   string
	AccountSID string
	AuthToken  string
	FromNumber string
	// BaseURL overrides the provider's default API endpoint.
	BaseURL string
}

// SMSClient sends one text through an SMS API and returns the provider's message id.
type SMSClient interface {
	SendSMS(ctx context.Context, cfg SMSProviderConfig, to, body string) (providerID string, err error)
}

// SMSAPIChannel sends texts through a third-party SMS provider.
type SMSAPIChannel struct {
	cfg    SMSProviderConfig
	client SMSClient
	log    CommunicationLog
	sentBy string
	now    func() time.Time
}

// NewSMSAPIChannel creates the provider-backed SMS channel.
func NewSMSAPIChannel(cfg SMSProviderConfig, client SMSClient, log CommunicationLog, sentBy string, now func() time.Time) *SMSAPIChannel {
	if now == nil {
		now = time.Now
	}
	return &SMSAPIChannel{cfg: cfg, client: client, log: log, sentBy: sentBy, now: now}
}

// Send texts message to phone in E.164 form (+1 and the 10 national digits).
func (ch *SMSAPIChannel) Send(ctx context.Context, phone, message string, lc LogContext) (SMSResult, error) {
	if ch.client == nil {
		return SMSResult{Info: "sms client not configured", Outcome: OutcomeNotConfigured}, nil
	}
	digits, ok := NormalizePhone(phone)
	if !ok {
		return SMSResult{
			Info:    fmt.Sprintf("invalid phone number %q: expected 10 digits", phone),
			Outcome: OutcomeInvalidDestination,
		}, nil
	}
	to := "+1" + digits
	body := truncateRunes(message, SMSMaxLength)

	entry := LogEntry{
		Channel:   LogChannelSMS,
		Recipient: to,
		Preview:   truncateRunes(body, previewLimit),
		Related:   lc.Related,
		SentBy:    ch.sentBy,
		CreatedAt: ch.now(),
	}
	res := SMSResult{OK: true, Info: "sent via " + ch.cfg.Provider, Outcome: OutcomeSent}

	providerID, sendErr := ch.client.SendSMS(ctx, ch.cfg, to, body)
	if sendErr != nil {
		entry.Status = LogStatusFailed
		entry.ErrorMessage = sendErr.Error()
		res = SMSResult{Info: sendErr.Error(), Outcome: OutcomeTransportError}
		logger.Warn("sms send failed",
			zap.String("provider", ch.cfg.Provider),
			zap.String("to", to),
			zap.Error(sendErr),
		)
	} else {
		entry.Status = LogStatusSent
		entry.ProviderMessageID = providerID
		res.ProviderID = providerID
	}

	if err := ch.log.AppendCommunicationLog(ctx, entry); err != nil {
		return SMSResult{Info: "communication log write failed", Outcome: OutcomeFault}, fmt.Errorf("append communication log: %w", err)
	}
	return res, nil
}
