// Package mail sends rendered notification email over SMTP with gomail.
package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"fieldops.io/fieldops/internal/notification"
)

// Sender implements notification.MailSender. The SMTP settings arrive with
// every call because they are loaded per generation run.
type Sender struct {
	send func(d *gomail.Dialer, m ...*gomail.Message) error
}

// NewSender creates an SMTP sender.
func NewSender() *Sender {
	return &Sender{send: func(d *gomail.Dialer, m ...*gomail.Message) error { return d.DialAndSend(m...) }}
}

// Send delivers msg and returns the Message-ID it was sent with.
func (s *Sender) Send(ctx context.Context, cfg notification.EmailConfig, msg notification.OutboundEmail) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m, messageID := buildMessage(cfg, msg)
	if err := s.send(newDialer(cfg), m); err != nil {
		return "", fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	return messageID, nil
}

func buildMessage(cfg notification.EmailConfig, msg notification.OutboundEmail) (*gomail.Message, string) {
	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), senderDomain(cfg.FromEmail))

	m := gomail.NewMessage()
	if cfg.FromName != "" {
		m.SetAddressHeader("From", cfg.FromEmail, cfg.FromName)
	} else {
		m.SetHeader("From", cfg.FromEmail)
	}
	m.SetHeader("To", msg.To)
	m.SetHeader("Message-ID", messageID)
	// Gateway texts carry no subject.
	if msg.Subject != "" {
		m.SetHeader("Subject", msg.Subject)
	}
	m.SetBody("text/plain", msg.Body)
	return m, messageID
}

// newDialer uses STARTTLS when UseTLS is set (587) and implicit TLS otherwise (465).
func newDialer(cfg notification.EmailConfig) *gomail.Dialer {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.SSL = !cfg.UseTLS
	d.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	return d
}

func senderDomain(from string) string {
	if i := strings.LastIndexByte(from, '@'); i >= 0 && i < len(from)-1 {
		return from[i+1:]
	}
	return "localhost"
}

var _ notification.MailSender = (*Sender)(nil)
