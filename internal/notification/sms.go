package notification

import (
	"context"
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// SMSMaxLength is the single-segment SMS limit; longer texts are truncated.
const SMSMaxLength = 160

//go:embed carriers.yaml
var carriersYAML []byte

// Carrier describes one carrier's email-to-SMS gateway.
type Carrier struct {
	Name      string `yaml:"name" json:"name"`
	SMSDomain string `yaml:"sms_domain" json:"sms_domain"`
	MMSDomain string `yaml:"mms_domain" json:"mms_domain"`
}

var carriers = mustLoadCarriers(carriersYAML)

func mustLoadCarriers(data []byte) map[string]Carrier {
	out := map[string]Carrier{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("parse embedded carriers.yaml: %v", err))
	}
	return out
}

// LookupCarrier returns the gateway entry for a carrier code (case-insensitive).
func LookupCarrier(code string) (Carrier, bool) {
	c, ok := carriers[strings.ToLower(strings.TrimSpace(code))]
	return c, ok
}

// CarrierCodes lists supported carrier codes in sorted order.
func CarrierCodes() []string {
	codes := make([]string, 0, len(carriers))
	for code := range carriers {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// NormalizePhone reduces a phone number to its 10 national digits. An 11-digit
// input with a leading country code 1 is accepted.
func NormalizePhone(phone string) (string, bool) {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) != 10 {
		return "", false
	}
	return digits, true
}

// GatewayAddress builds "{10digits}@{sms_domain}" for phone on carrier.
func GatewayAddress(phone, carrier string) (string, error) {
	digits, ok := NormalizePhone(phone)
	if !ok {
		return "", fmt.Errorf("invalid phone number %q: expected 10 digits", phone)
	}
	c, ok := LookupCarrier(carrier)
	if !ok {
		return "", fmt.Errorf("unsupported carrier %q", carrier)
	}
	return digits + "@" + c.SMSDomain, nil
}

// SMSResult reports one SMS attempt. Info carries the failure reason or the
// destination used.
type SMSResult struct {
	OK         bool    `json:"ok"`
	Info       string  `json:"info"`
	ProviderID string  `json:"provider_id,omitempty"`
	Outcome    Outcome `json:"outcome"`
}

// SMSGatewayChannel sends SMS through a carrier's email gateway.
type SMSGatewayChannel struct {
	email *EmailChannel
}

// NewSMSGatewayChannel wraps an email channel.
func NewSMSGatewayChannel(email *EmailChannel) *SMSGatewayChannel {
	return &SMSGatewayChannel{email: email}
}

// Send texts message to phone on carrier. Invalid input fails before any send.
func (ch *SMSGatewayChannel) Send(ctx context.Context, phone, carrier, message string, lc LogContext) (SMSResult, error) {
	addr, err := GatewayAddress(phone, carrier)
	if err != nil {
		return SMSResult{Info: err.Error(), Outcome: OutcomeInvalidDestination}, nil
	}
	outcome, err := ch.email.SendRaw(ctx, addr, "", truncateRunes(message, SMSMaxLength), lc)
	if err != nil {
		return SMSResult{Info: "communication log write failed", Outcome: outcome}, err
	}
	switch outcome {
	case OutcomeSent:
		return SMSResult{OK: true, Info: "sent via " + addr, Outcome: outcome}, nil
	case OutcomeNotConfigured:
		return SMSResult{Info: "email transport not configured", Outcome: outcome}, nil
	default:
		return SMSResult{Info: "gateway send failed", Outcome: outcome}, nil
	}
}
