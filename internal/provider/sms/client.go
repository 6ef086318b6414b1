// Package sms sends texts through a Twilio-compatible REST API.
package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fieldops.io/fieldops/internal/notification"
)

// DefaultBaseURL is used when the stored provider config has none.
const DefaultBaseURL = "https://api.twilio.com/2010-04-01"

// Client implements notification.SMSClient.
type Client struct {
	http *http.Client
}

// NewClient creates a client. A nil httpClient gets a 15s timeout.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{http: httpClient}
}

type messageResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// SendSMS posts one message and returns the provider message SID.
func (c *Client) SendSMS(ctx context.Context, cfg notification.SMSProviderConfig, to, body string) (string, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return "", fmt.Errorf("sms provider %q: missing credentials", cfg.Provider)
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", base, url.PathEscape(cfg.AccountSID))

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", cfg.FromNumber)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build sms request: %w", err)
	}
	req.SetBasicAuth(cfg.AccountSID, cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("sms request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("read sms response: %w", err)
	}
	var out messageResponse
	_ = json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if out.Message != "" {
			return "", fmt.Errorf("sms provider returned %d: %s (code %d)", resp.StatusCode, out.Message, out.Code)
		}
		return "", fmt.Errorf("sms provider returned %d", resp.StatusCode)
	}
	if out.SID == "" {
		return "", fmt.Errorf("sms provider response missing sid")
	}
	return out.SID, nil
}

var _ notification.SMSClient = (*Client)(nil)
