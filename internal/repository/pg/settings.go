package pg

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// EmailSettingsRow is the active email_settings row with its secret still sealed.
type EmailSettingsRow struct {
	Host              string
	Port              int32
	Username          string
	PasswordEncrypted string
	FromEmail         string
	FromName          string
	UseTLS            bool
}

const getActiveEmailSettings = `-- name: GetActiveEmailSettings :one
SELECT smtp_host, smtp_port, smtp_username, password_encrypted, from_email, from_name, use_tls
FROM email_settings WHERE is_active
ORDER BY updated_at DESC LIMIT 1`

func (q *Queries) GetActiveEmailSettings(ctx context.Context) (EmailSettingsRow, bool, error) {
	var r EmailSettingsRow
	err := q.db.QueryRow(ctx, getActiveEmailSettings).Scan(
		&r.Host, &r.Port, &r.Username, &r.PasswordEncrypted, &r.FromEmail, &r.FromName, &r.UseTLS)
	if errors.Is(err, pgx.ErrNoRows) {
		return EmailSettingsRow{}, false, nil
	}
	if err != nil {
		return EmailSettingsRow{}, false, err
	}
	return r, true, nil
}

// SMSSettingsRow is the active sms_settings row with its secret still sealed.
type SMSSettingsRow struct {
	Provider           string
	AccountSID         string
	AuthTokenEncrypted string
	FromNumber         string
	BaseURL            string
}

const getActiveSMSSettings = `-- name: GetActiveSMSSettings :one
SELECT provider, account_sid, auth_token_encrypted, from_number, base_url
FROM sms_settings WHERE is_active
ORDER BY updated_at DESC LIMIT 1`

func (q *Queries) GetActiveSMSSettings(ctx context.Context) (SMSSettingsRow, bool, error) {
	var r SMSSettingsRow
	err := q.db.QueryRow(ctx, getActiveSMSSettings).Scan(
		&r.Provider, &r.AccountSID, &r.AuthTokenEncrypted, &r.FromNumber, &r.BaseURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return SMSSettingsRow{}, false, nil
	}
	if err != nil {
		return SMSSettingsRow{}, false, err
	}
	return r, true, nil
}

const upsertEmailSettings = `-- name: UpsertEmailSettings :exec
WITH off AS (UPDATE email_settings SET is_active = FALSE WHERE is_active)
INSERT INTO email_settings (smtp_host, smtp_port, smtp_username, password_encrypted, from_email, from_name, use_tls, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)`

// ActivateEmailSettings stores r as the single active email transport.
func (q *Queries) ActivateEmailSettings(ctx context.Context, r EmailSettingsRow) error {
	_, err := q.db.Exec(ctx, upsertEmailSettings,
		r.Host, r.Port, r.Username, r.PasswordEncrypted, r.FromEmail, r.FromName, r.UseTLS)
	return err
}

const upsertSMSSettings = `-- name: UpsertSMSSettings :exec
WITH off AS (UPDATE sms_settings SET is_active = FALSE WHERE is_active)
INSERT INTO sms_settings (provider, account_sid, auth_token_encrypted, from_number, base_url, is_active)
VALUES ($1, $2, $3, $4, $5, TRUE)`

// ActivateSMSSettings stores r as the single active SMS provider.
func (q *Queries) ActivateSMSSettings(ctx context.Context, r SMSSettingsRow) error {
	_, err := q.db.Exec(ctx, upsertSMSSettings, r.Provider, r.AccountSID, r.AuthTokenEncrypted, r.FromNumber, r.BaseURL)
	return err
}
