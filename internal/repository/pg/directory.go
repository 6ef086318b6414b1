package pg

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"fieldops.io/fieldops/internal/notification"
)

const getContact = `-- name: GetContact :one
SELECT username, email, phone, sms_carrier FROM users
WHERE username = $1 AND active`

func (q *Queries) GetContact(ctx context.Context, username string) (notification.Contact, bool, error) {
	var c notification.Contact
	err := q.db.QueryRow(ctx, getContact, username).Scan(&c.Username, &c.Email, &c.Phone, &c.SMSCarrier)
	if errors.Is(err, pgx.ErrNoRows) {
		return notification.Contact{}, false, nil
	}
	if err != nil {
		return notification.Contact{}, false, err
	}
	return c, true, nil
}

const activeUsersWithRoles = `-- name: ActiveUsersWithRoles :many
SELECT username FROM users
WHERE active AND role = ANY($1::text[])
ORDER BY username`

func (q *Queries) ActiveUsersWithRoles(ctx context.Context, roles ...string) ([]string, error) {
	rows, err := q.db.Query(ctx, activeUsersWithRoles, roles)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

const getEmailTemplate = `-- name: GetEmailTemplate :one
SELECT template_key, subject, body FROM email_templates
WHERE template_key = $1 AND is_active`

func (q *Queries) GetEmailTemplate(ctx context.Context, key string) (notification.EmailTemplate, bool, error) {
	var t notification.EmailTemplate
	err := q.db.QueryRow(ctx, getEmailTemplate, key).Scan(&t.Key, &t.Subject, &t.Body)
	if errors.Is(err, pgx.ErrNoRows) {
		return notification.EmailTemplate{}, false, nil
	}
	if err != nil {
		return notification.EmailTemplate{}, false, err
	}
	return t, true, nil
}

const appendCommunicationLog = `-- name: AppendCommunicationLog :exec
INSERT INTO communication_log (
    channel, recipient, status, subject, message_preview,
    related_entity_type, related_entity_id, error_message, provider_message_id, sent_by, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

func (q *Queries) AppendCommunicationLog(ctx context.Context, e notification.LogEntry) error {
	var refType, refID any
	if e.Related != nil {
		refType, refID = e.Related.Type, e.Related.ID
	}
	_, err := q.db.Exec(ctx, appendCommunicationLog,
		e.Channel, e.Recipient, e.Status, e.Subject, e.Preview,
		refType, refID, nullText(e.ErrorMessage), nullText(e.ProviderMessageID), e.SentBy, e.CreatedAt,
	)
	return err
}
