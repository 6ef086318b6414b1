package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"fieldops.io/fieldops/internal/notification"
)

const getPreference = `-- name: GetPreference :one
SELECT enabled, delivery_method FROM notification_preferences
WHERE username = $1 AND category = $2`

func (q *Queries) GetPreference(ctx context.Context, username, category string) (notification.Preference, bool, error) {
	var (
		p      notification.Preference
		method string
	)
	err := q.db.QueryRow(ctx, getPreference, username, category).Scan(&p.Enabled, &method)
	if errors.Is(err, pgx.ErrNoRows) {
		return notification.Preference{}, false, nil
	}
	if err != nil {
		return notification.Preference{}, false, err
	}
	p.Method = notification.DeliveryMethod(method)
	return p, true, nil
}

const hasLiveNotification = `-- name: HasLiveNotification :one
SELECT EXISTS (
    SELECT 1 FROM notifications
    WHERE dedup_key = $1 AND NOT is_dismissed
      AND (expires_at IS NULL OR expires_at > $2)
)`

func (q *Queries) HasLiveNotification(ctx context.Context, dedupKey string, now time.Time) (bool, error) {
	var live bool
	err := q.db.QueryRow(ctx, hasLiveNotification, dedupKey, now).Scan(&live)
	return live, err
}

const retireExpiredNotification = `-- name: RetireExpiredNotification :exec
UPDATE notifications SET is_dismissed = TRUE
WHERE dedup_key = $1 AND NOT is_dismissed
  AND expires_at IS NOT NULL AND expires_at <= $2`

const insertNotification = `-- name: InsertNotification :one
INSERT INTO notifications (
    target_username, category, subtype, title, message, severity,
    related_entity_type, related_entity_id, action_url, dedup_key, expires_at, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (dedup_key) WHERE NOT is_dismissed DO NOTHING
RETURNING id`

// InsertNotification retires an expired row holding the same key, then
// inserts n. A live row with the key makes the insert a no-op (inserted=false).
func (q *Queries) InsertNotification(ctx context.Context, n *notification.Notification, now time.Time) (int64, bool, error) {
	key := nullText(n.DedupKey)
	if key.Valid {
		if _, err := q.db.Exec(ctx, retireExpiredNotification, key, now); err != nil {
			return 0, false, fmt.Errorf("retire expired notification: %w", err)
		}
	}

	var refType pgtype.Text
	var refID pgtype.Int8
	if n.Related != nil {
		refType = pgtype.Text{String: n.Related.Type, Valid: true}
		refID = pgtype.Int8{Int64: n.Related.ID, Valid: true}
	}

	var id int64
	err := q.db.QueryRow(ctx, insertNotification,
		n.Recipient, n.Category, n.Subtype, n.Title, n.Message, n.Severity.String(),
		refType, refID, nullText(n.ActionURL), key, nullTime(n.ExpiresAt), now,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

const listLiveNotifications = `-- name: ListLiveNotifications :many
SELECT id, target_username, category, subtype, title, message, severity,
       related_entity_type, related_entity_id, action_url, dedup_key, expires_at, is_dismissed, created_at
FROM notifications
WHERE target_username = $1 AND NOT is_dismissed
  AND (expires_at IS NULL OR expires_at > $2)
ORDER BY created_at DESC, id DESC
LIMIT $3`

// ListLiveNotifications returns username's live notifications, newest first.
func (q *Queries) ListLiveNotifications(ctx context.Context, username string, now time.Time, limit int) ([]notification.Notification, error) {
	rows, err := q.db.Query(ctx, listLiveNotifications, username, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []notification.Notification
	for rows.Next() {
		var (
			n         notification.Notification
			severity  string
			refType   pgtype.Text
			refID     pgtype.Int8
			actionURL pgtype.Text
			key       pgtype.Text
			expires   pgtype.Timestamptz
		)
		if err := rows.Scan(&n.ID, &n.Recipient, &n.Category, &n.Subtype, &n.Title, &n.Message, &severity,
			&refType, &refID, &actionURL, &key, &expires, &n.Dismissed, &n.CreatedAt); err != nil {
			return nil, err
		}
		if n.Severity, err = notification.ParseSeverity(severity); err != nil {
			return nil, err
		}
		if refType.Valid && refID.Valid {
			n.Related = &notification.EntityRef{Type: refType.String, ID: refID.Int64}
		}
		n.ActionURL = actionURL.String
		n.DedupKey = key.String
		if expires.Valid {
			t := expires.Time
			n.ExpiresAt = &t
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

const dismissNotification = `-- name: DismissNotification :execrows
UPDATE notifications SET is_dismissed = TRUE
WHERE id = $1 AND target_username = $2 AND NOT is_dismissed`

// DismissNotification returns the number of rows dismissed (0 or 1).
func (q *Queries) DismissNotification(ctx context.Context, id int64, username string) (int64, error) {
	tag, err := q.db.Exec(ctx, dismissNotification, id, username)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const deleteStaleNotifications = `-- name: DeleteStaleNotifications :execrows
DELETE FROM notifications
WHERE (is_dismissed AND created_at < $1)
   OR (expires_at IS NOT NULL AND expires_at < $1)`

// DeleteStaleNotifications removes dismissed rows created before cutoff and
// rows that expired before cutoff.
func (q *Queries) DeleteStaleNotifications(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteStaleNotifications, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func nullText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}
