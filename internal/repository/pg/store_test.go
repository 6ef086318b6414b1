package pg

import (
	"context"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldops.io/fieldops/internal/notification"
	"fieldops.io/fieldops/internal/notification/rules"
	"fieldops.io/fieldops/internal/pkg/secret"
	"fieldops.io/fieldops/internal/testutil"
)

func newTestStore(t *testing.T, prefix string) (*Store, *pgxpool.Pool, *secret.Box) {
	t.Helper()
	pool := testutil.OpenPGXPool(t, prefix)
	require.NoError(t, Migrate(context.Background(), pool))

	box, err := secret.NewBox(hex.EncodeToString([]byte(strings.Repeat("k", 32))))
	require.NoError(t, err)
	return NewStore(New(pool), box), pool, box
}

func exec(t *testing.T, pool *pgxpool.Pool, sql string, args ...any) {
	t.Helper()
	_, err := pool.Exec(context.Background(), sql, args...)
	require.NoError(t, err)
}

func TestMigrate_Idempotent(t *testing.T) {
	_, pool, _ := newTestStore(t, "migrate")
	require.NoError(t, Migrate(context.Background(), pool))

	var templates int
	require.NoError(t, pool.QueryRow(context.Background(), `SELECT count(*) FROM email_templates`).Scan(&templates))
	assert.Equal(t, 10, templates)
}

func TestInsertNotification_Dedup(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t, "insert_dedup")
	now := time.Now().UTC().Truncate(time.Microsecond)

	n := &notification.Notification{
		Recipient: "alice", Category: notification.CategorySchedule, Subtype: "no_crew",
		Title: "No crew", Message: "m", Severity: notification.SeverityError,
		Related:  &notification.EntityRef{Type: "job_schedule", ID: 9},
		DedupKey: "no_crew_alice_9",
	}
	id, inserted, err := s.InsertNotification(ctx, n, now)
	require.NoError(t, err)
	require.True(t, inserted)
	require.NotZero(t, id)

	_, inserted, err = s.InsertNotification(ctx, n, now)
	require.NoError(t, err)
	assert.False(t, inserted)

	live, err := s.HasLiveNotification(ctx, "no_crew_alice_9", now)
	require.NoError(t, err)
	assert.True(t, live)

	rows, err := s.ListLiveNotifications(ctx, "alice", now, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, &notification.EntityRef{Type: "job_schedule", ID: 9}, rows[0].Related)
	assert.Equal(t, notification.SeverityError, rows[0].Severity)

	dismissed, err := s.DismissNotification(ctx, id, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 1, dismissed)

	_, inserted, err = s.InsertNotification(ctx, n, now)
	require.NoError(t, err)
	assert.True(t, inserted, "dismissed rows free the key")
}

func TestInsertNotification_ExpiredRowIsRetired(t *testing.T) {
	ctx := context.Background()
	s, pool, _ := newTestStore(t, "insert_expired")
	now := time.Now().UTC()
	past := now.Add(-time.Hour)

	n := &notification.Notification{Recipient: "bob", Category: "work_order", Subtype: "overdue", Title: "t", DedupKey: "overdue_bob_1", ExpiresAt: &past}
	_, inserted, err := s.InsertNotification(ctx, n, past.Add(-time.Minute))
	require.NoError(t, err)
	require.True(t, inserted)

	live, err := s.HasLiveNotification(ctx, "overdue_bob_1", now)
	require.NoError(t, err)
	assert.False(t, live)

	n.ExpiresAt = nil
	_, inserted, err = s.InsertNotification(ctx, n, now)
	require.NoError(t, err)
	assert.True(t, inserted)

	var retired int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM notifications WHERE dedup_key = 'overdue_bob_1' AND is_dismissed`).Scan(&retired))
	assert.Equal(t, 1, retired)
}

func TestPreferencesAndDirectory(t *testing.T) {
	ctx := context.Background()
	s, pool, _ := newTestStore(t, "prefs")
	exec(t, pool, `INSERT INTO users (username, email, role) VALUES ('alice', 'a@x.io', 'admin'), ('bob', '', 'manager'), ('tom', 't@x.io', 'technician')`)
	exec(t, pool, `INSERT INTO users (username, email, role, active) VALUES ('old', 'o@x.io', 'admin', FALSE)`)
	exec(t, pool, `INSERT INTO notification_preferences (username, category, enabled, delivery_method) VALUES ('alice', 'schedule', TRUE, 'both')`)

	p, found, err := s.GetPreference(ctx, "alice", "schedule")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, notification.DeliveryBoth, p.Method)

	_, found, err = s.GetPreference(ctx, "alice", "inventory")
	require.NoError(t, err)
	assert.False(t, found)

	names, err := s.ActiveUsersWithRoles(ctx, notification.ManagerRoles...)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, names)

	_, found, err = s.GetContact(ctx, "old")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSettings_SealedAtRest(t *testing.T) {
	ctx := context.Background()
	s, pool, _ := newTestStore(t, "settings")

	_, found, err := s.ActiveEmailConfig(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	cfg := notification.EmailConfig{Host: "smtp.x.io", Port: 587, Username: "u", Password: "hunter2", FromEmail: "ops@x.io", UseTLS: true}
	require.NoError(t, s.SaveEmailConfig(ctx, cfg))
	cfg.Host = "smtp2.x.io"
	require.NoError(t, s.SaveEmailConfig(ctx, cfg))

	var stored string
	var active int
	require.NoError(t, pool.QueryRow(ctx, `SELECT password_encrypted FROM email_settings WHERE is_active`).Scan(&stored))
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM email_settings WHERE is_active`).Scan(&active))
	assert.NotContains(t, stored, "hunter2")
	assert.Equal(t, 1, active)

	got, found, err := s.ActiveEmailConfig(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, cfg, got)

	require.NoError(t, s.SaveSMSProviderConfig(ctx, notification.SMSProviderConfig{Provider: "twilio", AccountSID: "AC1", AuthToken: "tok"}))
	sms, found, err := s.ActiveSMSProviderConfig(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "tok", sms.AuthToken)
}

func seedOperations(t *testing.T, pool *pgxpool.Pool, today time.Time) {
	t.Helper()
	exec(t, pool, `INSERT INTO users (username, email, role) VALUES ('alice', 'alice@x.io', 'admin'), ('tom', 'tom@x.io', 'technician')`)
	exec(t, pool, `INSERT INTO work_orders (id, work_order_number, customer_name, status) VALUES
		(1, 'WO-1', 'Acme', 'scheduled'), (2, 'WO-2', 'Beta', 'in_progress'), (3, 'WO-3', 'Gamma', 'completed')`)
	exec(t, pool, `INSERT INTO job_schedules (id, work_order_id, scheduled_date) VALUES
		(10, 1, $1), (20, 2, $2), (30, 3, $3)`,
		today.AddDate(0, 0, 1), today.AddDate(0, 0, -7), today.AddDate(0, 0, -2))
	exec(t, pool, `INSERT INTO job_crew (job_schedule_id, employee_username) VALUES (20, 'tom'), (30, 'tom')`)
	exec(t, pool, `INSERT INTO work_order_materials (work_order_id, item_id, item_description, quantity_needed, quantity_allocated, quantity_loaded, quantity_used, quantity_returned, stock_status) VALUES
		(1, 100, 'wire', 10, 0, 0, 0, 0, 'shortage'),
		(3, 200, 'breaker', 4, 4, 4, 2, 0, 'in_stock')`)
}

func TestSourceQueries(t *testing.T) {
	ctx := context.Background()
	s, pool, _ := newTestStore(t, "source")
	env := notification.NewEnv(time.Now(), time.UTC)
	seedOperations(t, pool, env.Today)

	unstaffed, err := s.SchedulesWithoutCrew(ctx, env.Today, env.AddDays(3))
	require.NoError(t, err)
	require.Len(t, unstaffed, 1)
	assert.EqualValues(t, 10, unstaffed[0].ScheduleID)
	assert.Equal(t, 1, env.DaysUntil(unstaffed[0].ScheduledDate))

	totals, err := s.MaterialTotalsForSchedules(ctx, env.Today, env.AddDays(5))
	require.NoError(t, err)
	require.Len(t, totals, 1)
	assert.Equal(t, 1, totals[0].ShortageLines)
	assert.Equal(t, 10, totals[0].Needed)
	assert.Zero(t, totals[0].Allocated)

	past, err := s.SchedulesBefore(ctx, env.Today)
	require.NoError(t, err)
	require.Len(t, past, 1)
	assert.EqualValues(t, 20, past[0].ScheduleID)

	missing, err := s.CrewAssignmentsWithoutTimeEntry(ctx, env.AddDays(-7), env.AddDays(-1))
	require.NoError(t, err)
	assert.Len(t, missing, 2)

	exec(t, pool, `INSERT INTO time_entries (employee_username, work_order_id, work_date, hours) VALUES ('tom', 2, $1, 8)`, env.AddDays(-7))
	missing, err = s.CrewAssignmentsWithoutTimeEntry(ctx, env.AddDays(-7), env.AddDays(-1))
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.EqualValues(t, 30, missing[0].ScheduleID)

	unreturned, err := s.CompletedCrewMaterialLines(ctx)
	require.NoError(t, err)
	require.Len(t, unreturned, 1)
	assert.Equal(t, "tom", unreturned[0].Technician)
	assert.EqualValues(t, 200, unreturned[0].Line.ItemID)
}

func TestGenerateAll_AgainstPostgres(t *testing.T) {
	ctx := context.Background()
	_, pool, box := newTestStore(t, "generate")
	now := time.Now()
	seedOperations(t, pool, notification.NewEnv(now, time.UTC).Today)

	gen := notification.NewGenerator(NewTxRunner(pool, box), notification.GeneratorConfig{
		Route:      notification.RouteEmail,
		Now:        func() time.Time { return now },
		Manager:    rules.Manager(),
		Technician: rules.Technician(),
	})

	first := gen.GenerateAll(ctx)
	require.Empty(t, first.Errors)
	assert.Equal(t, 1, first.Rules[rules.NoCrew])
	assert.Equal(t, 1, first.Rules[rules.MaterialShortage])
	assert.Equal(t, 1, first.Rules[rules.ZeroAllocation])
	assert.Equal(t, 1, first.Rules[rules.Overdue])
	assert.Equal(t, 2, first.Rules[rules.MissingTimeEntry])
	assert.Equal(t, 1, first.Rules[rules.UnreturnedMaterials])
	assert.Equal(t, 7, first.NotificationsCreated)

	var key string
	require.NoError(t, pool.QueryRow(ctx, `SELECT dedup_key FROM notifications WHERE subtype = 'no_crew'`).Scan(&key))
	assert.Equal(t, "no_crew_alice_10", key)

	second := gen.GenerateAll(ctx)
	require.Empty(t, second.Errors)
	assert.Zero(t, second.NotificationsCreated)
}

func TestDeleteStaleNotifications(t *testing.T) {
	ctx := context.Background()
	s, pool, _ := newTestStore(t, "cleanup")
	now := time.Now().UTC()

	exec(t, pool, `INSERT INTO notifications (target_username, category, subtype, title, is_dismissed, expires_at, created_at) VALUES
		('a', 'schedule', 'no_crew', 'old dismissed', TRUE, NULL, $1),
		('a', 'schedule', 'no_crew', 'old expired', FALSE, $1, $1),
		('a', 'schedule', 'no_crew', 'old but live', FALSE, NULL, $1),
		('a', 'schedule', 'no_crew', 'recent dismissed', TRUE, NULL, $2)`,
		now.Add(-100*24*time.Hour), now.Add(-time.Hour))

	deleted, err := s.DeleteStaleNotifications(ctx, now.Add(-90*24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	var left int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM notifications`).Scan(&left))
	assert.Equal(t, 2, left)
}
