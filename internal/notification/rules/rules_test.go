package rules_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldops.io/fieldops/internal/notification"
	"fieldops.io/fieldops/internal/notification/notificationtest"
	"fieldops.io/fieldops/internal/notification/rules"
)

var now = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

func day(offset int) time.Time {
	return time.Date(2026, 3, 10+offset, 0, 0, 0, 0, time.UTC)
}

func job(scheduleID, woID int64, offset int) notification.ScheduledJob {
	return notification.ScheduledJob{
		ScheduleID:      scheduleID,
		WorkOrderID:     woID,
		WorkOrderNumber: fmt.Sprintf("WO-%d", woID),
		CustomerName:    "Acme",
		JobAddress:      "1 Main St",
		WorkOrderStatus: "scheduled",
		ScheduledDate:   day(offset),
	}
}

func evaluate(t *testing.T, name string, store *notificationtest.Store) notification.Proposals {
	t.Helper()
	for _, r := range append(rules.Manager(), rules.Technician()...) {
		if r.Name() == name {
			props, err := r.Evaluate(context.Background(), store, notification.NewEnv(now, time.UTC))
			require.NoError(t, err)
			return props
		}
	}
	t.Fatalf("rule %s not registered", name)
	return notification.Proposals{}
}

func TestRuleOrder(t *testing.T) {
	names := func(evs []notification.Evaluator) []string {
		out := make([]string, 0, len(evs))
		for _, e := range evs {
			out = append(out, e.Name())
		}
		return out
	}
	assert.Equal(t, []string{"no_crew", "material_shortage", "zero_allocation", "overdue"}, names(rules.Manager()))
	assert.Equal(t, []string{
		"reminder_tomorrow", "reminder_today", "tech_shortage",
		"ready_for_pickup", "missing_time_entry", "unreturned_materials",
	}, names(rules.Technician()))
}

func TestSeverityThresholds(t *testing.T) {
	assert.Equal(t, notification.SeverityError, rules.ImminentSeverity(0))
	assert.Equal(t, notification.SeverityError, rules.ImminentSeverity(1))
	assert.Equal(t, notification.SeverityWarning, rules.ImminentSeverity(2))

	assert.Equal(t, notification.SeverityError, rules.ShortageSeverity(1))
	assert.Equal(t, notification.SeverityWarning, rules.ShortageSeverity(3))
	assert.Equal(t, notification.SeverityInfo, rules.ShortageSeverity(4))

	assert.Equal(t, notification.SeverityWarning, rules.OverdueSeverity(6))
	assert.Equal(t, notification.SeverityError, rules.OverdueSeverity(7))
}

func TestOverdue(t *testing.T) {
	store := notificationtest.NewStore()
	store.Past = []notification.ScheduledJob{job(1, 1, 0), job(2, 2, -6), job(3, 3, -7)}

	props := evaluate(t, rules.Overdue, store)
	require.Len(t, props.Broadcasts, 2)

	bySchedule := map[string]notification.Broadcast{}
	for _, b := range props.Broadcasts {
		bySchedule[b.Ref] = b
	}
	assert.NotContains(t, bySchedule, "1")
	assert.Equal(t, notification.SeverityWarning, bySchedule["2"].Severity)
	assert.Equal(t, notification.SeverityError, bySchedule["3"].Severity)
	assert.Equal(t, "overdue_alice_3", bySchedule["3"].KeyFor("alice"))
	// Overdue alerts lapse at the next local midnight so the next daily run
	// re-alerts with the escalated severity, whatever time it fires.
	assert.Equal(t, day(1), *bySchedule["3"].ExpiresAt)
}

func TestOverdue_ExpiresAtLocalMidnight(t *testing.T) {
	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	store := notificationtest.NewStore()
	store.Past = []notification.ScheduledJob{job(3, 3, -7)}

	// 06:30 CDT on the 10th; a run at 05:00 tomorrow must find the row expired.
	runAt := time.Date(2026, 3, 10, 11, 30, 0, 0, time.UTC)
	var overdue notification.Evaluator
	for _, r := range rules.Manager() {
		if r.Name() == rules.Overdue {
			overdue = r
		}
	}
	props, err := overdue.Evaluate(context.Background(), store, notification.NewEnv(runAt, loc))
	require.NoError(t, err)
	require.Len(t, props.Broadcasts, 1)

	expires := *props.Broadcasts[0].ExpiresAt
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, loc), expires)
	assert.True(t, expires.Before(time.Date(2026, 3, 11, 5, 0, 0, 0, loc)))
}

func TestNoCrew(t *testing.T) {
	store := notificationtest.NewStore()
	store.Unstaffed = []notification.ScheduledJob{job(10, 1, 0), job(11, 2, 2), job(12, 3, 4)}

	props := evaluate(t, rules.NoCrew, store)
	require.Len(t, props.Broadcasts, 2)
	assert.Equal(t, notification.SeverityError, props.Broadcasts[0].Severity)
	assert.Equal(t, notification.SeverityWarning, props.Broadcasts[1].Severity)
	assert.Equal(t, &notification.EntityRef{Type: "job_schedule", ID: 10}, props.Broadcasts[0].Related)
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), *props.Broadcasts[0].ExpiresAt)
}

func TestMaterialRules(t *testing.T) {
	store := notificationtest.NewStore()
	store.Totals = []notification.MaterialTotals{
		{ScheduledJob: job(1, 1, 1), ShortageLines: 2, Needed: 10, Allocated: 4},
		{ScheduledJob: job(2, 2, 3), ShortageLines: 0, Needed: 5, Allocated: 0},
		{ScheduledJob: job(3, 3, 5), ShortageLines: 1, Needed: 5, Allocated: 0},
		{ScheduledJob: job(4, 4, 2), ShortageLines: 0, Needed: 0, Allocated: 0},
	}

	shortage := evaluate(t, rules.MaterialShortage, store)
	require.Len(t, shortage.Broadcasts, 2)
	assert.Equal(t, "1", shortage.Broadcasts[0].Ref)
	assert.Equal(t, notification.SeverityError, shortage.Broadcasts[0].Severity)
	assert.Equal(t, notification.SeverityInfo, shortage.Broadcasts[1].Severity)
	assert.Equal(t, notification.CategoryInventory, shortage.Broadcasts[0].Category)

	zero := evaluate(t, rules.ZeroAllocation, store)
	require.Len(t, zero.Broadcasts, 1)
	assert.Equal(t, "2", zero.Broadcasts[0].Ref)
	assert.Equal(t, notification.SeverityWarning, zero.Broadcasts[0].Severity)
	assert.Equal(t, "zero_allocation_bob_2", zero.Broadcasts[0].KeyFor("bob"))
}

func TestReminders(t *testing.T) {
	store := notificationtest.NewStore()
	store.Crew = []notification.CrewAssignment{
		{ScheduledJob: job(1, 1, 0), Technician: "tom"},
		{ScheduledJob: job(2, 2, 1), Technician: "tom"},
		{ScheduledJob: job(3, 3, 2), Technician: "tom"},
	}

	today := evaluate(t, rules.ReminderToday, store)
	require.Len(t, today.Candidates, 1)
	assert.Equal(t, "reminder_today_tom_1", today.Candidates[0].DedupKey)
	assert.Equal(t, notification.SeverityWarning, today.Candidates[0].Severity)

	tomorrow := evaluate(t, rules.ReminderTomorrow, store)
	require.Len(t, tomorrow.Candidates, 1)
	assert.Equal(t, "reminder_tomorrow_tom_2", tomorrow.Candidates[0].DedupKey)
	assert.Equal(t, notification.SeverityInfo, tomorrow.Candidates[0].Severity)
	assert.Equal(t, "tom", tomorrow.Candidates[0].Recipient)
}

func TestTechnicianMaterialRules(t *testing.T) {
	line := func(item int64, status string, allocated, loaded int) notification.MaterialLine {
		return notification.MaterialLine{WorkOrderID: 1, ItemID: item, Description: "wire", Needed: 10, Allocated: allocated, Loaded: loaded, StockStatus: status}
	}
	a := notification.CrewAssignment{ScheduledJob: job(1, 1, 2), Technician: "tom"}
	store := notificationtest.NewStore()
	store.CrewLines = []notification.CrewMaterial{
		{CrewAssignment: a, Line: line(5, "shortage", 3, 0)},
		{CrewAssignment: a, Line: line(6, "in_stock", 10, 8)},
		{CrewAssignment: a, Line: line(7, "partial", 4, 4)},
	}

	shortage := evaluate(t, rules.TechShortage, store)
	require.Len(t, shortage.Candidates, 2)
	assert.Equal(t, "tech_shortage_tom_1_5", shortage.Candidates[0].DedupKey)
	assert.Equal(t, "tech_shortage_tom_1_7", shortage.Candidates[1].DedupKey)

	pickup := evaluate(t, rules.ReadyForPickup, store)
	require.Len(t, pickup.Candidates, 1)
	assert.Equal(t, "ready_for_pickup_tom_1", pickup.Candidates[0].DedupKey)
	assert.Equal(t, 5, pickup.Candidates[0].EmailVariables["quantity_ready"])
}

func TestMissingTimeEntry(t *testing.T) {
	store := notificationtest.NewStore()
	store.NoTimeEntry = []notification.CrewAssignment{
		{ScheduledJob: job(1, 1, -1), Technician: "tom"},
		{ScheduledJob: job(2, 2, -7), Technician: "tom"},
		{ScheduledJob: job(3, 3, -8), Technician: "tom"},
		{ScheduledJob: job(4, 4, 0), Technician: "tom"},
	}

	props := evaluate(t, rules.MissingTimeEntry, store)
	require.Len(t, props.Candidates, 2)
	assert.Equal(t, "missing_time_entry_tom_1", props.Candidates[0].DedupKey)
	assert.Equal(t, notification.CategoryTimesheet, props.Candidates[0].Category)
	// 2026-03-09 leaves the window after 2026-03-16.
	assert.Equal(t, time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC), *props.Candidates[0].ExpiresAt)
}

func TestUnreturnedMaterials(t *testing.T) {
	a := notification.CrewAssignment{ScheduledJob: job(1, 9, -3), Technician: "tom"}
	store := notificationtest.NewStore()
	store.CompletedLines = []notification.CrewMaterial{
		{CrewAssignment: a, Line: notification.MaterialLine{WorkOrderID: 9, ItemID: 1, Description: "breaker", Loaded: 5, Used: 3, Returned: 1}},
		{CrewAssignment: a, Line: notification.MaterialLine{WorkOrderID: 9, ItemID: 2, Description: "conduit", Loaded: 5, Used: 5}},
		{CrewAssignment: a, Line: notification.MaterialLine{WorkOrderID: 9, ItemID: 1, Description: "breaker", Loaded: 5, Used: 3, Returned: 1}},
	}

	props := evaluate(t, rules.UnreturnedMaterials, store)
	require.Len(t, props.Candidates, 1)
	assert.Equal(t, "unreturned_materials_tom_9_1", props.Candidates[0].DedupKey)
	assert.Equal(t, 1, props.Candidates[0].EmailVariables["quantity_outstanding"])
}

func TestNoCrewEndToEnd(t *testing.T) {
	store := notificationtest.NewStore()
	store.AddUser("alice", "admin", "alice@example.com")
	store.AddUser("tom", "technician", "tom@example.com")
	store.Unstaffed = []notification.ScheduledJob{job(77, 5, 1)}

	gen := notification.NewGenerator(store, notification.GeneratorConfig{
		Now:     func() time.Time { return now },
		Manager: rules.Manager(),
	})

	s, err := gen.GenerateManager(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, s.NotificationsCreated)
	assert.Equal(t, 1, s.Rules[rules.NoCrew])

	require.Len(t, store.Notifications, 1)
	row := store.Notifications[0]
	assert.Equal(t, "alice", row.Recipient)
	assert.Equal(t, "no_crew", row.Subtype)
	assert.Equal(t, notification.SeverityError, row.Severity)
	assert.Equal(t, "no_crew_alice_77", row.DedupKey)

	s, err = gen.GenerateManager(context.Background())
	require.NoError(t, err)
	assert.Zero(t, s.NotificationsCreated)
	assert.Len(t, store.Notifications, 1)
}
