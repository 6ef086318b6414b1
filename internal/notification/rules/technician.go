package rules

import (
	"context"
	"fmt"
	"time"

	"fieldops.io/fieldops/internal/notification"
)

func evalReminderTomorrow(ctx context.Context, src notification.Source, env notification.Env) (notification.Proposals, error) {
	return reminders(ctx, src, env, 1, ReminderTomorrow, notification.SeverityInfo)
}

func evalReminderToday(ctx context.Context, src notification.Source, env notification.Env) (notification.Proposals, error) {
	return reminders(ctx, src, env, 0, ReminderToday, notification.SeverityWarning)
}

func reminders(ctx context.Context, src notification.Source, env notification.Env, offset int, name string, sev notification.Severity) (notification.Proposals, error) {
	day := env.AddDays(offset)
	crew, err := src.CrewAssignments(ctx, day, day)
	if err != nil {
		return notification.Proposals{}, fmt.Errorf("query crew assignments: %w", err)
	}

	var out notification.Proposals
	for _, a := range crew {
		out.Candidates = append(out.Candidates, notification.Candidate{
			Recipient: a.Technician,
			DedupKey:  notification.DedupKey(name, a.Technician, id(a.ScheduleID)),
			Message: notification.Message{
				Category:       notification.CategorySchedule,
				Subtype:        name,
				Severity:       sev,
				Title:          fmt.Sprintf("Job %s: %s", when(offset), a.WorkOrderNumber),
				Body:           fmt.Sprintf("You are on the crew for %s at %s (%s) %s.", a.WorkOrderNumber, a.JobAddress, a.CustomerName, when(offset)),
				Related:        scheduleRef(a.ScheduledJob),
				ActionURL:      workOrderURL(a.ScheduledJob),
				ExpiresAt:      ptr(env.StartOfDayAfter(a.ScheduledDate)),
				EmailTemplate:  name,
				EmailVariables: jobVariables(a.ScheduledJob),
			},
		})
	}
	return out, nil
}

func evalTechShortage(ctx context.Context, src notification.Source, env notification.Env) (notification.Proposals, error) {
	lines, err := src.CrewMaterialLines(ctx, env.Today, env.AddDays(techShortageWindow))
	if err != nil {
		return notification.Proposals{}, fmt.Errorf("query crew material lines: %w", err)
	}

	var out notification.Proposals
	for _, m := range lines {
		if m.Line.StockStatus != "shortage" && m.Line.StockStatus != "partial" {
			continue
		}
		vars := jobVariables(m.ScheduledJob)
		vars["item_description"] = m.Line.Description
		vars["stock_status"] = m.Line.StockStatus
		out.Candidates = append(out.Candidates, notification.Candidate{
			Recipient: m.Technician,
			DedupKey:  notification.DedupKey(TechShortage, m.Technician, id(m.WorkOrderID), id(m.Line.ItemID)),
			Message: notification.Message{
				Category:       notification.CategoryInventory,
				Subtype:        TechShortage,
				Severity:       notification.SeverityWarning,
				Title:          fmt.Sprintf("Material %s: %s", m.Line.StockStatus, m.Line.Description),
				Body:           fmt.Sprintf("%s on %s (%s) is in %s stock: %d of %d allocated.", m.Line.Description, m.WorkOrderNumber, when(env.DaysUntil(m.ScheduledDate)), m.Line.StockStatus, m.Line.Allocated, m.Line.Needed),
				Related:        workOrderRef(m.ScheduledJob),
				ActionURL:      workOrderURL(m.ScheduledJob),
				ExpiresAt:      ptr(env.StartOfDayAfter(m.ScheduledDate)),
				EmailTemplate:  TechShortage,
				EmailVariables: vars,
			},
		})
	}
	return out, nil
}

func evalReadyForPickup(ctx context.Context, src notification.Source, env notification.Env) (notification.Proposals, error) {
	lines, err := src.CrewMaterialLines(ctx, env.Today, env.AddDays(pickupWindow))
	if err != nil {
		return notification.Proposals{}, fmt.Errorf("query crew material lines: %w", err)
	}

	type pickupKey struct {
		tech string
		wo   int64
	}
	pending := map[pickupKey]int{}
	first := map[pickupKey]notification.CrewAssignment{}
	var order []pickupKey
	for _, m := range lines {
		waiting := m.Line.Allocated - m.Line.Loaded
		if waiting <= 0 {
			continue
		}
		k := pickupKey{m.Technician, m.WorkOrderID}
		if _, seen := first[k]; !seen {
			first[k] = m.CrewAssignment
			order = append(order, k)
		}
		// keep the earliest schedule for the expiry
		if m.ScheduledDate.Before(first[k].ScheduledDate) {
			first[k] = m.CrewAssignment
		}
		pending[k] += waiting
	}

	var out notification.Proposals
	for _, k := range order {
		a := first[k]
		vars := jobVariables(a.ScheduledJob)
		vars["quantity_ready"] = pending[k]
		out.Candidates = append(out.Candidates, notification.Candidate{
			Recipient: a.Technician,
			DedupKey:  notification.DedupKey(ReadyForPickup, a.Technician, id(a.WorkOrderID)),
			Message: notification.Message{
				Category:       notification.CategoryInventory,
				Subtype:        ReadyForPickup,
				Severity:       notification.SeverityInfo,
				Title:          fmt.Sprintf("Materials ready for pickup: %s", a.WorkOrderNumber),
				Body:           fmt.Sprintf("%d allocated unit(s) for %s are waiting to be loaded.", pending[k], a.WorkOrderNumber),
				Related:        workOrderRef(a.ScheduledJob),
				ActionURL:      workOrderURL(a.ScheduledJob),
				ExpiresAt:      ptr(env.StartOfDayAfter(a.ScheduledDate)),
				EmailTemplate:  ReadyForPickup,
				EmailVariables: vars,
			},
		})
	}
	return out, nil
}

func evalMissingTimeEntry(ctx context.Context, src notification.Source, env notification.Env) (notification.Proposals, error) {
	crew, err := src.CrewAssignmentsWithoutTimeEntry(ctx, env.AddDays(-timeEntryLookback), env.AddDays(-1))
	if err != nil {
		return notification.Proposals{}, fmt.Errorf("query missing time entries: %w", err)
	}

	// Each alert expires once its date leaves the look-back window.
	var out notification.Proposals
	for _, a := range crew {
		date := a.ScheduledDate.Format(time.DateOnly)
		out.Candidates = append(out.Candidates, notification.Candidate{
			Recipient: a.Technician,
			DedupKey:  notification.DedupKey(MissingTimeEntry, a.Technician, id(a.ScheduleID)),
			Message: notification.Message{
				Category:       notification.CategoryTimesheet,
				Subtype:        MissingTimeEntry,
				Severity:       notification.SeverityWarning,
				Title:          fmt.Sprintf("Missing time entry for %s", date),
				Body:           fmt.Sprintf("No time was logged for %s on %s.", a.WorkOrderNumber, date),
				Related:        scheduleRef(a.ScheduledJob),
				ActionURL:      "/time-entries?date=" + date,
				ExpiresAt:      ptr(env.StartOfDayAfter(a.ScheduledDate.AddDate(0, 0, timeEntryLookback))),
				EmailTemplate:  MissingTimeEntry,
				EmailVariables: jobVariables(a.ScheduledJob),
			},
		})
	}
	return out, nil
}

func evalUnreturnedMaterials(ctx context.Context, src notification.Source, env notification.Env) (notification.Proposals, error) {
	lines, err := src.CompletedCrewMaterialLines(ctx)
	if err != nil {
		return notification.Proposals{}, fmt.Errorf("query completed job materials: %w", err)
	}

	var out notification.Proposals
	seen := map[string]bool{}
	for _, m := range lines {
		outstanding := m.Line.Loaded - m.Line.Used - m.Line.Returned
		if outstanding <= 0 {
			continue
		}
		key := notification.DedupKey(UnreturnedMaterials, m.Technician, id(m.WorkOrderID), id(m.Line.ItemID))
		if seen[key] {
			continue
		}
		seen[key] = true

		vars := jobVariables(m.ScheduledJob)
		vars["item_description"] = m.Line.Description
		vars["quantity_outstanding"] = outstanding
		out.Candidates = append(out.Candidates, notification.Candidate{
			Recipient: m.Technician,
			DedupKey:  key,
			Message: notification.Message{
				Category:       notification.CategoryInventory,
				Subtype:        UnreturnedMaterials,
				Severity:       notification.SeverityWarning,
				Title:          fmt.Sprintf("Unreturned materials: %s", m.WorkOrderNumber),
				Body:           fmt.Sprintf("%d x %s loaded for completed job %s were neither used nor returned.", outstanding, m.Line.Description, m.WorkOrderNumber),
				Related:        workOrderRef(m.ScheduledJob),
				ActionURL:      workOrderURL(m.ScheduledJob),
				ExpiresAt:      ptr(env.Now.Add(unreturnedTTL)),
				EmailTemplate:  UnreturnedMaterials,
				EmailVariables: vars,
			},
		})
	}
	return out, nil
}
