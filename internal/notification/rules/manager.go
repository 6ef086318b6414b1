package rules

import (
	"context"
	"fmt"

	"fieldops.io/fieldops/internal/notification"
)

func evalNoCrew(ctx context.Context, src notification.Source, env notification.Env) (notification.Proposals, error) {
	jobs, err := src.SchedulesWithoutCrew(ctx, env.Today, env.AddDays(noCrewWindow))
	if err != nil {
		return notification.Proposals{}, fmt.Errorf("query unstaffed schedules: %w", err)
	}

	var out notification.Proposals
	for _, j := range jobs {
		days := env.DaysUntil(j.ScheduledDate)
		out.Broadcasts = append(out.Broadcasts, notification.Broadcast{
			Rule: NoCrew,
			Ref:  id(j.ScheduleID),
			Message: notification.Message{
				Category:       notification.CategorySchedule,
				Subtype:        NoCrew,
				Severity:       ImminentSeverity(days),
				Title:          fmt.Sprintf("No crew assigned: %s", j.WorkOrderNumber),
				Body:           fmt.Sprintf("%s for %s is scheduled %s and has no crew assigned.", j.WorkOrderNumber, j.CustomerName, when(days)),
				Related:        scheduleRef(j),
				ActionURL:      workOrderURL(j),
				ExpiresAt:      ptr(env.StartOfDayAfter(j.ScheduledDate)),
				EmailTemplate:  NoCrew,
				EmailVariables: jobVariables(j),
			},
		})
	}
	return out, nil
}

func evalMaterialShortage(ctx context.Context, src notification.Source, env notification.Env) (notification.Proposals, error) {
	totals, err := src.MaterialTotalsForSchedules(ctx, env.Today, env.AddDays(managerShortageWindow))
	if err != nil {
		return notification.Proposals{}, fmt.Errorf("query material totals: %w", err)
	}

	var out notification.Proposals
	for _, t := range totals {
		if t.ShortageLines == 0 {
			continue
		}
		days := env.DaysUntil(t.ScheduledDate)
		vars := jobVariables(t.ScheduledJob)
		vars["shortage_lines"] = t.ShortageLines
		out.Broadcasts = append(out.Broadcasts, notification.Broadcast{
			Rule: MaterialShortage,
			Ref:  id(t.WorkOrderID),
			Message: notification.Message{
				Category:       notification.CategoryInventory,
				Subtype:        MaterialShortage,
				Severity:       ShortageSeverity(days),
				Title:          fmt.Sprintf("Material shortage: %s", t.WorkOrderNumber),
				Body:           fmt.Sprintf("%s is scheduled %s with %d material line(s) short.", t.WorkOrderNumber, when(days), t.ShortageLines),
				Related:        workOrderRef(t.ScheduledJob),
				ActionURL:      workOrderURL(t.ScheduledJob),
				ExpiresAt:      ptr(env.StartOfDayAfter(t.ScheduledDate)),
				EmailTemplate:  MaterialShortage,
				EmailVariables: vars,
			},
		})
	}
	return out, nil
}

func evalZeroAllocation(ctx context.Context, src notification.Source, env notification.Env) (notification.Proposals, error) {
	totals, err := src.MaterialTotalsForSchedules(ctx, env.Today, env.AddDays(zeroAllocationWindow))
	if err != nil {
		return notification.Proposals{}, fmt.Errorf("query material totals: %w", err)
	}

	var out notification.Proposals
	for _, t := range totals {
		if t.Needed <= 0 || t.Allocated != 0 {
			continue
		}
		days := env.DaysUntil(t.ScheduledDate)
		vars := jobVariables(t.ScheduledJob)
		vars["quantity_needed"] = t.Needed
		out.Broadcasts = append(out.Broadcasts, notification.Broadcast{
			Rule: ZeroAllocation,
			Ref:  id(t.WorkOrderID),
			Message: notification.Message{
				Category:       notification.CategoryInventory,
				Subtype:        ZeroAllocation,
				Severity:       ImminentSeverity(days),
				Title:          fmt.Sprintf("No materials allocated: %s", t.WorkOrderNumber),
				Body:           fmt.Sprintf("%s is scheduled %s and none of its %d needed units are allocated.", t.WorkOrderNumber, when(days), t.Needed),
				Related:        workOrderRef(t.ScheduledJob),
				ActionURL:      workOrderURL(t.ScheduledJob),
				ExpiresAt:      ptr(env.StartOfDayAfter(t.ScheduledDate)),
				EmailTemplate:  ZeroAllocation,
				EmailVariables: vars,
			},
		})
	}
	return out, nil
}

func evalOverdue(ctx context.Context, src notification.Source, env notification.Env) (notification.Proposals, error) {
	jobs, err := src.SchedulesBefore(ctx, env.Today)
	if err != nil {
		return notification.Proposals{}, fmt.Errorf("query overdue schedules: %w", err)
	}

	var out notification.Proposals
	for _, j := range jobs {
		overdue := -env.DaysUntil(j.ScheduledDate)
		if overdue < 1 {
			continue
		}
		vars := jobVariables(j)
		vars["days_overdue"] = overdue
		out.Broadcasts = append(out.Broadcasts, notification.Broadcast{
			Rule: Overdue,
			Ref:  id(j.ScheduleID),
			Message: notification.Message{
				Category:       notification.CategoryWorkOrder,
				Subtype:        Overdue,
				Severity:       OverdueSeverity(overdue),
				Title:          fmt.Sprintf("Overdue job: %s", j.WorkOrderNumber),
				Body:           fmt.Sprintf("%s for %s was scheduled %d day(s) ago and is still %s.", j.WorkOrderNumber, j.CustomerName, overdue, j.WorkOrderStatus),
				Related:        workOrderRef(j),
				ActionURL:      workOrderURL(j),
				ExpiresAt:      ptr(env.StartOfDayAfter(env.Today)),
				EmailTemplate:  Overdue,
				EmailVariables: vars,
			},
		})
	}
	return out, nil
}
