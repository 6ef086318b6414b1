// Package rules holds the rule evaluators behind notification generation.
//
// Each evaluator is a stateless scan over notification.Source. Manager rules
// emit broadcasts to every active admin and manager; technician rules emit
// candidates addressed to the assigned technician.
package rules

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"fieldops.io/fieldops/internal/notification"
)

// Rule names; they prefix every dedup key and key the summary counts.
const (
	NoCrew              = "no_crew"
	MaterialShortage    = "material_shortage"
	ZeroAllocation      = "zero_allocation"
	Overdue             = "overdue"
	ReminderTomorrow    = "reminder_tomorrow"
	ReminderToday       = "reminder_today"
	TechShortage        = "tech_shortage"
	ReadyForPickup      = "ready_for_pickup"
	MissingTimeEntry    = "missing_time_entry"
	UnreturnedMaterials = "unreturned_materials"
)

// Look-ahead and look-back windows in days.
const (
	noCrewWindow          = 3
	managerShortageWindow = 5
	zeroAllocationWindow  = 3
	techShortageWindow    = 7
	pickupWindow          = 3
	timeEntryLookback     = 7

	overdueErrorDays = 7
	unreturnedTTL    = 7 * 24 * time.Hour
)

type evalFunc func(ctx context.Context, src notification.Source, env notification.Env) (notification.Proposals, error)

type rule struct {
	name string
	eval evalFunc
}

func (r rule) Name() string { return r.name }

func (r rule) Evaluate(ctx context.Context, src notification.Source, env notification.Env) (notification.Proposals, error) {
	return r.eval(ctx, src, env)
}

// Manager returns the manager-facing rules in evaluation order.
func Manager() []notification.Evaluator {
	return []notification.Evaluator{
		rule{NoCrew, evalNoCrew},
		rule{MaterialShortage, evalMaterialShortage},
		rule{ZeroAllocation, evalZeroAllocation},
		rule{Overdue, evalOverdue},
	}
}

// Technician returns the technician-facing rules in evaluation order.
func Technician() []notification.Evaluator {
	return []notification.Evaluator{
		rule{ReminderTomorrow, evalReminderTomorrow},
		rule{ReminderToday, evalReminderToday},
		rule{TechShortage, evalTechShortage},
		rule{ReadyForPickup, evalReadyForPickup},
		rule{MissingTimeEntry, evalMissingTimeEntry},
		rule{UnreturnedMaterials, evalUnreturnedMaterials},
	}
}

// ImminentSeverity grades jobs due today or tomorrow as errors.
func ImminentSeverity(daysUntil int) notification.Severity {
	if daysUntil <= 1 {
		return notification.SeverityError
	}
	return notification.SeverityWarning
}

// ShortageSeverity grades a manager-facing material shortage.
func ShortageSeverity(daysUntil int) notification.Severity {
	switch {
	case daysUntil <= 1:
		return notification.SeverityError
	case daysUntil <= 3:
		return notification.SeverityWarning
	default:
		return notification.SeverityInfo
	}
}

// OverdueSeverity grades a job by days past its scheduled date.
func OverdueSeverity(daysOverdue int) notification.Severity {
	if daysOverdue >= overdueErrorDays {
		return notification.SeverityError
	}
	return notification.SeverityWarning
}

func id(n int64) string { return strconv.FormatInt(n, 10) }

func when(daysUntil int) string {
	switch daysUntil {
	case 0:
		return "today"
	case 1:
		return "tomorrow"
	default:
		return fmt.Sprintf("in %d days", daysUntil)
	}
}

func ptr(t time.Time) *time.Time { return &t }

func scheduleRef(j notification.ScheduledJob) *notification.EntityRef {
	return &notification.EntityRef{Type: "job_schedule", ID: j.ScheduleID}
}

func workOrderRef(j notification.ScheduledJob) *notification.EntityRef {
	return &notification.EntityRef{Type: "work_order", ID: j.WorkOrderID}
}

func workOrderURL(j notification.ScheduledJob) string {
	return "/work-orders/" + id(j.WorkOrderID)
}

func jobVariables(j notification.ScheduledJob) map[string]any {
	return map[string]any{
		"work_order_number": j.WorkOrderNumber,
		"customer_name":     j.CustomerName,
		"job_address":       j.JobAddress,
		"scheduled_date":    j.ScheduledDate.Format(time.DateOnly),
	}
}
