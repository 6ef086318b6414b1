package notification

import (
	"context"
	"time"
)

// ScheduledJob is one job_schedules row joined with its work order.
// ScheduledDate is a civil date at UTC midnight.
type ScheduledJob struct {
	ScheduleID      int64
	WorkOrderID     int64
	WorkOrderNumber string
	CustomerName    string
	JobAddress      string
	WorkOrderStatus string
	ScheduledDate   time.Time
}

// CrewAssignment is a technician assigned to a scheduled job.
type CrewAssignment struct {
	ScheduledJob
	Technician string
}

// MaterialTotals aggregates a work order's material lines.
type MaterialTotals struct {
	ScheduledJob
	ShortageLines int
	Needed        int
	Allocated     int
	Loaded        int
}

// MaterialLine is one work_order_materials row.
type MaterialLine struct {
	WorkOrderID int64
	ItemID      int64
	Description string
	Needed      int
	Allocated   int
	Loaded      int
	Used        int
	Returned    int
	StockStatus string
}

// CrewMaterial is a material line on a job a technician is assigned to.
type CrewMaterial struct {
	CrewAssignment
	Line MaterialLine
}

// Source is the read-only operational view the rule evaluators scan.
// Date bounds are inclusive civil dates.
type Source interface {
	// SchedulesWithoutCrew returns active schedules in [from, to] with zero crew rows.
	SchedulesWithoutCrew(ctx context.Context, from, to time.Time) ([]ScheduledJob, error)
	// MaterialTotalsForSchedules returns per-work-order material totals for the
	// earliest active schedule of each work order in [from, to].
	MaterialTotalsForSchedules(ctx context.Context, from, to time.Time) ([]MaterialTotals, error)
	// SchedulesBefore returns schedules dated before day whose work order is still open.
	SchedulesBefore(ctx context.Context, day time.Time) ([]ScheduledJob, error)
	// CrewAssignments returns active technicians on active schedules in [from, to].
	CrewAssignments(ctx context.Context, from, to time.Time) ([]CrewAssignment, error)
	// CrewMaterialLines returns material lines on jobs assigned in [from, to].
	CrewMaterialLines(ctx context.Context, from, to time.Time) ([]CrewMaterial, error)
	// CrewAssignmentsWithoutTimeEntry returns assignments in [from, to] with no
	// matching time entry for (technician, work order, date).
	CrewAssignmentsWithoutTimeEntry(ctx context.Context, from, to time.Time) ([]CrewAssignment, error)
	// CompletedCrewMaterialLines returns material lines of completed work orders
	// for every technician who worked on them.
	CompletedCrewMaterialLines(ctx context.Context) ([]CrewMaterial, error)
}

// Tx is the transactional view handed to one generation run.
type Tx interface {
	Store
	Source
}

// TxRunner runs fn inside one transaction: commit when fn returns nil,
// roll back otherwise.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
