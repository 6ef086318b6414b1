package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"fieldops.io/fieldops/internal/notification"
)

// Work orders in these states never raise operational alerts.
const closedWorkOrder = `('completed', 'cancelled', 'invoiced')`

const jobColumns = `s.id, w.id, w.work_order_number, w.customer_name, w.job_address, w.status, s.scheduled_date`

func jobDest(j *notification.ScheduledJob) []any {
	return []any{&j.ScheduleID, &j.WorkOrderID, &j.WorkOrderNumber, &j.CustomerName, &j.JobAddress, &j.WorkOrderStatus, &j.ScheduledDate}
}

func collectJobs(rows pgx.Rows) ([]notification.ScheduledJob, error) {
	defer rows.Close()
	var out []notification.ScheduledJob
	for rows.Next() {
		var j notification.ScheduledJob
		if err := rows.Scan(jobDest(&j)...); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func collectCrew(rows pgx.Rows) ([]notification.CrewAssignment, error) {
	defer rows.Close()
	var out []notification.CrewAssignment
	for rows.Next() {
		var a notification.CrewAssignment
		if err := rows.Scan(append(jobDest(&a.ScheduledJob), &a.Technician)...); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func collectCrewMaterials(rows pgx.Rows) ([]notification.CrewMaterial, error) {
	defer rows.Close()
	var out []notification.CrewMaterial
	for rows.Next() {
		var m notification.CrewMaterial
		dest := append(jobDest(&m.ScheduledJob), &m.Technician,
			&m.Line.WorkOrderID, &m.Line.ItemID, &m.Line.Description,
			&m.Line.Needed, &m.Line.Allocated, &m.Line.Loaded, &m.Line.Used, &m.Line.Returned, &m.Line.StockStatus)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

const schedulesWithoutCrew = `-- name: SchedulesWithoutCrew :many
SELECT ` + jobColumns + `
FROM job_schedules s
JOIN work_orders w ON w.id = s.work_order_id
WHERE s.scheduled_date BETWEEN $1 AND $2
  AND s.status NOT IN ('cancelled', 'completed')
  AND w.status NOT IN ` + closedWorkOrder + `
  AND NOT EXISTS (SELECT 1 FROM job_crew c WHERE c.job_schedule_id = s.id)
ORDER BY s.scheduled_date, s.id`

func (q *Queries) SchedulesWithoutCrew(ctx context.Context, from, to time.Time) ([]notification.ScheduledJob, error) {
	rows, err := q.db.Query(ctx, schedulesWithoutCrew, from, to)
	if err != nil {
		return nil, err
	}
	return collectJobs(rows)
}

const materialTotalsForSchedules = `-- name: MaterialTotalsForSchedules :many
WITH next_schedule AS (
    SELECT DISTINCT ON (work_order_id) id, work_order_id, scheduled_date
    FROM job_schedules
    WHERE scheduled_date BETWEEN $1 AND $2
      AND status NOT IN ('cancelled', 'completed')
    ORDER BY work_order_id, scheduled_date, id
)
SELECT s.id, w.id, w.work_order_number, w.customer_name, w.job_address, w.status, s.scheduled_date,
       COUNT(*) FILTER (WHERE m.stock_status IN ('shortage', 'partial')),
       COALESCE(SUM(m.quantity_needed), 0),
       COALESCE(SUM(m.quantity_allocated), 0),
       COALESCE(SUM(m.quantity_loaded), 0)
FROM next_schedule s
JOIN work_orders w ON w.id = s.work_order_id
JOIN work_order_materials m ON m.work_order_id = w.id
WHERE w.status NOT IN ` + closedWorkOrder + `
GROUP BY s.id, s.scheduled_date, w.id
ORDER BY s.scheduled_date, w.id`

func (q *Queries) MaterialTotalsForSchedules(ctx context.Context, from, to time.Time) ([]notification.MaterialTotals, error) {
	rows, err := q.db.Query(ctx, materialTotalsForSchedules, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []notification.MaterialTotals
	for rows.Next() {
		var t notification.MaterialTotals
		dest := append(jobDest(&t.ScheduledJob), &t.ShortageLines, &t.Needed, &t.Allocated, &t.Loaded)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const schedulesBefore = `-- name: SchedulesBefore :many
SELECT DISTINCT ON (w.id) ` + jobColumns + `
FROM job_schedules s
JOIN work_orders w ON w.id = s.work_order_id
WHERE s.scheduled_date < $1
  AND s.status <> 'cancelled'
  AND w.status NOT IN ` + closedWorkOrder + `
  AND NOT EXISTS (
      SELECT 1 FROM job_schedules f
      WHERE f.work_order_id = w.id AND f.scheduled_date >= $1 AND f.status <> 'cancelled'
  )
ORDER BY w.id, s.scheduled_date DESC, s.id DESC`

// SchedulesBefore returns the latest past schedule of each open work order
// that has nothing scheduled from day onwards.
func (q *Queries) SchedulesBefore(ctx context.Context, day time.Time) ([]notification.ScheduledJob, error) {
	rows, err := q.db.Query(ctx, schedulesBefore, day)
	if err != nil {
		return nil, err
	}
	return collectJobs(rows)
}

const crewAssignments = `-- name: CrewAssignments :many
SELECT ` + jobColumns + `, c.employee_username
FROM job_crew c
JOIN job_schedules s ON s.id = c.job_schedule_id
JOIN work_orders w ON w.id = s.work_order_id
JOIN users u ON u.username = c.employee_username
WHERE s.scheduled_date BETWEEN $1 AND $2
  AND s.status NOT IN ('cancelled', 'completed')
  AND w.status NOT IN ` + closedWorkOrder + `
  AND u.active
ORDER BY s.scheduled_date, s.id, c.employee_username`

func (q *Queries) CrewAssignments(ctx context.Context, from, to time.Time) ([]notification.CrewAssignment, error) {
	rows, err := q.db.Query(ctx, crewAssignments, from, to)
	if err != nil {
		return nil, err
	}
	return collectCrew(rows)
}

const materialColumns = `m.work_order_id, m.item_id, m.item_description,
       m.quantity_needed, m.quantity_allocated, m.quantity_loaded, m.quantity_used, m.quantity_returned, m.stock_status`

const crewMaterialLines = `-- name: CrewMaterialLines :many
SELECT ` + jobColumns + `, c.employee_username,
       ` + materialColumns + `
FROM job_crew c
JOIN job_schedules s ON s.id = c.job_schedule_id
JOIN work_orders w ON w.id = s.work_order_id
JOIN users u ON u.username = c.employee_username
JOIN work_order_materials m ON m.work_order_id = w.id
WHERE s.scheduled_date BETWEEN $1 AND $2
  AND s.status NOT IN ('cancelled', 'completed')
  AND w.status NOT IN ` + closedWorkOrder + `
  AND u.active
ORDER BY s.scheduled_date, s.id, c.employee_username, m.id`

func (q *Queries) CrewMaterialLines(ctx context.Context, from, to time.Time) ([]notification.CrewMaterial, error) {
	rows, err := q.db.Query(ctx, crewMaterialLines, from, to)
	if err != nil {
		return nil, err
	}
	return collectCrewMaterials(rows)
}

const crewAssignmentsWithoutTimeEntry = `-- name: CrewAssignmentsWithoutTimeEntry :many
SELECT ` + jobColumns + `, c.employee_username
FROM job_crew c
JOIN job_schedules s ON s.id = c.job_schedule_id
JOIN work_orders w ON w.id = s.work_order_id
JOIN users u ON u.username = c.employee_username
WHERE s.scheduled_date BETWEEN $1 AND $2
  AND s.status <> 'cancelled'
  AND w.status <> 'cancelled'
  AND u.active
  AND NOT EXISTS (
      SELECT 1 FROM time_entries t
      WHERE t.employee_username = c.employee_username
        AND t.work_order_id = w.id
        AND t.work_date = s.scheduled_date
  )
ORDER BY s.scheduled_date, s.id, c.employee_username`

func (q *Queries) CrewAssignmentsWithoutTimeEntry(ctx context.Context, from, to time.Time) ([]notification.CrewAssignment, error) {
	rows, err := q.db.Query(ctx, crewAssignmentsWithoutTimeEntry, from, to)
	if err != nil {
		return nil, err
	}
	return collectCrew(rows)
}

const completedCrewMaterialLines = `-- name: CompletedCrewMaterialLines :many
SELECT DISTINCT ON (c.employee_username, m.id) ` + jobColumns + `, c.employee_username,
       ` + materialColumns + `
FROM job_crew c
JOIN job_schedules s ON s.id = c.job_schedule_id
JOIN work_orders w ON w.id = s.work_order_id
JOIN users u ON u.username = c.employee_username
JOIN work_order_materials m ON m.work_order_id = w.id
WHERE w.status = 'completed'
  AND u.active
  AND m.quantity_loaded > m.quantity_used + m.quantity_returned
ORDER BY c.employee_username, m.id, s.scheduled_date DESC`

func (q *Queries) CompletedCrewMaterialLines(ctx context.Context) ([]notification.CrewMaterial, error) {
	rows, err := q.db.Query(ctx, completedCrewMaterialLines)
	if err != nil {
		return nil, err
	}
	return collectCrewMaterials(rows)
}
