// Package repository persists HR records: attendance, leave and tickets.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"careops_backend/platform/apperr"
)

const (
	opUpsertAttendance = "hr.repository.upsert_attendance"
	opListAttendance   = "hr.repository.list_attendance"
)

// AttendanceRecord is one employee-day, written by the punch feed sync.
// The (employee, day) pair is unique; later punches extend the same row.
type AttendanceRecord struct {
	ID         uuid.UUID
	EmployeeID uuid.UUID
	Day        time.Time
	CheckIn    *time.Time
	CheckOut   *time.Time
	Source     string
	UpdatedAt  time.Time
}

type UpsertAttendanceParams struct {
	EmployeeID uuid.UUID
	Day        time.Time
	CheckIn    *time.Time
	CheckOut   *time.Time
	Source     string
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// UpsertAttendance records or extends an employee-day. Check-in keeps the
// earliest seen value, check-out the latest, so re-running a sync over the
// same feed window is harmless.
func (r *Repository) UpsertAttendance(ctx context.Context, p UpsertAttendanceParams) (AttendanceRecord, error) {
	var rec AttendanceRecord
	err := r.pool.QueryRow(ctx,
		`INSERT INTO hr_attendance (employee_id, day, check_in, check_out, source)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (employee_id, day) DO UPDATE SET
		   check_in  = LEAST(COALESCE(hr_attendance.check_in, EXCLUDED.check_in), COALESCE(EXCLUDED.check_in, hr_attendance.check_in)),
		   check_out = GREATEST(COALESCE(hr_attendance.check_out, EXCLUDED.check_out), COALESCE(EXCLUDED.check_out, hr_attendance.check_out)),
		   source    = EXCLUDED.source,
		   updated_at = NOW()
		 RETURNING id, employee_id, day, check_in, check_out, source, updated_at`,
		p.EmployeeID, p.Day, p.CheckIn, p.CheckOut, p.Source,
	).Scan(&rec.ID, &rec.EmployeeID, &rec.Day, &rec.CheckIn, &rec.CheckOut, &rec.Source, &rec.UpdatedAt)
	if err != nil {
		return AttendanceRecord{}, apperr.Wrap(err, apperr.KindInternal, "failed to upsert attendance").WithOp(opUpsertAttendance)
	}
	return rec, nil
}

// ListAttendance returns an employee's records for [from, to], oldest first.
func (r *Repository) ListAttendance(ctx context.Context, employeeID uuid.UUID, from, to time.Time) ([]AttendanceRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, employee_id, day, check_in, check_out, source, updated_at
		 FROM hr_attendance
		 WHERE employee_id = $1 AND day >= $2 AND day <= $3
		 ORDER BY day ASC`,
		employeeID, from, to,
	)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "failed to list attendance").WithOp(opListAttendance)
	}
	defer rows.Close()

	var records []AttendanceRecord
	for rows.Next() {
		var rec AttendanceRecord
		if err := rows.Scan(&rec.ID, &rec.EmployeeID, &rec.Day, &rec.CheckIn, &rec.CheckOut, &rec.Source, &rec.UpdatedAt); err != nil {
			return nil, apperr.Wrap(err, apperr.KindInternal, "failed to scan attendance record").WithOp(opListAttendance)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "failed to list attendance").WithOp(opListAttendance)
	}
	return records, nil
}
