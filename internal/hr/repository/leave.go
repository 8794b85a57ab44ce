package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"careops_backend/platform/apperr"
)

const (
	opCreateLeave = "hr.repository.create_leave_request"
	opGetLeave    = "hr.repository.get_leave_request"
	opListLeave   = "hr.repository.list_leave_requests"
	opDecideLeave = "hr.repository.decide_leave_request"
)

const (
	LeaveStatusPending  = "PENDING"
	LeaveStatusApproved = "APPROVED"
	LeaveStatusRejected = "REJECTED"
)

type LeaveRequest struct {
	ID           uuid.UUID
	EmployeeID   uuid.UUID
	StartDate    time.Time
	EndDate      time.Time
	LeaveType    string
	Reason       string
	Status       string
	DecisionNote *string
	DecidedByID  *uuid.UUID
	DecidedAt    *time.Time
	CreatedAt    time.Time
}

type CreateLeaveParams struct {
	EmployeeID uuid.UUID
	StartDate  time.Time
	EndDate    time.Time
	LeaveType  string
	Reason     string
}

const leaveColumns = `id, employee_id, start_date, end_date, leave_type, reason,
	status, decision_note, decided_by_id, decided_at, created_at`

func scanLeave(row pgx.Row) (LeaveRequest, error) {
	var lr LeaveRequest
	err := row.Scan(&lr.ID, &lr.EmployeeID, &lr.StartDate, &lr.EndDate, &lr.LeaveType,
		&lr.Reason, &lr.Status, &lr.DecisionNote, &lr.DecidedByID, &lr.DecidedAt, &lr.CreatedAt)
	return lr, err
}

func (r *Repository) CreateLeaveRequest(ctx context.Context, p CreateLeaveParams) (LeaveRequest, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO hr_leave_requests (employee_id, start_date, end_date, leave_type, reason, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+leaveColumns,
		p.EmployeeID, p.StartDate, p.EndDate, p.LeaveType, p.Reason, LeaveStatusPending,
	)
	lr, err := scanLeave(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return LeaveRequest{}, apperr.Validation("employee does not exist").WithOp(opCreateLeave)
		}
		return LeaveRequest{}, apperr.Wrap(err, apperr.KindInternal, "failed to create leave request").WithOp(opCreateLeave)
	}
	return lr, nil
}

func (r *Repository) GetLeaveRequest(ctx context.Context, id uuid.UUID) (LeaveRequest, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+leaveColumns+` FROM hr_leave_requests WHERE id = $1`, id)
	lr, err := scanLeave(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LeaveRequest{}, apperr.NotFound("leave request not found").WithOp(opGetLeave)
		}
		return LeaveRequest{}, apperr.Wrap(err, apperr.KindInternal, "failed to get leave request").WithOp(opGetLeave)
	}
	return lr, nil
}

// ListLeaveRequests returns requests newest first, optionally filtered by
// employee and status.
func (r *Repository) ListLeaveRequests(ctx context.Context, employeeID *uuid.UUID, status string) ([]LeaveRequest, error) {
	query := `SELECT ` + leaveColumns + ` FROM hr_leave_requests WHERE 1=1`
	args := []any{}
	idx := 1
	if employeeID != nil {
		query += fmt.Sprintf(" AND employee_id = $%d", idx)
		args = append(args, *employeeID)
		idx++
	}
	if status != "" {
		query += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "failed to list leave requests").WithOp(opListLeave)
	}
	defer rows.Close()

	var requests []LeaveRequest
	for rows.Next() {
		lr, err := scanLeave(rows)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.KindInternal, "failed to scan leave request").WithOp(opListLeave)
		}
		requests = append(requests, lr)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "failed to list leave requests").WithOp(opListLeave)
	}
	return requests, nil
}

// DecideLeaveRequest moves a pending request to APPROVED or REJECTED. The
// row is locked and its status re-checked so two managers cannot both
// decide it.
func (r *Repository) DecideLeaveRequest(ctx context.Context, id uuid.UUID, status string, note *string, decidedBy uuid.UUID) (LeaveRequest, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return LeaveRequest{}, apperr.Wrap(err, apperr.KindInternal, "failed to begin transaction").WithOp(opDecideLeave)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT `+leaveColumns+` FROM hr_leave_requests WHERE id = $1 FOR UPDATE`, id)
	lr, err := scanLeave(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LeaveRequest{}, apperr.NotFound("leave request not found").WithOp(opDecideLeave)
		}
		return LeaveRequest{}, apperr.Wrap(err, apperr.KindInternal, "failed to lock leave request").WithOp(opDecideLeave)
	}
	if lr.Status != LeaveStatusPending {
		return LeaveRequest{}, apperr.Conflict("leave request has already been decided").WithOp(opDecideLeave)
	}

	row = tx.QueryRow(ctx,
		`UPDATE hr_leave_requests
		 SET status = $2, decision_note = $3, decided_by_id = $4, decided_at = NOW()
		 WHERE id = $1
		 RETURNING `+leaveColumns,
		id, status, note, decidedBy,
	)
	lr, err = scanLeave(row)
	if err != nil {
		return LeaveRequest{}, apperr.Wrap(err, apperr.KindInternal, "failed to decide leave request").WithOp(opDecideLeave)
	}

	if err := tx.Commit(ctx); err != nil {
		return LeaveRequest{}, apperr.Wrap(err, apperr.KindInternal, "failed to commit transaction").WithOp(opDecideLeave)
	}
	return lr, nil
}
