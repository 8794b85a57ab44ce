package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"careops_backend/platform/apperr"
)

const (
	opCreateTicket = "hr.repository.create_ticket"
	opGetTicket    = "hr.repository.get_ticket"
	opListTickets  = "hr.repository.list_tickets"
	opAssignTicket = "hr.repository.assign_ticket"
	opCloseTicket  = "hr.repository.close_ticket"
)

const (
	TicketStatusOpen     = "OPEN"
	TicketStatusAssigned = "ASSIGNED"
	TicketStatusClosed   = "CLOSED"
)

type Ticket struct {
	ID          uuid.UUID
	Subject     string
	Description string
	Category    string
	Status      string
	OpenedByID  uuid.UUID
	AssigneeID  *uuid.UUID
	Resolution  *string
	ClosedAt    *time.Time
	CreatedAt   time.Time
}

type CreateTicketParams struct {
	Subject     string
	Description string
	Category    string
	OpenedByID  uuid.UUID
}

const ticketColumns = `id, subject, description, category, status, opened_by_id,
	assignee_id, resolution, closed_at, created_at`

func scanTicket(row pgx.Row) (Ticket, error) {
	var t Ticket
	err := row.Scan(&t.ID, &t.Subject, &t.Description, &t.Category, &t.Status,
		&t.OpenedByID, &t.AssigneeID, &t.Resolution, &t.ClosedAt, &t.CreatedAt)
	return t, err
}

func (r *Repository) CreateTicket(ctx context.Context, p CreateTicketParams) (Ticket, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO hr_tickets (subject, description, category, status, opened_by_id)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+ticketColumns,
		p.Subject, p.Description, p.Category, TicketStatusOpen, p.OpenedByID,
	)
	t, err := scanTicket(row)
	if err != nil {
		return Ticket{}, apperr.Wrap(err, apperr.KindInternal, "failed to create ticket").WithOp(opCreateTicket)
	}
	return t, nil
}

func (r *Repository) GetTicket(ctx context.Context, id uuid.UUID) (Ticket, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM hr_tickets WHERE id = $1`, id)
	t, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Ticket{}, apperr.NotFound("ticket not found").WithOp(opGetTicket)
		}
		return Ticket{}, apperr.Wrap(err, apperr.KindInternal, "failed to get ticket").WithOp(opGetTicket)
	}
	return t, nil
}

// ListTickets returns tickets newest first, optionally filtered by status
// or assignee.
func (r *Repository) ListTickets(ctx context.Context, status string, assigneeID *uuid.UUID) ([]Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM hr_tickets WHERE 1=1`
	args := []any{}
	idx := 1
	if status != "" {
		query += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, status)
		idx++
	}
	if assigneeID != nil {
		query += fmt.Sprintf(" AND assignee_id = $%d", idx)
		args = append(args, *assigneeID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "failed to list tickets").WithOp(opListTickets)
	}
	defer rows.Close()

	var tickets []Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.KindInternal, "failed to scan ticket").WithOp(opListTickets)
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "failed to list tickets").WithOp(opListTickets)
	}
	return tickets, nil
}

// AssignTicket sets the assignee on an open or already assigned ticket.
// Reassignment is allowed; closed tickets are not.
func (r *Repository) AssignTicket(ctx context.Context, id, assigneeID uuid.UUID) (Ticket, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Ticket{}, apperr.Wrap(err, apperr.KindInternal, "failed to begin transaction").WithOp(opAssignTicket)
	}
	defer tx.Rollback(ctx)

	t, err := lockTicket(ctx, tx, id, opAssignTicket)
	if err != nil {
		return Ticket{}, err
	}
	if t.Status == TicketStatusClosed {
		return Ticket{}, apperr.Conflict("ticket is closed").WithOp(opAssignTicket)
	}

	row := tx.QueryRow(ctx,
		`UPDATE hr_tickets SET status = $2, assignee_id = $3 WHERE id = $1
		 RETURNING `+ticketColumns,
		id, TicketStatusAssigned, assigneeID,
	)
	t, err = scanTicket(row)
	if err != nil {
		return Ticket{}, apperr.Wrap(err, apperr.KindInternal, "failed to assign ticket").WithOp(opAssignTicket)
	}

	if err := tx.Commit(ctx); err != nil {
		return Ticket{}, apperr.Wrap(err, apperr.KindInternal, "failed to commit transaction").WithOp(opAssignTicket)
	}
	return t, nil
}

func (r *Repository) CloseTicket(ctx context.Context, id uuid.UUID, resolution string) (Ticket, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Ticket{}, apperr.Wrap(err, apperr.KindInternal, "failed to begin transaction").WithOp(opCloseTicket)
	}
	defer tx.Rollback(ctx)

	t, err := lockTicket(ctx, tx, id, opCloseTicket)
	if err != nil {
		return Ticket{}, err
	}
	if t.Status == TicketStatusClosed {
		return Ticket{}, apperr.Conflict("ticket is already closed").WithOp(opCloseTicket)
	}

	row := tx.QueryRow(ctx,
		`UPDATE hr_tickets SET status = $2, resolution = $3, closed_at = NOW() WHERE id = $1
		 RETURNING `+ticketColumns,
		id, TicketStatusClosed, resolution,
	)
	t, err = scanTicket(row)
	if err != nil {
		return Ticket{}, apperr.Wrap(err, apperr.KindInternal, "failed to close ticket").WithOp(opCloseTicket)
	}

	if err := tx.Commit(ctx); err != nil {
		return Ticket{}, apperr.Wrap(err, apperr.KindInternal, "failed to commit transaction").WithOp(opCloseTicket)
	}
	return t, nil
}

func lockTicket(ctx context.Context, tx pgx.Tx, id uuid.UUID, op string) (Ticket, error) {
	row := tx.QueryRow(ctx, `SELECT `+ticketColumns+` FROM hr_tickets WHERE id = $1 FOR UPDATE`, id)
	t, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Ticket{}, apperr.NotFound("ticket not found").WithOp(op)
		}
		return Ticket{}, apperr.Wrap(err, apperr.KindInternal, "failed to lock ticket").WithOp(op)
	}
	return t, nil
}
