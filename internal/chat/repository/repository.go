// Package repository persists per-lead chat threads.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"careops_backend/platform/apperr"
)

const (
	opCreate     = "chat.repository.create_message"
	opListByLead = "chat.repository.list_by_lead"
)

const (
	AuthorTypeUser   = "USER"
	AuthorTypeSystem = "SYSTEM"
)

// Message is one entry in a lead's thread. AuthorID is nil for SYSTEM
// messages posted by the pipeline itself.
type Message struct {
	ID         uuid.UUID
	LeadID     uuid.UUID
	AuthorID   *uuid.UUID
	AuthorType string
	Body       string
	CreatedAt  time.Time
}

type CreateParams struct {
	LeadID     uuid.UUID
	AuthorID   *uuid.UUID
	AuthorType string
	Body       string
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, p CreateParams) (Message, error) {
	var m Message
	err := r.pool.QueryRow(ctx,
		`INSERT INTO chat_messages (lead_id, author_id, author_type, body)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, lead_id, author_id, author_type, body, created_at`,
		p.LeadID, p.AuthorID, p.AuthorType, p.Body,
	).Scan(&m.ID, &m.LeadID, &m.AuthorID, &m.AuthorType, &m.Body, &m.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return Message{}, apperr.Validation("lead does not exist").WithOp(opCreate)
		}
		return Message{}, apperr.Wrap(err, apperr.KindInternal, "failed to create chat message").WithOp(opCreate)
	}
	return m, nil
}

// ListByLead returns the thread oldest first.
func (r *Repository) ListByLead(ctx context.Context, leadID uuid.UUID) ([]Message, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, lead_id, author_id, author_type, body, created_at
		 FROM chat_messages
		 WHERE lead_id = $1
		 ORDER BY created_at ASC, id ASC`,
		leadID,
	)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "failed to list chat messages").WithOp(opListByLead)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.LeadID, &m.AuthorID, &m.AuthorType, &m.Body, &m.CreatedAt); err != nil {
			return nil, apperr.Wrap(err, apperr.KindInternal, "failed to scan chat message").WithOp(opListByLead)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "failed to list chat messages").WithOp(opListByLead)
	}
	return messages, nil
}
