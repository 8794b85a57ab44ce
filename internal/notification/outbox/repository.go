// Package outbox stores email jobs durably so a crash between a domain
// commit and the SMTP send loses nothing. The scheduler worker claims due
// rows and dispatches them.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"

	errRepoNotConfigured = "outbox repository not configured"

	// maxAttempts bounds retries before a record is parked as failed.
	maxAttempts = 5
)

type Record struct {
	ID        uuid.UUID
	Kind      string
	Recipient string
	Subject   string
	Payload   json.RawMessage
	RunAt     time.Time
	Status    Status
	Attempts  int
	LastError *string
}

type InsertParams struct {
	Kind      string
	Recipient string
	Subject   string
	Payload   any
	RunAt     time.Time
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, p InsertParams) (uuid.UUID, error) {
	if r == nil || r.pool == nil {
		return uuid.Nil, errors.New(errRepoNotConfigured)
	}
	if p.Kind == "" {
		return uuid.Nil, fmt.Errorf("kind is required")
	}
	if p.Recipient == "" {
		return uuid.Nil, fmt.Errorf("recipient is required")
	}
	if p.RunAt.IsZero() {
		p.RunAt = time.Now().UTC()
	}

	payloadBytes, err := json.Marshal(p.Payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal payload: %w", err)
	}

	var id uuid.UUID
	err = r.pool.QueryRow(ctx,
		`INSERT INTO notification_outbox (kind, recipient, subject, payload, run_at, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		p.Kind, p.Recipient, p.Subject, payloadBytes, p.RunAt, string(StatusPending),
	).Scan(&id)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// ClaimDue moves due pending records to processing and returns them.
// The claim is a single statement, and SKIP LOCKED keeps concurrent
// workers from grabbing the same rows.
func (r *Repository) ClaimDue(ctx context.Context, limit int) ([]Record, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New(errRepoNotConfigured)
	}
	if limit < 1 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
		UPDATE notification_outbox
		SET status = $3, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM notification_outbox
			WHERE status = $1 AND run_at <= NOW()
			ORDER BY run_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, kind, recipient, subject, payload, run_at, status, attempts, last_error`,
		string(StatusPending), limit, string(StatusProcessing))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var status string
		if err := rows.Scan(&rec.ID, &rec.Kind, &rec.Recipient, &rec.Subject, &rec.Payload,
			&rec.RunAt, &status, &rec.Attempts, &rec.LastError); err != nil {
			return nil, err
		}
		rec.Status = Status(status)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Get loads one record by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Record, error) {
	if r == nil || r.pool == nil {
		return Record{}, errors.New(errRepoNotConfigured)
	}

	var rec Record
	var status string
	err := r.pool.QueryRow(ctx, `
		SELECT id, kind, recipient, subject, payload, run_at, status, attempts, last_error
		FROM notification_outbox
		WHERE id = $1`,
		id,
	).Scan(&rec.ID, &rec.Kind, &rec.Recipient, &rec.Subject, &rec.Payload,
		&rec.RunAt, &status, &rec.Attempts, &rec.LastError)
	if err != nil {
		return Record{}, err
	}
	rec.Status = Status(status)
	return rec, nil
}

func (r *Repository) MarkSucceeded(ctx context.Context, id uuid.UUID) error {
	if r == nil || r.pool == nil {
		return errors.New(errRepoNotConfigured)
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE notification_outbox SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, string(StatusSucceeded))
	return err
}

// MarkFailed bumps the attempt counter and either re-arms the record as
// pending with exponential backoff or parks it as failed.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, cause string) error {
	if r == nil || r.pool == nil {
		return errors.New(errRepoNotConfigured)
	}

	var attempts int
	err := r.pool.QueryRow(ctx,
		`UPDATE notification_outbox
		 SET attempts = attempts + 1, last_error = $2, updated_at = NOW()
		 WHERE id = $1
		 RETURNING attempts`,
		id, cause).Scan(&attempts)
	if err != nil {
		return err
	}

	if attempts >= maxAttempts {
		_, err = r.pool.Exec(ctx,
			`UPDATE notification_outbox SET status = $2 WHERE id = $1`,
			id, string(StatusFailed))
		return err
	}

	backoff := time.Duration(attempts*attempts) * time.Minute
	_, err = r.pool.Exec(ctx,
		`UPDATE notification_outbox SET status = $2, run_at = NOW() + $3::interval WHERE id = $1`,
		id, string(StatusPending), backoff.String())
	return err
}

// MarkPending returns a claimed record to the queue without counting an
// attempt, for when the worker could not even try the send.
func (r *Repository) MarkPending(ctx context.Context, id uuid.UUID, cause *string) error {
	if r == nil || r.pool == nil {
		return errors.New(errRepoNotConfigured)
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE notification_outbox SET status = $2, last_error = $3, updated_at = NOW() WHERE id = $1`,
		id, string(StatusPending), cause)
	return err
}
