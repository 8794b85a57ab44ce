// Package repository persists payment modes, ledger entries, edit requests
// and the append-only audit log. Balance moves happen inside the same
// transaction as the entry state change, with payment mode rows updated in
// sorted id order so concurrent approvals cannot deadlock.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"careops_backend/internal/ledger/domain"
	"careops_backend/platform/apperr"
)

type PaymentMode struct {
	ID             uuid.UUID
	Name           string
	OpeningBalance decimal.Decimal // set at creation, never mutated
	Balance        decimal.Decimal
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Entry struct {
	ID              uuid.UUID
	SerialNumber    string
	TransactionType string
	Amount          decimal.Decimal
	PaymentModeID   *uuid.UUID
	FromModeID      *uuid.UUID
	ToModeID        *uuid.UUID
	Description     *string
	Status          string
	Deleted         bool
	DeletedReason   *string
	DeletedAt       *time.Time
	CreatedByID     uuid.UUID
	ApprovedByID    *uuid.UUID
	ApprovedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type AuditLog struct {
	ID        uuid.UUID
	EntryID   uuid.UUID
	Action    string
	ActorID   uuid.UUID
	Detail    *string
	CreatedAt time.Time
}

type CreateEntryParams struct {
	TransactionType string
	Amount          decimal.Decimal
	PaymentModeID   *uuid.UUID
	FromModeID      *uuid.UUID
	ToModeID        *uuid.UUID
	Description     *string
	CreatedByID     uuid.UUID
}

type EntryFilter struct {
	Status         *string
	PaymentModeID  *uuid.UUID
	IncludeDeleted bool
	Limit          int
	Offset         int
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const modeColumns = `id, name, opening_balance::text, balance::text, is_active, created_at, updated_at`

const entryColumns = `id, serial_number, transaction_type, amount::text, payment_mode_id,
		from_mode_id, to_mode_id, description, status, deleted, deleted_reason, deleted_at,
		created_by, approved_by, approved_at, created_at, updated_at`

func scanMode(row pgx.Row) (PaymentMode, error) {
	var m PaymentMode
	var opening, balance string
	if err := row.Scan(&m.ID, &m.Name, &opening, &balance, &m.IsActive, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return PaymentMode{}, err
	}
	var err error
	if m.OpeningBalance, err = decimal.NewFromString(opening); err != nil {
		return PaymentMode{}, err
	}
	if m.Balance, err = decimal.NewFromString(balance); err != nil {
		return PaymentMode{}, err
	}
	return m, nil
}

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	var amount string
	err := row.Scan(&e.ID, &e.SerialNumber, &e.TransactionType, &amount, &e.PaymentModeID,
		&e.FromModeID, &e.ToModeID, &e.Description, &e.Status, &e.Deleted, &e.DeletedReason,
		&e.DeletedAt, &e.CreatedByID, &e.ApprovedByID, &e.ApprovedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return Entry{}, err
	}
	e.Amount, err = decimal.NewFromString(amount)
	return e, err
}

// Movement returns the balance-affecting shape of the entry.
func (e Entry) Movement() domain.Movement {
	return domain.Movement{
		Type:       e.TransactionType,
		Amount:     e.Amount,
		ModeID:     e.PaymentModeID,
		FromModeID: e.FromModeID,
		ToModeID:   e.ToModeID,
	}
}

func (r *Repository) CreatePaymentMode(ctx context.Context, name string, openingBalance decimal.Decimal) (PaymentMode, error) {
	const op = "ledger.repository.create_payment_mode"

	row := r.pool.QueryRow(ctx, `
		INSERT INTO payment_modes (name, opening_balance, balance)
		VALUES ($1, $2::numeric, $2::numeric)
		RETURNING `+modeColumns, name, openingBalance.String())
	mode, err := scanMode(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return PaymentMode{}, apperr.Conflict("payment mode with this name already exists").WithOp(op)
		}
		return PaymentMode{}, apperr.Wrap(err, apperr.KindInternal, "failed to create payment mode").WithOp(op)
	}
	return mode, nil
}

func (r *Repository) GetPaymentMode(ctx context.Context, id uuid.UUID) (PaymentMode, error) {
	const op = "ledger.repository.get_payment_mode"

	row := r.pool.QueryRow(ctx, `SELECT `+modeColumns+` FROM payment_modes WHERE id = $1`, id)
	mode, err := scanMode(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PaymentMode{}, apperr.NotFound("payment mode not found").WithOp(op)
		}
		return PaymentMode{}, apperr.Wrap(err, apperr.KindInternal, "failed to get payment mode").WithOp(op)
	}
	return mode, nil
}

func (r *Repository) ListPaymentModes(ctx context.Context) ([]PaymentMode, error) {
	const op = "ledger.repository.list_payment_modes"

	rows, err := r.pool.Query(ctx, `SELECT `+modeColumns+` FROM payment_modes ORDER BY name ASC`)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "failed to list payment modes").WithOp(op)
	}
	defer rows.Close()

	var modes []PaymentMode
	for rows.Next() {
		mode, err := scanMode(rows)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.KindInternal, "failed to scan payment mode").WithOp(op)
		}
		modes = append(modes, mode)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "failed to iterate payment modes").WithOp(op)
	}
	return modes, nil
}

// CreateEntry records a pending entry and its CREATED audit row. Balances
// are untouched until approval.
func (r *Repository) CreateEntry(ctx context.Context, p CreateEntryParams) (Entry, error) {
	const op = "ledger.repository.create_entry"

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Entry{}, apperr.Wrap(err, apperr.KindInternal, "failed to begin transaction").WithOp(op)
	}
	defer tx.Rollback(ctx)

	var seq int64
	if err := tx.QueryRow(ctx, `SELECT nextval('ledger_serial_seq')`).Scan(&seq); err != nil {
		return Entry{}, apperr.Wrap(err, apperr.KindInternal, "failed to allocate serial number").WithOp(op)
	}
	serial := fmt.Sprintf("LED-%d-%04d", time.Now().UTC().Year(), seq)

	row := tx.QueryRow(ctx, `
		INSERT INTO ledger_entries (serial_number, transaction_type, amount, payment_mode_id,
			from_mode_id, to_mode_id, description, status, created_by)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, $9)
		RETURNING `+entryColumns,
		serial, p.TransactionType, p.Amount.String(), p.PaymentModeID,
		p.FromModeID, p.ToModeID, p.Description, domain.StatusPending, p.CreatedByID)
	entry, err := scanEntry(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return Entry{}, apperr.Validation("referenced payment mode does not exist").WithOp(op)
		}
		return Entry{}, apperr.Wrap(err, apperr.KindInternal, "failed to create ledger entry").WithOp(op)
	}

	if err := insertAudit(ctx, tx, entry.ID, domain.ActionCreated, p.CreatedByID, map[string]any{
		"status":          entry.Status,
		"serialNumber":    entry.SerialNumber,
		"transactionType": entry.TransactionType,
		"amount":          entry.Amount.String(),
	}); err != nil {
		return Entry{}, apperr.Wrap(err, apperr.KindInternal, "failed to record audit log").WithOp(op)
	}

	if err := tx.Commit(ctx); err != nil {
		return Entry{}, apperr.Wrap(err, apperr.KindInternal, "failed to commit transaction").WithOp(op)
	}
	return entry, nil
}

func (r *Repository) GetEntry(ctx context.Context, id uuid.UUID) (Entry, error) {
	const op = "ledger.repository.get_entry"

	row := r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE id = $1`, id)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, apperr.NotFound("ledger entry not found").WithOp(op)
		}
		return Entry{}, apperr.Wrap(err, apperr.KindInternal, "failed to get ledger entry").WithOp(op)
	}
	return entry, nil
}

func (r *Repository) ListEntries(ctx context.Context, f EntryFilter) ([]Entry, error) {
	const op = "ledger.repository.list_entries"

	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE 1=1`
	args := []any{}
	idx := 1
	if !f.IncludeDeleted {
		query += " AND deleted = FALSE"
	}
	if f.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, *f.Status)
		idx++
	}
	if f.PaymentModeID != nil {
		query += fmt.Sprintf(" AND (payment_mode_id = $%d OR from_mode_id = $%d OR to_mode_id = $%d)", idx, idx, idx)
		args = append(args, *f.PaymentModeID)
		idx++
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", idx, idx+1)
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "failed to list ledger entries").WithOp(op)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.KindInternal, "failed to scan ledger entry").WithOp(op)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "failed to iterate ledger entries").WithOp(op)
	}
	return entries, nil
}

// ApproveEntry finalizes a pending entry and applies its balance movement
// in the same transaction.
func (r *Repository) ApproveEntry(ctx context.Context, entryID, actorID uuid.UUID) (Entry, error) {
	const op = "ledger.repository.approve_entry"

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Entry{}, apperr.Wrap(err, apperr.KindInternal, "failed to begin transaction").WithOp(op)
	}
	defer tx.Rollback(ctx)

	entry, err := lockEntry(ctx, tx, entryID, op)
	if err != nil {
		return Entry{}, err
	}
	if entry.Deleted {
		return Entry{}, apperr.Conflict("ledger entry has been deleted").WithOp(op)
	}
	if entry.Status != domain.StatusPending {
		return Entry{}, apperr.Conflict("ledger entry is already finalized").WithOp(op)
	}

	if err := applyDeltas(ctx, tx, entry.Movement().Deltas(), op); err != nil {
		return Entry{}, err
	}

	row := tx.QueryRow(ctx, `
		UPDATE ledger_entries
		SET status = $2, approved_by = $3, approved_at = NOW(), updated_at = NOW()
		WHERE id = $1
		RETURNING `+entryColumns, entryID, domain.StatusApproved, actorID)
	entry, err = scanEntry(row)
	if err != nil {
		return Entry{}, apperr.Wrap(err, apperr.KindInternal, "failed to approve ledger entry").WithOp(op)
	}
	if err := insertAudit(ctx, tx, entryID, domain.ActionApproved, actorID, map[string]any{
		"statusBefore": domain.StatusPending,
		"statusAfter":  domain.StatusApproved,
		"amount":       entry.Amount.String(),
	}); err != nil {
		return Entry{}, apperr.Wrap(err, apperr.KindInternal, "failed to record audit log").WithOp(op)
	}

	if err := tx.Commit(ctx); err != nil {
		return Entry{}, apperr.Wrap(err, apperr.KindInternal, "failed to commit transaction").WithOp(op)
	}
	return entry, nil
}

// RejectEntry finalizes a pending entry without touching balances.
func (r *Repository) RejectEntry(ctx context.Context, entryID, actorID uuid.UUID, note *string) (Entry, error) {
	const op = "ledger.repository.reject_entry"

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Entry{}, apperr.Wrap(err, apperr.KindInternal, "failed to begin transaction").WithOp(op)
	}
	defer tx.Rollback(ctx)

	entry, err := lockEntry(ctx, tx, entryID, op)
	if err != nil {
		return Entry{}, err
	}
	if entry.Deleted {
		return Entry{}, apperr.Conflict("ledger entry has been deleted").WithOp(op)
	}
	if entry.Status != domain.StatusPending {
		return Entry{}, apperr.Conflict("ledger entry is already finalized").WithOp(op)
	}

	row := tx.QueryRow(ctx, `
		UPDATE ledger_entries
		SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+entryColumns, entryID, domain.StatusRejected)
	entry, err = scanEntry(row)
	if err != nil {
		return Entry{}, apperr.Wrap(err, apperr.KindInternal, "failed to reject ledger entry").WithOp(op)
	}
	detail := map[string]any{
		"statusBefore": domain.StatusPending,
		"statusAfter":  domain.StatusRejected,
	}
	if note != nil {
		detail["note"] = *note
	}
	if err := insertAudit(ctx, tx, entryID, domain.ActionRejected, actorID, detail); err != nil {
		return Entry{}, apperr.Wrap(err, apperr.KindInternal, "failed to record audit log").WithOp(op)
	}

	if err := tx.Commit(ctx); err != nil {
		return Entry{}, apperr.Wrap(err, apperr.KindInternal, "failed to commit transaction").WithOp(op)
	}
	return entry, nil
}

// SoftDeleteEntry hides an entry and, if its movement had been applied,
// reverses it. The row itself is never removed; the audit log gets exactly
// one DELETED row.
func (r *Repository) SoftDeleteEntry(ctx context.Context, entryID, actorID uuid.UUID, reason string) (Entry, error) {
	const op = "ledger.repository.soft_delete_entry"

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Entry{}, apperr.Wrap(err, apperr.KindInternal, "failed to begin transaction").WithOp(op)
	}
	defer tx.Rollback(ctx)

	entry, err := lockEntry(ctx, tx, entryID, op)
	if err != nil {
		return Entry{}, err
	}
	if entry.Deleted {
		return Entry{}, apperr.Conflict("ledger entry is already deleted").WithOp(op)
	}

	priorStatus := entry.Status
	if entry.Status == domain.StatusApproved {
		if err := applyDeltas(ctx, tx, entry.Movement().ReverseDeltas(), op); err != nil {
			return Entry{}, err
		}
	}

	row := tx.QueryRow(ctx, `
		UPDATE ledger_entries
		SET deleted = TRUE, deleted_reason = $2, deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1
		RETURNING `+entryColumns, entryID, reason)
	entry, err = scanEntry(row)
	if err != nil {
		return Entry{}, apperr.Wrap(err, apperr.KindInternal, "failed to delete ledger entry").WithOp(op)
	}
	if err := insertAudit(ctx, tx, entryID, domain.ActionDeleted, actorID, map[string]any{
		"priorStatus":  priorStatus,
		"serialNumber": entry.SerialNumber,
		"reason":       reason,
	}); err != nil {
		return Entry{}, apperr.Wrap(err, apperr.KindInternal, "failed to record audit log").WithOp(op)
	}

	if err := tx.Commit(ctx); err != nil {
		return Entry{}, apperr.Wrap(err, apperr.KindInternal, "failed to commit transaction").WithOp(op)
	}
	return entry, nil
}

func (r *Repository) ListAuditLog(ctx context.Context, entryID uuid.UUID) ([]AuditLog, error) {
	const op = "ledger.repository.list_audit_log"

	rows, err := r.pool.Query(ctx, `
		SELECT id, entry_id, action, actor_id, detail, created_at
		FROM ledger_audit_logs
		WHERE entry_id = $1
		ORDER BY created_at ASC, id ASC`, entryID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "failed to list audit log").WithOp(op)
	}
	defer rows.Close()

	var logs []AuditLog
	for rows.Next() {
		var l AuditLog
		if err := rows.Scan(&l.ID, &l.EntryID, &l.Action, &l.ActorID, &l.Detail, &l.CreatedAt); err != nil {
			return nil, apperr.Wrap(err, apperr.KindInternal, "failed to scan audit log").WithOp(op)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "failed to iterate audit log").WithOp(op)
	}
	return logs, nil
}

func lockEntry(ctx context.Context, tx pgx.Tx, entryID uuid.UUID, op string) (Entry, error) {
	row := tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE id = $1 FOR UPDATE`, entryID)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, apperr.NotFound("ledger entry not found").WithOp(op)
		}
		return Entry{}, apperr.Wrap(err, apperr.KindInternal, "failed to lock ledger entry").WithOp(op)
	}
	return entry, nil
}

// applyDeltas shifts payment mode balances. Modes are updated in sorted id
// order so two concurrent transactions touching the same pair of modes
// always lock them in the same order.
func applyDeltas(ctx context.Context, tx pgx.Tx, deltas map[uuid.UUID]decimal.Decimal, op string) error {
	ids := make([]uuid.UUID, 0, len(deltas))
	for id := range deltas {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	for _, id := range ids {
		tag, err := tx.Exec(ctx, `
			UPDATE payment_modes SET balance = balance + $2::numeric, updated_at = NOW()
			WHERE id = $1`, id, deltas[id].String())
		if err != nil {
			return apperr.Wrap(err, apperr.KindInternal, "failed to update payment mode balance").WithOp(op)
		}
		if tag.RowsAffected() == 0 {
			return apperr.NotFound("payment mode not found").WithOp(op)
		}
	}
	return nil
}

// insertAudit appends one audit row. The detail map is stored as a JSONB
// snapshot of whatever the caller considers the before/after state.
func insertAudit(ctx context.Context, tx pgx.Tx, entryID uuid.UUID, action string, actorID uuid.UUID, detail map[string]any) error {
	var snapshot *string
	if detail != nil {
		data, err := json.Marshal(detail)
		if err != nil {
			return err
		}
		s := string(data)
		snapshot = &s
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO ledger_audit_logs (entry_id, action, actor_id, detail)
		VALUES ($1, $2, $3, $4::jsonb)`, entryID, action, actorID, snapshot)
	return err
}
