package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"careops_backend/internal/ledger/domain"
	"careops_backend/platform/apperr"
)

type EditRequest struct {
	ID            uuid.UUID
	EntryID       uuid.UUID
	Amount        decimal.Decimal
	Description   *string
	PaymentModeID *uuid.UUID
	FromModeID    *uuid.UUID
	ToModeID      *uuid.UUID
	Status        string
	RequestedByID uuid.UUID
	DecidedByID   *uuid.UUID
	DecidedAt     *time.Time
	CreatedAt     time.Time
}

type EditRequestParams struct {
	Amount        decimal.Decimal
	Description   *string
	PaymentModeID *uuid.UUID
	FromModeID    *uuid.UUID
	ToModeID      *uuid.UUID
	RequestedByID uuid.UUID
}

const editColumns = `id, entry_id, amount::text, description, payment_mode_id,
		from_mode_id, to_mode_id, status, requested_by, decided_by, decided_at, created_at`

func scanEdit(row pgx.Row) (EditRequest, error) {
	var e EditRequest
	var amount string
	err := row.Scan(&e.ID, &e.EntryID, &amount, &e.Description, &e.PaymentModeID,
		&e.FromModeID, &e.ToModeID, &e.Status, &e.RequestedByID, &e.DecidedByID,
		&e.DecidedAt, &e.CreatedAt)
	if err != nil {
		return EditRequest{}, err
	}
	e.Amount, err = decimal.NewFromString(amount)
	return e, err
}

// movementOver returns the balance-affecting shape the entry takes once
// this edit is applied: the edit's values where set, the entry's otherwise.
// The transaction type never changes on edit.
func (e EditRequest) movementOver(entry Entry) domain.Movement {
	m := entry.Movement()
	m.Amount = e.Amount
	if e.PaymentModeID != nil {
		m.ModeID = e.PaymentModeID
	}
	if e.FromModeID != nil {
		m.FromModeID = e.FromModeID
	}
	if e.ToModeID != nil {
		m.ToModeID = e.ToModeID
	}
	return m
}

// RequestEdit files a proposed correction against an entry. An entry can
// carry at most one pending edit at a time.
func (r *Repository) RequestEdit(ctx context.Context, entryID uuid.UUID, p EditRequestParams) (EditRequest, error) {
	const op = "ledger.repository.request_edit"

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return EditRequest{}, apperr.Wrap(err, apperr.KindInternal, "failed to begin transaction").WithOp(op)
	}
	defer tx.Rollback(ctx)

	entry, err := lockEntry(ctx, tx, entryID, op)
	if err != nil {
		return EditRequest{}, err
	}
	if entry.Deleted {
		return EditRequest{}, apperr.Conflict("ledger entry has been deleted").WithOp(op)
	}
	if entry.Status == domain.StatusRejected {
		return EditRequest{}, apperr.Conflict("rejected ledger entry cannot be edited").WithOp(op)
	}

	var pending int
	if err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM ledger_edit_requests WHERE entry_id = $1 AND status = $2`,
		entryID, domain.EditPending).Scan(&pending); err != nil {
		return EditRequest{}, apperr.Wrap(err, apperr.KindInternal, "failed to check pending edits").WithOp(op)
	}
	if pending > 0 {
		return EditRequest{}, apperr.Conflict("ledger entry already has a pending edit").WithOp(op)
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO ledger_edit_requests (entry_id, amount, description, payment_mode_id,
			from_mode_id, to_mode_id, status, requested_by)
		VALUES ($1, $2::numeric, $3, $4, $5, $6, $7, $8)
		RETURNING `+editColumns,
		entryID, p.Amount.String(), p.Description, p.PaymentModeID,
		p.FromModeID, p.ToModeID, domain.EditPending, p.RequestedByID)
	edit, err := scanEdit(row)
	if err != nil {
		return EditRequest{}, apperr.Wrap(err, apperr.KindInternal, "failed to create edit request").WithOp(op)
	}

	if err := insertAudit(ctx, tx, entryID, domain.ActionEditRequested, p.RequestedByID, map[string]any{
		"currentAmount":   entry.Amount.String(),
		"requestedAmount": edit.Amount.String(),
	}); err != nil {
		return EditRequest{}, apperr.Wrap(err, apperr.KindInternal, "failed to record audit log").WithOp(op)
	}

	if err := tx.Commit(ctx); err != nil {
		return EditRequest{}, apperr.Wrap(err, apperr.KindInternal, "failed to commit transaction").WithOp(op)
	}
	return edit, nil
}

func (r *Repository) GetEditRequest(ctx context.Context, id uuid.UUID) (EditRequest, error) {
	const op = "ledger.repository.get_edit_request"

	row := r.pool.QueryRow(ctx, `SELECT `+editColumns+` FROM ledger_edit_requests WHERE id = $1`, id)
	edit, err := scanEdit(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return EditRequest{}, apperr.NotFound("edit request not found").WithOp(op)
		}
		return EditRequest{}, apperr.Wrap(err, apperr.KindInternal, "failed to get edit request").WithOp(op)
	}
	return edit, nil
}

// ApproveEditRequest applies the proposed values to the entry. If the
// entry's movement had already hit balances, the old movement is reversed
// and the new one applied in the same transaction.
func (r *Repository) ApproveEditRequest(ctx context.Context, editID, actorID uuid.UUID) (EditRequest, Entry, error) {
	const op = "ledger.repository.approve_edit_request"

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return EditRequest{}, Entry{}, apperr.Wrap(err, apperr.KindInternal, "failed to begin transaction").WithOp(op)
	}
	defer tx.Rollback(ctx)

	edit, err := lockEdit(ctx, tx, editID, op)
	if err != nil {
		return EditRequest{}, Entry{}, err
	}
	if edit.Status != domain.EditPending {
		return EditRequest{}, Entry{}, apperr.Conflict("no pending edit for this request").WithOp(op)
	}

	entry, err := lockEntry(ctx, tx, edit.EntryID, op)
	if err != nil {
		return EditRequest{}, Entry{}, err
	}
	if entry.Deleted {
		return EditRequest{}, Entry{}, apperr.Conflict("ledger entry has been deleted").WithOp(op)
	}
	if !edit.movementOver(entry).Valid() {
		return EditRequest{}, Entry{}, apperr.Validation("edit would leave the entry with an invalid movement").WithOp(op)
	}

	amountBefore := entry.Amount.String()
	if entry.Status == domain.StatusApproved {
		if err := applyDeltas(ctx, tx, entry.Movement().ReverseDeltas(), op); err != nil {
			return EditRequest{}, Entry{}, err
		}
		if err := applyDeltas(ctx, tx, edit.movementOver(entry).Deltas(), op); err != nil {
			return EditRequest{}, Entry{}, err
		}
	}

	row := tx.QueryRow(ctx, `
		UPDATE ledger_entries
		SET amount = $2::numeric,
			description = COALESCE($3, description),
			payment_mode_id = COALESCE($4, payment_mode_id),
			from_mode_id = COALESCE($5, from_mode_id),
			to_mode_id = COALESCE($6, to_mode_id),
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+entryColumns,
		entry.ID, edit.Amount.String(), edit.Description, edit.PaymentModeID,
		edit.FromModeID, edit.ToModeID)
	entry, err = scanEntry(row)
	if err != nil {
		return EditRequest{}, Entry{}, apperr.Wrap(err, apperr.KindInternal, "failed to apply edit").WithOp(op)
	}

	row = tx.QueryRow(ctx, `
		UPDATE ledger_edit_requests
		SET status = $2, decided_by = $3, decided_at = NOW()
		WHERE id = $1
		RETURNING `+editColumns, editID, domain.EditApproved, actorID)
	edit, err = scanEdit(row)
	if err != nil {
		return EditRequest{}, Entry{}, apperr.Wrap(err, apperr.KindInternal, "failed to finalize edit request").WithOp(op)
	}

	if err := insertAudit(ctx, tx, entry.ID, domain.ActionEditApproved, actorID, map[string]any{
		"amountBefore": amountBefore,
		"amountAfter":  entry.Amount.String(),
	}); err != nil {
		return EditRequest{}, Entry{}, apperr.Wrap(err, apperr.KindInternal, "failed to record audit log").WithOp(op)
	}

	if err := tx.Commit(ctx); err != nil {
		return EditRequest{}, Entry{}, apperr.Wrap(err, apperr.KindInternal, "failed to commit transaction").WithOp(op)
	}
	return edit, entry, nil
}

// RejectEditRequest declines a pending edit; the entry is untouched.
func (r *Repository) RejectEditRequest(ctx context.Context, editID, actorID uuid.UUID) (EditRequest, error) {
	const op = "ledger.repository.reject_edit_request"

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return EditRequest{}, apperr.Wrap(err, apperr.KindInternal, "failed to begin transaction").WithOp(op)
	}
	defer tx.Rollback(ctx)

	edit, err := lockEdit(ctx, tx, editID, op)
	if err != nil {
		return EditRequest{}, err
	}
	entry, err := lockEntry(ctx, tx, edit.EntryID, op)
	if err != nil {
		return EditRequest{}, err
	}
	if entry.Deleted {
		return EditRequest{}, apperr.Conflict("ledger entry has been deleted").WithOp(op)
	}
	if edit.Status != domain.EditPending {
		return EditRequest{}, apperr.Conflict("no pending edit for this request").WithOp(op)
	}

	row := tx.QueryRow(ctx, `
		UPDATE ledger_edit_requests
		SET status = $2, decided_by = $3, decided_at = NOW()
		WHERE id = $1
		RETURNING `+editColumns, editID, domain.EditRejected, actorID)
	edit, err = scanEdit(row)
	if err != nil {
		return EditRequest{}, apperr.Wrap(err, apperr.KindInternal, "failed to reject edit request").WithOp(op)
	}

	if err := insertAudit(ctx, tx, edit.EntryID, domain.ActionEditRejected, actorID, map[string]any{
		"editRequestId":   edit.ID.String(),
		"requestedAmount": edit.Amount.String(),
	}); err != nil {
		return EditRequest{}, apperr.Wrap(err, apperr.KindInternal, "failed to record audit log").WithOp(op)
	}

	if err := tx.Commit(ctx); err != nil {
		return EditRequest{}, apperr.Wrap(err, apperr.KindInternal, "failed to commit transaction").WithOp(op)
	}
	return edit, nil
}

func lockEdit(ctx context.Context, tx pgx.Tx, editID uuid.UUID, op string) (EditRequest, error) {
	row := tx.QueryRow(ctx, `SELECT `+editColumns+` FROM ledger_edit_requests WHERE id = $1 FOR UPDATE`, editID)
	edit, err := scanEdit(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return EditRequest{}, apperr.NotFound("edit request not found").WithOp(op)
		}
		return EditRequest{}, apperr.Wrap(err, apperr.KindInternal, "failed to lock edit request").WithOp(op)
	}
	return edit, nil
}
