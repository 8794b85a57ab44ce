// Package repository persists leads, stage history, KYP submissions,
// pre-authorizations and insurance cases. Every state transition runs in
// its own transaction and re-reads the row under a FOR UPDATE lock before
// mutating, so concurrent writers serialize instead of clobbering each
// other.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"careops_backend/internal/cases/domain"
	"careops_backend/platform/apperr"
)

type Lead struct {
	ID            uuid.UUID
	Reference     string
	PatientName   string
	PatientPhone  string
	PatientEmail  *string
	Disease       *string
	PipelineStage string
	CaseStage     string
	AssignedBDID  *uuid.UUID
	LostReason    *string
	LostAt        *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type StageHistory struct {
	ID        uuid.UUID
	LeadID    uuid.UUID
	FromStage string
	ToStage   string
	ChangedBy uuid.UUID
	Note      *string
	ChangedAt time.Time
}

type CreateLeadParams struct {
	PatientName  string
	PatientPhone string
	PatientEmail *string
	Disease      *string
	AssignedBDID *uuid.UUID
	CreatedBy    uuid.UUID
}

type LeadFilter struct {
	AssignedBDID  *uuid.UUID
	PipelineStage *string
	CaseStage     *string
	Limit         int
	Offset        int
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const leadColumns = `id, reference, patient_name, patient_phone, patient_email, disease,
		pipeline_stage, case_stage, assigned_bd_id, lost_reason, lost_at, created_at, updated_at`

func scanLead(row pgx.Row) (Lead, error) {
	var l Lead
	err := row.Scan(&l.ID, &l.Reference, &l.PatientName, &l.PatientPhone, &l.PatientEmail,
		&l.Disease, &l.PipelineStage, &l.CaseStage, &l.AssignedBDID, &l.LostReason, &l.LostAt,
		&l.CreatedAt, &l.UpdatedAt)
	return l, err
}

// CreateLead inserts a lead at the start of both funnels and records the
// initial stage history row in the same transaction.
func (r *Repository) CreateLead(ctx context.Context, p CreateLeadParams) (Lead, error) {
	const op = "cases.repository.create_lead"

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Lead{}, apperr.Wrap(err, apperr.KindInternal, "failed to begin transaction").WithOp(op)
	}
	defer tx.Rollback(ctx)

	var seq int64
	if err := tx.QueryRow(ctx, `SELECT nextval('lead_reference_seq')`).Scan(&seq); err != nil {
		return Lead{}, apperr.Wrap(err, apperr.KindInternal, "failed to allocate lead reference").WithOp(op)
	}
	reference := fmt.Sprintf("CO-%d-%04d", time.Now().UTC().Year(), seq)

	row := tx.QueryRow(ctx, `
		INSERT INTO leads (patient_name, patient_phone, patient_email, disease,
			pipeline_stage, case_stage, assigned_bd_id, reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+leadColumns,
		p.PatientName, p.PatientPhone, p.PatientEmail, p.Disease,
		domain.PipelineStageSales, domain.CaseStageNewLead, p.AssignedBDID, reference)
	lead, err := scanLead(row)
	if err != nil {
		return Lead{}, apperr.Wrap(err, apperr.KindInternal, "failed to create lead").WithOp(op)
	}

	note := "Lead created"
	if err := insertStageHistory(ctx, tx, lead.ID, domain.CaseStageNewLead, domain.CaseStageNewLead, p.CreatedBy, &note); err != nil {
		return Lead{}, apperr.Wrap(err, apperr.KindInternal, "failed to record stage history").WithOp(op)
	}

	if err := tx.Commit(ctx); err != nil {
		return Lead{}, apperr.Wrap(err, apperr.KindInternal, "failed to commit transaction").WithOp(op)
	}
	return lead, nil
}

func (r *Repository) GetLead(ctx context.Context, id uuid.UUID) (Lead, error) {
	const op = "cases.repository.get_lead"

	row := r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id)
	lead, err := scanLead(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lead{}, apperr.NotFound("lead not found").WithOp(op)
		}
		return Lead{}, apperr.Wrap(err, apperr.KindInternal, "failed to get lead").WithOp(op)
	}
	return lead, nil
}

func (r *Repository) ListLeads(ctx context.Context, f LeadFilter) ([]Lead, error) {
	const op = "cases.repository.list_leads"

	query := `SELECT ` + leadColumns + ` FROM leads WHERE 1=1`
	args := []any{}
	idx := 1
	if f.AssignedBDID != nil {
		query += fmt.Sprintf(" AND assigned_bd_id = $%d", idx)
		args = append(args, *f.AssignedBDID)
		idx++
	}
	if f.PipelineStage != nil {
		query += fmt.Sprintf(" AND pipeline_stage = $%d", idx)
		args = append(args, *f.PipelineStage)
		idx++
	}
	if f.CaseStage != nil {
		query += fmt.Sprintf(" AND case_stage = $%d", idx)
		args = append(args, *f.CaseStage)
		idx++
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", idx, idx+1)
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "failed to list leads").WithOp(op)
	}
	defer rows.Close()

	var leads []Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.KindInternal, "failed to scan lead").WithOp(op)
		}
		leads = append(leads, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "failed to iterate leads").WithOp(op)
	}
	return leads, nil
}

func (r *Repository) ListStageHistory(ctx context.Context, leadID uuid.UUID) ([]StageHistory, error) {
	const op = "cases.repository.list_stage_history"

	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, from_stage, to_stage, changed_by, note, changed_at
		FROM case_stage_history
		WHERE lead_id = $1
		ORDER BY changed_at ASC, id ASC`, leadID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "failed to list stage history").WithOp(op)
	}
	defer rows.Close()

	var history []StageHistory
	for rows.Next() {
		var h StageHistory
		if err := rows.Scan(&h.ID, &h.LeadID, &h.FromStage, &h.ToStage, &h.ChangedBy, &h.Note, &h.ChangedAt); err != nil {
			return nil, apperr.Wrap(err, apperr.KindInternal, "failed to scan stage history").WithOp(op)
		}
		history = append(history, h)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "failed to iterate stage history").WithOp(op)
	}
	return history, nil
}

// AdvanceCaseStage moves a lead forward one step in the case funnel. The
// row is locked and re-validated before the update so a stale caller gets
// a conflict instead of silently overwriting a newer state.
func (r *Repository) AdvanceCaseStage(ctx context.Context, leadID uuid.UUID, toStage string, changedBy uuid.UUID, note *string) (Lead, error) {
	const op = "cases.repository.advance_case_stage"

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Lead{}, apperr.Wrap(err, apperr.KindInternal, "failed to begin transaction").WithOp(op)
	}
	defer tx.Rollback(ctx)

	lead, err := lockLead(ctx, tx, leadID, op)
	if err != nil {
		return Lead{}, err
	}
	lead, err = advanceCaseStageTx(ctx, tx, lead, toStage, changedBy, note, op)
	if err != nil {
		return Lead{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Lead{}, apperr.Wrap(err, apperr.KindInternal, "failed to commit transaction").WithOp(op)
	}
	return lead, nil
}

// MarkDischarged closes out a case. Discharge is only legal from INITIATED
// or ADMITTED; it also completes the pipeline.
func (r *Repository) MarkDischarged(ctx context.Context, leadID, changedBy uuid.UUID) (Lead, error) {
	const op = "cases.repository.mark_discharged"

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Lead{}, apperr.Wrap(err, apperr.KindInternal, "failed to begin transaction").WithOp(op)
	}
	defer tx.Rollback(ctx)

	lead, err := lockLead(ctx, tx, leadID, op)
	if err != nil {
		return Lead{}, err
	}
	if lead.PipelineStage == domain.PipelineStageLost {
		return Lead{}, apperr.Conflict("lead is marked lost").WithOp(op)
	}
	if !domain.CanDischargeFrom(lead.CaseStage) {
		return Lead{}, apperr.Conflict(fmt.Sprintf("cannot discharge case in stage %s", lead.CaseStage)).WithOp(op)
	}

	fromStage := lead.CaseStage
	row := tx.QueryRow(ctx, `
		UPDATE leads SET case_stage = $2, pipeline_stage = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING `+leadColumns,
		leadID, domain.CaseStageDischarged, domain.PipelineStageCompleted)
	lead, err = scanLead(row)
	if err != nil {
		return Lead{}, apperr.Wrap(err, apperr.KindInternal, "failed to discharge lead").WithOp(op)
	}
	if err := insertStageHistory(ctx, tx, leadID, fromStage, domain.CaseStageDischarged, changedBy, nil); err != nil {
		return Lead{}, apperr.Wrap(err, apperr.KindInternal, "failed to record stage history").WithOp(op)
	}

	if err := tx.Commit(ctx); err != nil {
		return Lead{}, apperr.Wrap(err, apperr.KindInternal, "failed to commit transaction").WithOp(op)
	}
	return lead, nil
}

// MarkLost moves the pipeline to its terminal LOST stage. The case stage is
// left untouched; a lateral history row records the event for the audit
// trail. Re-marking a lost or discharged lead is a conflict.
func (r *Repository) MarkLost(ctx context.Context, leadID, changedBy uuid.UUID, reason string) (Lead, error) {
	const op = "cases.repository.mark_lost"

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Lead{}, apperr.Wrap(err, apperr.KindInternal, "failed to begin transaction").WithOp(op)
	}
	defer tx.Rollback(ctx)

	lead, err := lockLead(ctx, tx, leadID, op)
	if err != nil {
		return Lead{}, err
	}
	if lead.PipelineStage == domain.PipelineStageLost {
		return Lead{}, apperr.Conflict("lead is already marked lost").WithOp(op)
	}
	if domain.IsTerminalCaseStage(lead.CaseStage) {
		return Lead{}, apperr.Conflict("discharged case cannot be marked lost").WithOp(op)
	}

	row := tx.QueryRow(ctx, `
		UPDATE leads SET pipeline_stage = $2, lost_reason = $3, lost_at = NOW(), updated_at = NOW()
		WHERE id = $1
		RETURNING `+leadColumns,
		leadID, domain.PipelineStageLost, reason)
	lead, err = scanLead(row)
	if err != nil {
		return Lead{}, apperr.Wrap(err, apperr.KindInternal, "failed to mark lead lost").WithOp(op)
	}
	note := "Marked lost: " + reason
	if err := insertStageHistory(ctx, tx, leadID, lead.CaseStage, lead.CaseStage, changedBy, &note); err != nil {
		return Lead{}, apperr.Wrap(err, apperr.KindInternal, "failed to record stage history").WithOp(op)
	}

	if err := tx.Commit(ctx); err != nil {
		return Lead{}, apperr.Wrap(err, apperr.KindInternal, "failed to commit transaction").WithOp(op)
	}
	return lead, nil
}

func lockLead(ctx context.Context, tx pgx.Tx, leadID uuid.UUID, op string) (Lead, error) {
	row := tx.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1 FOR UPDATE`, leadID)
	lead, err := scanLead(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lead{}, apperr.NotFound("lead not found").WithOp(op)
		}
		return Lead{}, apperr.Wrap(err, apperr.KindInternal, "failed to lock lead").WithOp(op)
	}
	return lead, nil
}

// advanceCaseStageTx performs the guarded forward step inside an already
// open transaction. lead must have been read under FOR UPDATE.
func advanceCaseStageTx(ctx context.Context, tx pgx.Tx, lead Lead, toStage string, changedBy uuid.UUID, note *string, op string) (Lead, error) {
	if lead.PipelineStage == domain.PipelineStageLost {
		return Lead{}, apperr.Conflict("lead is marked lost").WithOp(op)
	}
	if !domain.CanAdvanceCaseStage(lead.CaseStage, toStage) {
		return Lead{}, apperr.Conflict(fmt.Sprintf("invalid case stage transition from %s to %s", lead.CaseStage, toStage)).WithOp(op)
	}

	fromStage := lead.CaseStage
	row := tx.QueryRow(ctx, `
		UPDATE leads SET case_stage = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+leadColumns, lead.ID, toStage)
	lead, err := scanLead(row)
	if err != nil {
		return Lead{}, apperr.Wrap(err, apperr.KindInternal, "failed to update case stage").WithOp(op)
	}
	if err := insertStageHistory(ctx, tx, lead.ID, fromStage, toStage, changedBy, note); err != nil {
		return Lead{}, apperr.Wrap(err, apperr.KindInternal, "failed to record stage history").WithOp(op)
	}
	return lead, nil
}

func insertStageHistory(ctx context.Context, tx pgx.Tx, leadID uuid.UUID, fromStage, toStage string, changedBy uuid.UUID, note *string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO case_stage_history (lead_id, from_stage, to_stage, changed_by, note)
		VALUES ($1, $2, $3, $4, $5)`,
		leadID, fromStage, toStage, changedBy, note)
	return err
}

func scanNullableDecimal(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
