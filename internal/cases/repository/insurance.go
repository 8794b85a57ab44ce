package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"careops_backend/internal/cases/domain"
	"careops_backend/platform/apperr"
)

type InsuranceCase struct {
	ID             uuid.UUID
	LeadID         uuid.UUID
	Status         string
	ApprovalAmount *decimal.Decimal
	HandledByID    *uuid.UUID
	ApprovedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

const insuranceCaseColumns = `id, lead_id, status, approval_amount::text,
		handled_by, approved_at, created_at, updated_at`

func scanInsuranceCase(row pgx.Row) (InsuranceCase, error) {
	var c InsuranceCase
	var amount *string
	err := row.Scan(&c.ID, &c.LeadID, &c.Status, &amount, &c.HandledByID,
		&c.ApprovedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return InsuranceCase{}, err
	}
	c.ApprovalAmount, err = scanNullableDecimal(amount)
	return c, err
}

// CreateInsuranceCase opens the insurer-facing case once pre-authorization
// is complete and moves the pipeline from SALES to INSURANCE.
func (r *Repository) CreateInsuranceCase(ctx context.Context, leadID, openedBy uuid.UUID) (InsuranceCase, Lead, error) {
	const op = "cases.repository.create_insurance_case"

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return InsuranceCase{}, Lead{}, apperr.Wrap(err, apperr.KindInternal, "failed to begin transaction").WithOp(op)
	}
	defer tx.Rollback(ctx)

	lead, err := lockLead(ctx, tx, leadID, op)
	if err != nil {
		return InsuranceCase{}, Lead{}, err
	}
	if lead.PipelineStage == domain.PipelineStageLost {
		return InsuranceCase{}, Lead{}, apperr.Conflict("lead is marked lost").WithOp(op)
	}
	if lead.PipelineStage != domain.PipelineStageSales && lead.PipelineStage != domain.PipelineStageInsurance {
		return InsuranceCase{}, Lead{}, apperr.Conflict("pipeline has moved past the insurance stage").WithOp(op)
	}
	if lead.CaseStage != domain.CaseStagePreAuthDone {
		return InsuranceCase{}, Lead{}, apperr.Conflict("pre-authorization is not complete for this lead").WithOp(op)
	}

	var existing int
	if err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM insurance_cases WHERE lead_id = $1 AND status = $2`,
		leadID, domain.InsuranceCaseOpen).Scan(&existing); err != nil {
		return InsuranceCase{}, Lead{}, apperr.Wrap(err, apperr.KindInternal, "failed to check open insurance cases").WithOp(op)
	}
	if existing > 0 {
		return InsuranceCase{}, Lead{}, apperr.Conflict("lead already has an open insurance case").WithOp(op)
	}

	if lead.PipelineStage == domain.PipelineStageSales {
		row := tx.QueryRow(ctx, `
			UPDATE leads SET pipeline_stage = $2, updated_at = NOW()
			WHERE id = $1
			RETURNING `+leadColumns, leadID, domain.PipelineStageInsurance)
		lead, err = scanLead(row)
		if err != nil {
			return InsuranceCase{}, Lead{}, apperr.Wrap(err, apperr.KindInternal, "failed to advance pipeline stage").WithOp(op)
		}
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO insurance_cases (lead_id, status, handled_by)
		VALUES ($1, $2, $3)
		RETURNING `+insuranceCaseColumns,
		leadID, domain.InsuranceCaseOpen, openedBy)
	ic, err := scanInsuranceCase(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return InsuranceCase{}, Lead{}, apperr.Conflict("lead already has an open insurance case").WithOp(op)
		}
		return InsuranceCase{}, Lead{}, apperr.Wrap(err, apperr.KindInternal, "failed to create insurance case").WithOp(op)
	}

	if err := tx.Commit(ctx); err != nil {
		return InsuranceCase{}, Lead{}, apperr.Wrap(err, apperr.KindInternal, "failed to commit transaction").WithOp(op)
	}
	return ic, lead, nil
}

func (r *Repository) GetInsuranceCase(ctx context.Context, id uuid.UUID) (InsuranceCase, error) {
	const op = "cases.repository.get_insurance_case"

	row := r.pool.QueryRow(ctx, `SELECT `+insuranceCaseColumns+` FROM insurance_cases WHERE id = $1`, id)
	ic, err := scanInsuranceCase(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return InsuranceCase{}, apperr.NotFound("insurance case not found").WithOp(op)
		}
		return InsuranceCase{}, apperr.Wrap(err, apperr.KindInternal, "failed to get insurance case").WithOp(op)
	}
	return ic, nil
}

// ApproveInsuranceCase finalizes an open insurance case and advances the
// lead's pipeline from INSURANCE to PL in the same transaction, so the two
// records can never disagree.
func (r *Repository) ApproveInsuranceCase(ctx context.Context, caseID, actorID uuid.UUID, approvalAmount *decimal.Decimal) (InsuranceCase, Lead, error) {
	const op = "cases.repository.approve_insurance_case"

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return InsuranceCase{}, Lead{}, apperr.Wrap(err, apperr.KindInternal, "failed to begin transaction").WithOp(op)
	}
	defer tx.Rollback(ctx)

	ic, err := lockInsuranceCase(ctx, tx, caseID, op)
	if err != nil {
		return InsuranceCase{}, Lead{}, err
	}
	if ic.Status != domain.InsuranceCaseOpen {
		return InsuranceCase{}, Lead{}, apperr.Conflict("insurance case is already finalized").WithOp(op)
	}

	var amount *string
	if approvalAmount != nil {
		s := approvalAmount.String()
		amount = &s
	}
	row := tx.QueryRow(ctx, `
		UPDATE insurance_cases
		SET status = $2, approval_amount = $3::numeric, handled_by = $4, approved_at = NOW(), updated_at = NOW()
		WHERE id = $1
		RETURNING `+insuranceCaseColumns,
		caseID, domain.InsuranceCaseApproved, amount, actorID)
	ic, err = scanInsuranceCase(row)
	if err != nil {
		return InsuranceCase{}, Lead{}, apperr.Wrap(err, apperr.KindInternal, "failed to approve insurance case").WithOp(op)
	}

	lead, err := lockLead(ctx, tx, ic.LeadID, op)
	if err != nil {
		return InsuranceCase{}, Lead{}, err
	}
	if lead.PipelineStage != domain.PipelineStageInsurance {
		return InsuranceCase{}, Lead{}, apperr.Conflict("lead is not in the insurance pipeline stage").WithOp(op)
	}
	row = tx.QueryRow(ctx, `
		UPDATE leads SET pipeline_stage = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+leadColumns, lead.ID, domain.PipelineStagePL)
	lead, err = scanLead(row)
	if err != nil {
		return InsuranceCase{}, Lead{}, apperr.Wrap(err, apperr.KindInternal, "failed to advance pipeline stage").WithOp(op)
	}

	if err := tx.Commit(ctx); err != nil {
		return InsuranceCase{}, Lead{}, apperr.Wrap(err, apperr.KindInternal, "failed to commit transaction").WithOp(op)
	}
	return ic, lead, nil
}

// RejectInsuranceCase finalizes an open insurance case as rejected. The
// pipeline stays at INSURANCE so the team can reopen with the insurer.
func (r *Repository) RejectInsuranceCase(ctx context.Context, caseID, actorID uuid.UUID) (InsuranceCase, error) {
	const op = "cases.repository.reject_insurance_case"

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return InsuranceCase{}, apperr.Wrap(err, apperr.KindInternal, "failed to begin transaction").WithOp(op)
	}
	defer tx.Rollback(ctx)

	ic, err := lockInsuranceCase(ctx, tx, caseID, op)
	if err != nil {
		return InsuranceCase{}, err
	}
	if ic.Status != domain.InsuranceCaseOpen {
		return InsuranceCase{}, apperr.Conflict("insurance case is already finalized").WithOp(op)
	}

	row := tx.QueryRow(ctx, `
		UPDATE insurance_cases
		SET status = $2, handled_by = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING `+insuranceCaseColumns,
		caseID, domain.InsuranceCaseRejected, actorID)
	ic, err = scanInsuranceCase(row)
	if err != nil {
		return InsuranceCase{}, apperr.Wrap(err, apperr.KindInternal, "failed to reject insurance case").WithOp(op)
	}

	if err := tx.Commit(ctx); err != nil {
		return InsuranceCase{}, apperr.Wrap(err, apperr.KindInternal, "failed to commit transaction").WithOp(op)
	}
	return ic, nil
}

func lockInsuranceCase(ctx context.Context, tx pgx.Tx, caseID uuid.UUID, op string) (InsuranceCase, error) {
	row := tx.QueryRow(ctx, `SELECT `+insuranceCaseColumns+` FROM insurance_cases WHERE id = $1 FOR UPDATE`, caseID)
	ic, err := scanInsuranceCase(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return InsuranceCase{}, apperr.NotFound("insurance case not found").WithOp(op)
		}
		return InsuranceCase{}, apperr.Wrap(err, apperr.KindInternal, "failed to lock insurance case").WithOp(op)
	}
	return ic, nil
}
