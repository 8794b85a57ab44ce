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

type KYPSubmission struct {
	ID                  uuid.UUID
	LeadID              uuid.UUID
	Status              string
	InsurerName         *string
	InsuranceCardNumber *string
	IdentityDocument    *string
	Disease             *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type PreAuthorization struct {
	ID                   uuid.UUID
	KYPSubmissionID      uuid.UUID
	ApprovalStatus       string
	RejectionReason      *string
	IsNewHospitalRequest bool
	NewHospitalRaised    bool
	NewHospitalRaisedAt  *time.Time
	RequestedAmount      *decimal.Decimal
	HandledByID          *uuid.UUID
	ApprovedAt           *time.Time
	RejectedAt           *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

type KYPDetailsParams struct {
	InsurerName         *string
	InsuranceCardNumber *string
	IdentityDocument    *string
	Disease             *string
}

const kypColumns = `id, lead_id, status, insurer_name, insurance_card_number,
		identity_document, disease, created_at, updated_at`

const preAuthColumns = `id, kyp_submission_id, approval_status, rejection_reason,
		is_new_hospital_request, new_hospital_raised, new_hospital_raised_at,
		requested_amount::text, handled_by, approved_at, rejected_at, created_at, updated_at`

func scanKYP(row pgx.Row) (KYPSubmission, error) {
	var k KYPSubmission
	err := row.Scan(&k.ID, &k.LeadID, &k.Status, &k.InsurerName, &k.InsuranceCardNumber,
		&k.IdentityDocument, &k.Disease, &k.CreatedAt, &k.UpdatedAt)
	return k, err
}

func scanPreAuth(row pgx.Row) (PreAuthorization, error) {
	var p PreAuthorization
	var amount *string
	err := row.Scan(&p.ID, &p.KYPSubmissionID, &p.ApprovalStatus, &p.RejectionReason,
		&p.IsNewHospitalRequest, &p.NewHospitalRaised, &p.NewHospitalRaisedAt,
		&amount, &p.HandledByID, &p.ApprovedAt, &p.RejectedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return PreAuthorization{}, err
	}
	p.RequestedAmount, err = scanNullableDecimal(amount)
	return p, err
}

// CreateKYPSubmission opens the know-your-patient workflow for a lead and
// advances the case to KYP_PENDING in the same transaction. A lead holds at
// most one submission.
func (r *Repository) CreateKYPSubmission(ctx context.Context, leadID, changedBy uuid.UUID) (KYPSubmission, Lead, error) {
	const op = "cases.repository.create_kyp_submission"

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return KYPSubmission{}, Lead{}, apperr.Wrap(err, apperr.KindInternal, "failed to begin transaction").WithOp(op)
	}
	defer tx.Rollback(ctx)

	lead, err := lockLead(ctx, tx, leadID, op)
	if err != nil {
		return KYPSubmission{}, Lead{}, err
	}
	lead, err = advanceCaseStageTx(ctx, tx, lead, domain.CaseStageKYPPending, changedBy, nil, op)
	if err != nil {
		return KYPSubmission{}, Lead{}, err
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO kyp_submissions (lead_id, status)
		VALUES ($1, $2)
		RETURNING `+kypColumns, leadID, domain.KYPStatusPending)
	kyp, err := scanKYP(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return KYPSubmission{}, Lead{}, apperr.Conflict("lead already has a KYP submission").WithOp(op)
		}
		return KYPSubmission{}, Lead{}, apperr.Wrap(err, apperr.KindInternal, "failed to create KYP submission").WithOp(op)
	}

	if err := tx.Commit(ctx); err != nil {
		return KYPSubmission{}, Lead{}, apperr.Wrap(err, apperr.KindInternal, "failed to commit transaction").WithOp(op)
	}
	return kyp, lead, nil
}

func (r *Repository) GetKYPSubmission(ctx context.Context, id uuid.UUID) (KYPSubmission, error) {
	const op = "cases.repository.get_kyp_submission"

	row := r.pool.QueryRow(ctx, `SELECT `+kypColumns+` FROM kyp_submissions WHERE id = $1`, id)
	kyp, err := scanKYP(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return KYPSubmission{}, apperr.NotFound("KYP submission not found").WithOp(op)
		}
		return KYPSubmission{}, apperr.Wrap(err, apperr.KindInternal, "failed to get KYP submission").WithOp(op)
	}
	return kyp, nil
}

func (r *Repository) GetKYPSubmissionByLead(ctx context.Context, leadID uuid.UUID) (KYPSubmission, error) {
	const op = "cases.repository.get_kyp_submission_by_lead"

	row := r.pool.QueryRow(ctx, `SELECT `+kypColumns+` FROM kyp_submissions WHERE lead_id = $1`, leadID)
	kyp, err := scanKYP(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return KYPSubmission{}, apperr.NotFound("KYP submission not found").WithOp(op)
		}
		return KYPSubmission{}, apperr.Wrap(err, apperr.KindInternal, "failed to get KYP submission").WithOp(op)
	}
	return kyp, nil
}

// AddKYPDetails fills in the patient's insurance details and advances both
// the submission and the lead.
func (r *Repository) AddKYPDetails(ctx context.Context, kypID, changedBy uuid.UUID, p KYPDetailsParams) (KYPSubmission, Lead, error) {
	const op = "cases.repository.add_kyp_details"

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return KYPSubmission{}, Lead{}, apperr.Wrap(err, apperr.KindInternal, "failed to begin transaction").WithOp(op)
	}
	defer tx.Rollback(ctx)

	kyp, err := lockKYP(ctx, tx, kypID, op)
	if err != nil {
		return KYPSubmission{}, Lead{}, err
	}
	if kyp.Status != domain.KYPStatusPending {
		return KYPSubmission{}, Lead{}, apperr.Conflict("KYP details already added").WithOp(op)
	}

	row := tx.QueryRow(ctx, `
		UPDATE kyp_submissions
		SET status = $2, insurer_name = $3, insurance_card_number = $4,
			identity_document = $5, disease = COALESCE($6, disease), updated_at = NOW()
		WHERE id = $1
		RETURNING `+kypColumns,
		kypID, domain.KYPStatusDetailsAdded, p.InsurerName, p.InsuranceCardNumber,
		p.IdentityDocument, p.Disease)
	kyp, err = scanKYP(row)
	if err != nil {
		return KYPSubmission{}, Lead{}, apperr.Wrap(err, apperr.KindInternal, "failed to update KYP submission").WithOp(op)
	}

	lead, err := lockLead(ctx, tx, kyp.LeadID, op)
	if err != nil {
		return KYPSubmission{}, Lead{}, err
	}
	lead, err = advanceCaseStageTx(ctx, tx, lead, domain.CaseStageKYPComplete, changedBy, nil, op)
	if err != nil {
		return KYPSubmission{}, Lead{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return KYPSubmission{}, Lead{}, apperr.Wrap(err, apperr.KindInternal, "failed to commit transaction").WithOp(op)
	}
	return kyp, lead, nil
}

// RaisePreAuth opens a pre-authorization against a completed KYP submission
// and advances the lead to PREAUTH_RAISED.
func (r *Repository) RaisePreAuth(ctx context.Context, kypID, raisedBy uuid.UUID, isNewHospital bool, requestedAmount *decimal.Decimal) (PreAuthorization, Lead, error) {
	const op = "cases.repository.raise_pre_auth"

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return PreAuthorization{}, Lead{}, apperr.Wrap(err, apperr.KindInternal, "failed to begin transaction").WithOp(op)
	}
	defer tx.Rollback(ctx)

	kyp, err := lockKYP(ctx, tx, kypID, op)
	if err != nil {
		return PreAuthorization{}, Lead{}, err
	}
	if kyp.Status != domain.KYPStatusDetailsAdded {
		return PreAuthorization{}, Lead{}, apperr.Conflict("KYP submission is not ready for pre-authorization").WithOp(op)
	}

	lead, err := lockLead(ctx, tx, kyp.LeadID, op)
	if err != nil {
		return PreAuthorization{}, Lead{}, err
	}
	lead, err = advanceCaseStageTx(ctx, tx, lead, domain.CaseStagePreAuthRaised, raisedBy, nil, op)
	if err != nil {
		return PreAuthorization{}, Lead{}, err
	}

	var amount *string
	if requestedAmount != nil {
		s := requestedAmount.String()
		amount = &s
	}
	row := tx.QueryRow(ctx, `
		INSERT INTO pre_authorizations (kyp_submission_id, approval_status, is_new_hospital_request, requested_amount)
		VALUES ($1, $2, $3, $4::numeric)
		RETURNING `+preAuthColumns,
		kypID, domain.PreAuthPending, isNewHospital, amount)
	preAuth, err := scanPreAuth(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return PreAuthorization{}, Lead{}, apperr.Conflict("pre-authorization already raised for this submission").WithOp(op)
		}
		return PreAuthorization{}, Lead{}, apperr.Wrap(err, apperr.KindInternal, "failed to create pre-authorization").WithOp(op)
	}

	if err := tx.Commit(ctx); err != nil {
		return PreAuthorization{}, Lead{}, apperr.Wrap(err, apperr.KindInternal, "failed to commit transaction").WithOp(op)
	}
	return preAuth, lead, nil
}

func (r *Repository) GetPreAuth(ctx context.Context, id uuid.UUID) (PreAuthorization, error) {
	const op = "cases.repository.get_pre_auth"

	row := r.pool.QueryRow(ctx, `SELECT `+preAuthColumns+` FROM pre_authorizations WHERE id = $1`, id)
	preAuth, err := scanPreAuth(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PreAuthorization{}, apperr.NotFound("pre-authorization not found").WithOp(op)
		}
		return PreAuthorization{}, apperr.Wrap(err, apperr.KindInternal, "failed to get pre-authorization").WithOp(op)
	}
	return preAuth, nil
}

// MarkNewHospitalRaised flags that the hospital-side pre-auth paperwork has
// been filed for a new-hospital request. Calling it again is a no-op.
func (r *Repository) MarkNewHospitalRaised(ctx context.Context, preAuthID uuid.UUID) (PreAuthorization, error) {
	const op = "cases.repository.mark_new_hospital_raised"

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return PreAuthorization{}, apperr.Wrap(err, apperr.KindInternal, "failed to begin transaction").WithOp(op)
	}
	defer tx.Rollback(ctx)

	preAuth, err := lockPreAuth(ctx, tx, preAuthID, op)
	if err != nil {
		return PreAuthorization{}, err
	}
	if !preAuth.IsNewHospitalRequest {
		return PreAuthorization{}, apperr.Validation("pre-authorization is not a new hospital request").WithOp(op)
	}
	if preAuth.ApprovalStatus != domain.PreAuthPending {
		return PreAuthorization{}, apperr.Conflict("pre-authorization is already finalized").WithOp(op)
	}
	if preAuth.NewHospitalRaised {
		if err := tx.Commit(ctx); err != nil {
			return PreAuthorization{}, apperr.Wrap(err, apperr.KindInternal, "failed to commit transaction").WithOp(op)
		}
		return preAuth, nil
	}

	row := tx.QueryRow(ctx, `
		UPDATE pre_authorizations
		SET new_hospital_raised = TRUE, new_hospital_raised_at = NOW(), updated_at = NOW()
		WHERE id = $1
		RETURNING `+preAuthColumns, preAuthID)
	preAuth, err = scanPreAuth(row)
	if err != nil {
		return PreAuthorization{}, apperr.Wrap(err, apperr.KindInternal, "failed to update pre-authorization").WithOp(op)
	}

	if err := tx.Commit(ctx); err != nil {
		return PreAuthorization{}, apperr.Wrap(err, apperr.KindInternal, "failed to commit transaction").WithOp(op)
	}
	return preAuth, nil
}

// ApprovePreAuth finalizes a pending pre-authorization as approved,
// completes the KYP submission stage and advances the lead, all in one
// transaction.
func (r *Repository) ApprovePreAuth(ctx context.Context, preAuthID, actorID uuid.UUID) (PreAuthorization, Lead, error) {
	const op = "cases.repository.approve_pre_auth"

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return PreAuthorization{}, Lead{}, apperr.Wrap(err, apperr.KindInternal, "failed to begin transaction").WithOp(op)
	}
	defer tx.Rollback(ctx)

	preAuth, kyp, err := lockPreAuthForDecision(ctx, tx, preAuthID, op)
	if err != nil {
		return PreAuthorization{}, Lead{}, err
	}

	row := tx.QueryRow(ctx, `
		UPDATE pre_authorizations
		SET approval_status = $2, handled_by = $3, approved_at = NOW(), updated_at = NOW()
		WHERE id = $1
		RETURNING `+preAuthColumns, preAuthID, domain.PreAuthApproved, actorID)
	preAuth, err = scanPreAuth(row)
	if err != nil {
		return PreAuthorization{}, Lead{}, apperr.Wrap(err, apperr.KindInternal, "failed to approve pre-authorization").WithOp(op)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE kyp_submissions SET status = $2, updated_at = NOW() WHERE id = $1`,
		kyp.ID, domain.KYPStatusPreAuthComplete); err != nil {
		return PreAuthorization{}, Lead{}, apperr.Wrap(err, apperr.KindInternal, "failed to update KYP submission").WithOp(op)
	}

	lead, err := lockLead(ctx, tx, kyp.LeadID, op)
	if err != nil {
		return PreAuthorization{}, Lead{}, err
	}
	lead, err = advanceCaseStageTx(ctx, tx, lead, domain.CaseStagePreAuthDone, actorID, nil, op)
	if err != nil {
		return PreAuthorization{}, Lead{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return PreAuthorization{}, Lead{}, apperr.Wrap(err, apperr.KindInternal, "failed to commit transaction").WithOp(op)
	}
	return preAuth, lead, nil
}

// RejectPreAuth finalizes a pending pre-authorization as rejected. The lead
// keeps its PREAUTH_RAISED case stage; a lateral history row records the
// rejection so the audit trail stays complete.
func (r *Repository) RejectPreAuth(ctx context.Context, preAuthID, actorID uuid.UUID, reason string) (PreAuthorization, Lead, error) {
	const op = "cases.repository.reject_pre_auth"

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return PreAuthorization{}, Lead{}, apperr.Wrap(err, apperr.KindInternal, "failed to begin transaction").WithOp(op)
	}
	defer tx.Rollback(ctx)

	preAuth, kyp, err := lockPreAuthForDecision(ctx, tx, preAuthID, op)
	if err != nil {
		return PreAuthorization{}, Lead{}, err
	}

	row := tx.QueryRow(ctx, `
		UPDATE pre_authorizations
		SET approval_status = $2, rejection_reason = $3, handled_by = $4, rejected_at = NOW(), updated_at = NOW()
		WHERE id = $1
		RETURNING `+preAuthColumns, preAuthID, domain.PreAuthRejected, reason, actorID)
	preAuth, err = scanPreAuth(row)
	if err != nil {
		return PreAuthorization{}, Lead{}, apperr.Wrap(err, apperr.KindInternal, "failed to reject pre-authorization").WithOp(op)
	}

	lead, err := lockLead(ctx, tx, kyp.LeadID, op)
	if err != nil {
		return PreAuthorization{}, Lead{}, err
	}
	if lead.CaseStage != domain.CaseStagePreAuthRaised {
		return PreAuthorization{}, Lead{}, apperr.Conflict("lead is not awaiting a pre-authorization decision").WithOp(op)
	}
	note := "Pre-authorization rejected: " + reason
	if err := insertStageHistory(ctx, tx, lead.ID, lead.CaseStage, lead.CaseStage, actorID, &note); err != nil {
		return PreAuthorization{}, Lead{}, apperr.Wrap(err, apperr.KindInternal, "failed to record stage history").WithOp(op)
	}

	if err := tx.Commit(ctx); err != nil {
		return PreAuthorization{}, Lead{}, apperr.Wrap(err, apperr.KindInternal, "failed to commit transaction").WithOp(op)
	}
	return preAuth, lead, nil
}

func lockKYP(ctx context.Context, tx pgx.Tx, kypID uuid.UUID, op string) (KYPSubmission, error) {
	row := tx.QueryRow(ctx, `SELECT `+kypColumns+` FROM kyp_submissions WHERE id = $1 FOR UPDATE`, kypID)
	kyp, err := scanKYP(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return KYPSubmission{}, apperr.NotFound("KYP submission not found").WithOp(op)
		}
		return KYPSubmission{}, apperr.Wrap(err, apperr.KindInternal, "failed to lock KYP submission").WithOp(op)
	}
	return kyp, nil
}

func lockPreAuth(ctx context.Context, tx pgx.Tx, preAuthID uuid.UUID, op string) (PreAuthorization, error) {
	row := tx.QueryRow(ctx, `SELECT `+preAuthColumns+` FROM pre_authorizations WHERE id = $1 FOR UPDATE`, preAuthID)
	preAuth, err := scanPreAuth(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PreAuthorization{}, apperr.NotFound("pre-authorization not found").WithOp(op)
		}
		return PreAuthorization{}, apperr.Wrap(err, apperr.KindInternal, "failed to lock pre-authorization").WithOp(op)
	}
	return preAuth, nil
}

// lockPreAuthForDecision locks a pre-authorization and enforces the shared
// approve/reject guards: the record must still be pending, and a
// new-hospital request must have its hospital-side paperwork raised first.
func lockPreAuthForDecision(ctx context.Context, tx pgx.Tx, preAuthID uuid.UUID, op string) (PreAuthorization, KYPSubmission, error) {
	preAuth, err := lockPreAuth(ctx, tx, preAuthID, op)
	if err != nil {
		return PreAuthorization{}, KYPSubmission{}, err
	}
	if preAuth.ApprovalStatus != domain.PreAuthPending {
		return PreAuthorization{}, KYPSubmission{}, apperr.Conflict("pre-authorization is already finalized").WithOp(op)
	}
	if preAuth.IsNewHospitalRequest && !preAuth.NewHospitalRaised {
		return PreAuthorization{}, KYPSubmission{}, apperr.Conflict("new hospital pre-authorization has not been raised yet").WithOp(op)
	}
	kyp, err := lockKYP(ctx, tx, preAuth.KYPSubmissionID, op)
	if err != nil {
		return PreAuthorization{}, KYPSubmission{}, err
	}
	return preAuth, kyp, nil
}
