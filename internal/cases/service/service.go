// Package service implements the case pipeline operations. Authorization is
// checked before any domain read, state guards run in the repository under
// row locks, and side effects are published on the event bus only after the
// owning transaction has committed.
package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"careops_backend/internal/cases/domain"
	"careops_backend/internal/cases/repository"
	"careops_backend/internal/cases/transport"
	"careops_backend/internal/events"
	"careops_backend/internal/identity"
	"careops_backend/platform/apperr"
	"careops_backend/platform/phone"
)

// Store is the persistence surface the service depends on. The repository
// implements it; tests substitute an in-memory fake.
type Store interface {
	CreateLead(ctx context.Context, p repository.CreateLeadParams) (repository.Lead, error)
	GetLead(ctx context.Context, id uuid.UUID) (repository.Lead, error)
	ListLeads(ctx context.Context, f repository.LeadFilter) ([]repository.Lead, error)
	ListStageHistory(ctx context.Context, leadID uuid.UUID) ([]repository.StageHistory, error)
	AdvanceCaseStage(ctx context.Context, leadID uuid.UUID, toStage string, changedBy uuid.UUID, note *string) (repository.Lead, error)
	MarkDischarged(ctx context.Context, leadID, changedBy uuid.UUID) (repository.Lead, error)
	MarkLost(ctx context.Context, leadID, changedBy uuid.UUID, reason string) (repository.Lead, error)

	CreateKYPSubmission(ctx context.Context, leadID, changedBy uuid.UUID) (repository.KYPSubmission, repository.Lead, error)
	GetKYPSubmission(ctx context.Context, id uuid.UUID) (repository.KYPSubmission, error)
	GetKYPSubmissionByLead(ctx context.Context, leadID uuid.UUID) (repository.KYPSubmission, error)
	AddKYPDetails(ctx context.Context, kypID, changedBy uuid.UUID, p repository.KYPDetailsParams) (repository.KYPSubmission, repository.Lead, error)
	RaisePreAuth(ctx context.Context, kypID, raisedBy uuid.UUID, isNewHospital bool, requestedAmount *decimal.Decimal) (repository.PreAuthorization, repository.Lead, error)
	GetPreAuth(ctx context.Context, id uuid.UUID) (repository.PreAuthorization, error)
	MarkNewHospitalRaised(ctx context.Context, preAuthID uuid.UUID) (repository.PreAuthorization, error)
	ApprovePreAuth(ctx context.Context, preAuthID, actorID uuid.UUID) (repository.PreAuthorization, repository.Lead, error)
	RejectPreAuth(ctx context.Context, preAuthID, actorID uuid.UUID, reason string) (repository.PreAuthorization, repository.Lead, error)

	CreateInsuranceCase(ctx context.Context, leadID, openedBy uuid.UUID) (repository.InsuranceCase, repository.Lead, error)
	GetInsuranceCase(ctx context.Context, id uuid.UUID) (repository.InsuranceCase, error)
	ApproveInsuranceCase(ctx context.Context, caseID, actorID uuid.UUID, approvalAmount *decimal.Decimal) (repository.InsuranceCase, repository.Lead, error)
	RejectInsuranceCase(ctx context.Context, caseID, actorID uuid.UUID) (repository.InsuranceCase, error)
}

// Authorizer answers capability and lead-visibility questions for an actor.
type Authorizer interface {
	HasPermission(ctx context.Context, actor identity.Actor, capability string) (bool, error)
	CanAccessLead(ctx context.Context, actor identity.Actor, assignedBDID *uuid.UUID) (bool, error)
}

type Service struct {
	store Store
	authz Authorizer
	bus   events.Bus
}

func New(store Store, authz Authorizer, bus events.Bus) *Service {
	return &Service{store: store, authz: authz, bus: bus}
}

const op = "cases.service"

func (s *Service) requireCapability(ctx context.Context, actor identity.Actor, capability string) error {
	allowed, err := s.authz.HasPermission(ctx, actor, capability)
	if err != nil {
		return err
	}
	if !allowed {
		return apperr.Forbidden("you do not have permission to perform this action").WithOp(op)
	}
	return nil
}

func (s *Service) requireLeadAccess(ctx context.Context, actor identity.Actor, assignedBDID *uuid.UUID) error {
	allowed, err := s.authz.CanAccessLead(ctx, actor, assignedBDID)
	if err != nil {
		return err
	}
	if !allowed {
		return apperr.Forbidden("you do not have access to this lead").WithOp(op)
	}
	return nil
}

func (s *Service) CreateLead(ctx context.Context, actor identity.Actor, req transport.CreateLeadRequest) (transport.LeadResponse, error) {
	if err := s.requireCapability(ctx, actor, identity.CapCasesWrite); err != nil {
		return transport.LeadResponse{}, err
	}

	normalized := phone.NormalizeE164(req.PatientPhone)
	if normalized == "" {
		return transport.LeadResponse{}, apperr.Validation("patient phone number is required").WithOp(op)
	}

	params := repository.CreateLeadParams{
		PatientName:  req.PatientName,
		PatientPhone: normalized,
		PatientEmail: req.PatientEmail,
		Disease:      req.Disease,
		CreatedBy:    actor.ID,
	}
	if req.AssignedBDID != nil {
		bdID, err := uuid.Parse(*req.AssignedBDID)
		if err != nil {
			return transport.LeadResponse{}, apperr.Validation("invalid assigned BD id").WithOp(op)
		}
		params.AssignedBDID = &bdID
	} else if actor.Role == identity.RoleBD {
		// A BD creating a lead owns it by default.
		params.AssignedBDID = &actor.ID
	}

	lead, err := s.store.CreateLead(ctx, params)
	if err != nil {
		return transport.LeadResponse{}, err
	}
	return transport.ToLeadResponse(lead), nil
}

func (s *Service) GetLead(ctx context.Context, actor identity.Actor, leadID uuid.UUID) (transport.LeadResponse, error) {
	if err := s.requireCapability(ctx, actor, identity.CapCasesRead); err != nil {
		return transport.LeadResponse{}, err
	}
	lead, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		return transport.LeadResponse{}, err
	}
	if err := s.requireLeadAccess(ctx, actor, lead.AssignedBDID); err != nil {
		return transport.LeadResponse{}, err
	}
	return transport.ToLeadResponse(lead), nil
}

func (s *Service) ListLeads(ctx context.Context, actor identity.Actor, f repository.LeadFilter) (transport.LeadListResponse, error) {
	if err := s.requireCapability(ctx, actor, identity.CapCasesRead); err != nil {
		return transport.LeadListResponse{}, err
	}
	if actor.Role == identity.RoleBD {
		// BDs only ever see their own book.
		f.AssignedBDID = &actor.ID
	}
	leads, err := s.store.ListLeads(ctx, f)
	if err != nil {
		return transport.LeadListResponse{}, err
	}
	resp := transport.LeadListResponse{Leads: make([]transport.LeadResponse, 0, len(leads)), Total: len(leads)}
	for _, l := range leads {
		resp.Leads = append(resp.Leads, transport.ToLeadResponse(l))
	}
	return resp, nil
}

// GetLeadOwner reports the BD a lead is assigned to, nil when unassigned.
// It is for cross-module scoping checks, not for HTTP callers.
func (s *Service) GetLeadOwner(ctx context.Context, leadID uuid.UUID) (*uuid.UUID, error) {
	lead, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	return lead.AssignedBDID, nil
}

func (s *Service) ListStageHistory(ctx context.Context, actor identity.Actor, leadID uuid.UUID) ([]transport.StageHistoryResponse, error) {
	if err := s.requireCapability(ctx, actor, identity.CapCasesRead); err != nil {
		return nil, err
	}
	lead, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if err := s.requireLeadAccess(ctx, actor, lead.AssignedBDID); err != nil {
		return nil, err
	}
	history, err := s.store.ListStageHistory(ctx, leadID)
	if err != nil {
		return nil, err
	}
	resp := make([]transport.StageHistoryResponse, 0, len(history))
	for _, h := range history {
		resp = append(resp, transport.ToStageHistoryResponse(h))
	}
	return resp, nil
}

// AdvanceCaseStage moves a lead one step forward in the funnel. The target
// stage must name a known stage; legality of the step itself is re-checked
// under the row lock.
func (s *Service) AdvanceCaseStage(ctx context.Context, actor identity.Actor, leadID uuid.UUID, req transport.AdvanceStageRequest) (transport.LeadResponse, error) {
	if err := s.requireCapability(ctx, actor, identity.CapCasesWrite); err != nil {
		return transport.LeadResponse{}, err
	}
	if !domain.IsKnownCaseStage(req.ToStage) {
		return transport.LeadResponse{}, apperr.Validation("unknown case stage").WithOp(op)
	}

	lead, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		return transport.LeadResponse{}, err
	}
	if err := s.requireLeadAccess(ctx, actor, lead.AssignedBDID); err != nil {
		return transport.LeadResponse{}, err
	}

	fromStage := lead.CaseStage
	lead, err = s.store.AdvanceCaseStage(ctx, leadID, req.ToStage, actor.ID, req.Note)
	if err != nil {
		return transport.LeadResponse{}, err
	}
	s.publishStageChanged(ctx, lead, fromStage, actor.ID, req.Note)
	return transport.ToLeadResponse(lead), nil
}

func (s *Service) MarkDischarge(ctx context.Context, actor identity.Actor, leadID uuid.UUID) (transport.LeadResponse, error) {
	if err := s.requireCapability(ctx, actor, identity.CapCasesWrite); err != nil {
		return transport.LeadResponse{}, err
	}
	lead, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		return transport.LeadResponse{}, err
	}
	if err := s.requireLeadAccess(ctx, actor, lead.AssignedBDID); err != nil {
		return transport.LeadResponse{}, err
	}

	fromStage := lead.CaseStage
	lead, err = s.store.MarkDischarged(ctx, leadID, actor.ID)
	if err != nil {
		return transport.LeadResponse{}, err
	}
	s.publishStageChanged(ctx, lead, fromStage, actor.ID, nil)
	s.bus.Publish(ctx, events.CaseDischarged{
		BaseEvent:   events.NewBaseEvent(),
		LeadID:      lead.ID,
		Reference:   lead.Reference,
		PatientName: lead.PatientName,
		ActorID:     actor.ID,
	})
	return transport.ToLeadResponse(lead), nil
}

func (s *Service) MarkLost(ctx context.Context, actor identity.Actor, leadID uuid.UUID, req transport.MarkLostRequest) (transport.LeadResponse, error) {
	if err := s.requireCapability(ctx, actor, identity.CapCasesWrite); err != nil {
		return transport.LeadResponse{}, err
	}
	if !domain.IsKnownLostReason(req.Reason) {
		return transport.LeadResponse{}, apperr.Validation("unknown lost reason").WithOp(op)
	}
	lead, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		return transport.LeadResponse{}, err
	}
	if err := s.requireLeadAccess(ctx, actor, lead.AssignedBDID); err != nil {
		return transport.LeadResponse{}, err
	}

	reason := domain.ComposeLostReason(req.Reason, req.Detail)
	lead, err = s.store.MarkLost(ctx, leadID, actor.ID, reason)
	if err != nil {
		return transport.LeadResponse{}, err
	}
	s.bus.Publish(ctx, events.LeadLost{
		BaseEvent:    events.NewBaseEvent(),
		LeadID:       lead.ID,
		Reference:    lead.Reference,
		PatientName:  lead.PatientName,
		LostReason:   reason,
		ActorID:      actor.ID,
		AssignedBDID: lead.AssignedBDID,
	})
	return transport.ToLeadResponse(lead), nil
}

func (s *Service) SubmitKYP(ctx context.Context, actor identity.Actor, leadID uuid.UUID) (transport.KYPResponse, error) {
	if err := s.requireCapability(ctx, actor, identity.CapCasesWrite); err != nil {
		return transport.KYPResponse{}, err
	}
	lead, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		return transport.KYPResponse{}, err
	}
	if err := s.requireLeadAccess(ctx, actor, lead.AssignedBDID); err != nil {
		return transport.KYPResponse{}, err
	}

	fromStage := lead.CaseStage
	kyp, lead, err := s.store.CreateKYPSubmission(ctx, leadID, actor.ID)
	if err != nil {
		return transport.KYPResponse{}, err
	}
	s.publishStageChanged(ctx, lead, fromStage, actor.ID, nil)
	return transport.ToKYPResponse(kyp), nil
}

func (s *Service) GetKYP(ctx context.Context, actor identity.Actor, kypID uuid.UUID) (transport.KYPResponse, error) {
	if err := s.requireCapability(ctx, actor, identity.CapCasesRead); err != nil {
		return transport.KYPResponse{}, err
	}
	kyp, err := s.store.GetKYPSubmission(ctx, kypID)
	if err != nil {
		return transport.KYPResponse{}, err
	}
	lead, err := s.store.GetLead(ctx, kyp.LeadID)
	if err != nil {
		return transport.KYPResponse{}, err
	}
	if err := s.requireLeadAccess(ctx, actor, lead.AssignedBDID); err != nil {
		return transport.KYPResponse{}, err
	}
	return transport.ToKYPResponse(kyp), nil
}

func (s *Service) AddKYPDetails(ctx context.Context, actor identity.Actor, kypID uuid.UUID, req transport.KYPDetailsRequest) (transport.KYPResponse, error) {
	if err := s.requireCapability(ctx, actor, identity.CapCasesWrite); err != nil {
		return transport.KYPResponse{}, err
	}
	kyp, err := s.store.GetKYPSubmission(ctx, kypID)
	if err != nil {
		return transport.KYPResponse{}, err
	}
	lead, err := s.store.GetLead(ctx, kyp.LeadID)
	if err != nil {
		return transport.KYPResponse{}, err
	}
	if err := s.requireLeadAccess(ctx, actor, lead.AssignedBDID); err != nil {
		return transport.KYPResponse{}, err
	}

	fromStage := lead.CaseStage
	kyp, lead, err = s.store.AddKYPDetails(ctx, kypID, actor.ID, repository.KYPDetailsParams{
		InsurerName:         req.InsurerName,
		InsuranceCardNumber: req.InsuranceCardNumber,
		IdentityDocument:    req.IdentityDocument,
		Disease:             req.Disease,
	})
	if err != nil {
		return transport.KYPResponse{}, err
	}
	s.publishStageChanged(ctx, lead, fromStage, actor.ID, nil)
	return transport.ToKYPResponse(kyp), nil
}

func (s *Service) RaisePreAuth(ctx context.Context, actor identity.Actor, kypID uuid.UUID, req transport.RaisePreAuthRequest) (transport.PreAuthResponse, error) {
	if err := s.requireCapability(ctx, actor, identity.CapInsuranceWrite); err != nil {
		return transport.PreAuthResponse{}, err
	}

	var requested *decimal.Decimal
	if req.RequestedAmount != nil {
		d, err := decimal.NewFromString(*req.RequestedAmount)
		if err != nil || d.IsNegative() {
			return transport.PreAuthResponse{}, apperr.Validation("invalid requested amount").WithOp(op)
		}
		requested = &d
	}

	kyp, err := s.store.GetKYPSubmission(ctx, kypID)
	if err != nil {
		return transport.PreAuthResponse{}, err
	}
	lead, err := s.store.GetLead(ctx, kyp.LeadID)
	if err != nil {
		return transport.PreAuthResponse{}, err
	}
	if err := s.requireLeadAccess(ctx, actor, lead.AssignedBDID); err != nil {
		return transport.PreAuthResponse{}, err
	}

	fromStage := lead.CaseStage
	preAuth, lead, err := s.store.RaisePreAuth(ctx, kypID, actor.ID, req.IsNewHospitalRequest, requested)
	if err != nil {
		return transport.PreAuthResponse{}, err
	}
	s.publishStageChanged(ctx, lead, fromStage, actor.ID, nil)
	return transport.ToPreAuthResponse(preAuth), nil
}

func (s *Service) MarkNewHospitalPreAuthRaised(ctx context.Context, actor identity.Actor, preAuthID uuid.UUID) (transport.PreAuthResponse, error) {
	if err := s.requireCapability(ctx, actor, identity.CapInsuranceWrite); err != nil {
		return transport.PreAuthResponse{}, err
	}
	preAuth, err := s.store.MarkNewHospitalRaised(ctx, preAuthID)
	if err != nil {
		return transport.PreAuthResponse{}, err
	}
	return transport.ToPreAuthResponse(preAuth), nil
}

func (s *Service) ApprovePreAuth(ctx context.Context, actor identity.Actor, preAuthID uuid.UUID) (transport.PreAuthResponse, error) {
	if err := s.requireCapability(ctx, actor, identity.CapInsuranceWrite); err != nil {
		return transport.PreAuthResponse{}, err
	}
	preAuth, lead, err := s.store.ApprovePreAuth(ctx, preAuthID, actor.ID)
	if err != nil {
		return transport.PreAuthResponse{}, err
	}
	s.publishStageChanged(ctx, lead, domain.CaseStagePreAuthRaised, actor.ID, nil)
	s.bus.Publish(ctx, events.PreAuthApproved{
		BaseEvent:       events.NewBaseEvent(),
		LeadID:          lead.ID,
		Reference:       lead.Reference,
		KYPSubmissionID: preAuth.KYPSubmissionID,
		ActorID:         actor.ID,
		AssignedBDID:    lead.AssignedBDID,
	})
	return transport.ToPreAuthResponse(preAuth), nil
}

func (s *Service) RejectPreAuth(ctx context.Context, actor identity.Actor, preAuthID uuid.UUID, req transport.RejectPreAuthRequest) (transport.PreAuthResponse, error) {
	if err := s.requireCapability(ctx, actor, identity.CapInsuranceWrite); err != nil {
		return transport.PreAuthResponse{}, err
	}
	preAuth, lead, err := s.store.RejectPreAuth(ctx, preAuthID, actor.ID, req.Reason)
	if err != nil {
		return transport.PreAuthResponse{}, err
	}
	s.bus.Publish(ctx, events.PreAuthRejected{
		BaseEvent:       events.NewBaseEvent(),
		LeadID:          lead.ID,
		Reference:       lead.Reference,
		KYPSubmissionID: preAuth.KYPSubmissionID,
		Reason:          req.Reason,
		ActorID:         actor.ID,
		AssignedBDID:    lead.AssignedBDID,
	})
	return transport.ToPreAuthResponse(preAuth), nil
}

func (s *Service) OpenInsuranceCase(ctx context.Context, actor identity.Actor, leadID uuid.UUID) (transport.InsuranceCaseResponse, error) {
	if err := s.requireCapability(ctx, actor, identity.CapInsuranceWrite); err != nil {
		return transport.InsuranceCaseResponse{}, err
	}
	lead, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		return transport.InsuranceCaseResponse{}, err
	}
	if err := s.requireLeadAccess(ctx, actor, lead.AssignedBDID); err != nil {
		return transport.InsuranceCaseResponse{}, err
	}
	ic, _, err := s.store.CreateInsuranceCase(ctx, leadID, actor.ID)
	if err != nil {
		return transport.InsuranceCaseResponse{}, err
	}
	return transport.ToInsuranceCaseResponse(ic), nil
}

func (s *Service) ApproveInsuranceCase(ctx context.Context, actor identity.Actor, caseID uuid.UUID, req transport.ApproveInsuranceCaseRequest) (transport.InsuranceCaseResponse, error) {
	if err := s.requireCapability(ctx, actor, identity.CapInsuranceWrite); err != nil {
		return transport.InsuranceCaseResponse{}, err
	}

	var amount *decimal.Decimal
	if req.ApprovalAmount != nil {
		d, err := decimal.NewFromString(*req.ApprovalAmount)
		if err != nil || d.IsNegative() {
			return transport.InsuranceCaseResponse{}, apperr.Validation("invalid approval amount").WithOp(op)
		}
		amount = &d
	}

	ic, lead, err := s.store.ApproveInsuranceCase(ctx, caseID, actor.ID, amount)
	if err != nil {
		return transport.InsuranceCaseResponse{}, err
	}

	event := events.InsuranceCaseApproved{
		BaseEvent:    events.NewBaseEvent(),
		CaseID:       ic.ID,
		LeadID:       lead.ID,
		Reference:    lead.Reference,
		ActorID:      actor.ID,
		AssignedBDID: lead.AssignedBDID,
	}
	if ic.ApprovalAmount != nil {
		event.ApprovalAmount = ic.ApprovalAmount.String()
	}
	s.bus.Publish(ctx, event)
	return transport.ToInsuranceCaseResponse(ic), nil
}

func (s *Service) RejectInsuranceCase(ctx context.Context, actor identity.Actor, caseID uuid.UUID) (transport.InsuranceCaseResponse, error) {
	if err := s.requireCapability(ctx, actor, identity.CapInsuranceWrite); err != nil {
		return transport.InsuranceCaseResponse{}, err
	}
	ic, err := s.store.RejectInsuranceCase(ctx, caseID, actor.ID)
	if err != nil {
		return transport.InsuranceCaseResponse{}, err
	}
	return transport.ToInsuranceCaseResponse(ic), nil
}

func (s *Service) publishStageChanged(ctx context.Context, lead repository.Lead, fromStage string, actorID uuid.UUID, note *string) {
	event := events.CaseStageChanged{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    lead.ID,
		Reference: lead.Reference,
		FromStage: fromStage,
		ToStage:   lead.CaseStage,
		ChangedBy: actorID,
	}
	if note != nil {
		event.Note = *note
	}
	s.bus.Publish(ctx, event)
}
