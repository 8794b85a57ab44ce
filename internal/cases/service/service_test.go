package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"careops_backend/internal/cases/domain"
	"careops_backend/internal/cases/repository"
	"careops_backend/internal/cases/transport"
	"careops_backend/internal/identity"
	"careops_backend/platform/apperr"
	"careops_backend/platform/events"
)

// fakeStore reproduces the repository's locked-transition guards in memory
// so service behavior can be exercised without a database.
type fakeStore struct {
	leads     map[uuid.UUID]repository.Lead
	history   map[uuid.UUID][]repository.StageHistory
	kyps      map[uuid.UUID]repository.KYPSubmission
	preAuths  map[uuid.UUID]repository.PreAuthorization
	insurance map[uuid.UUID]repository.InsuranceCase
	seq       int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		leads:     make(map[uuid.UUID]repository.Lead),
		history:   make(map[uuid.UUID][]repository.StageHistory),
		kyps:      make(map[uuid.UUID]repository.KYPSubmission),
		preAuths:  make(map[uuid.UUID]repository.PreAuthorization),
		insurance: make(map[uuid.UUID]repository.InsuranceCase),
	}
}

func (f *fakeStore) addHistory(leadID uuid.UUID, from, to string, by uuid.UUID, note *string) {
	f.history[leadID] = append(f.history[leadID], repository.StageHistory{
		ID: uuid.New(), LeadID: leadID, FromStage: from, ToStage: to, ChangedBy: by, Note: note,
	})
}

func (f *fakeStore) CreateLead(_ context.Context, p repository.CreateLeadParams) (repository.Lead, error) {
	f.seq++
	lead := repository.Lead{
		ID:            uuid.New(),
		Reference:     fmt.Sprintf("CO-2025-%04d", f.seq),
		PatientName:   p.PatientName,
		PatientPhone:  p.PatientPhone,
		PatientEmail:  p.PatientEmail,
		Disease:       p.Disease,
		PipelineStage: domain.PipelineStageSales,
		CaseStage:     domain.CaseStageNewLead,
		AssignedBDID:  p.AssignedBDID,
	}
	f.leads[lead.ID] = lead
	note := "Lead created"
	f.addHistory(lead.ID, domain.CaseStageNewLead, domain.CaseStageNewLead, p.CreatedBy, &note)
	return lead, nil
}

func (f *fakeStore) GetLead(_ context.Context, id uuid.UUID) (repository.Lead, error) {
	lead, ok := f.leads[id]
	if !ok {
		return repository.Lead{}, apperr.NotFound("lead not found")
	}
	return lead, nil
}

func (f *fakeStore) ListLeads(_ context.Context, filter repository.LeadFilter) ([]repository.Lead, error) {
	var out []repository.Lead
	for _, l := range f.leads {
		if filter.AssignedBDID != nil {
			if l.AssignedBDID == nil || *l.AssignedBDID != *filter.AssignedBDID {
				continue
			}
		}
		out = append(out, l)
	}
	return out, nil
}

func (f *fakeStore) ListStageHistory(_ context.Context, leadID uuid.UUID) ([]repository.StageHistory, error) {
	return f.history[leadID], nil
}

func (f *fakeStore) advance(lead repository.Lead, toStage string, by uuid.UUID, note *string) (repository.Lead, error) {
	if lead.PipelineStage == domain.PipelineStageLost {
		return repository.Lead{}, apperr.Conflict("lead is marked lost")
	}
	if !domain.CanAdvanceCaseStage(lead.CaseStage, toStage) {
		return repository.Lead{}, apperr.Conflict("invalid case stage transition")
	}
	from := lead.CaseStage
	lead.CaseStage = toStage
	f.leads[lead.ID] = lead
	f.addHistory(lead.ID, from, toStage, by, note)
	return lead, nil
}

func (f *fakeStore) AdvanceCaseStage(ctx context.Context, leadID uuid.UUID, toStage string, changedBy uuid.UUID, note *string) (repository.Lead, error) {
	lead, err := f.GetLead(ctx, leadID)
	if err != nil {
		return repository.Lead{}, err
	}
	return f.advance(lead, toStage, changedBy, note)
}

func (f *fakeStore) MarkDischarged(ctx context.Context, leadID, changedBy uuid.UUID) (repository.Lead, error) {
	lead, err := f.GetLead(ctx, leadID)
	if err != nil {
		return repository.Lead{}, err
	}
	if lead.PipelineStage == domain.PipelineStageLost {
		return repository.Lead{}, apperr.Conflict("lead is marked lost")
	}
	if !domain.CanDischargeFrom(lead.CaseStage) {
		return repository.Lead{}, apperr.Conflict("cannot discharge case in stage " + lead.CaseStage)
	}
	from := lead.CaseStage
	lead.CaseStage = domain.CaseStageDischarged
	lead.PipelineStage = domain.PipelineStageCompleted
	f.leads[lead.ID] = lead
	f.addHistory(lead.ID, from, domain.CaseStageDischarged, changedBy, nil)
	return lead, nil
}

func (f *fakeStore) MarkLost(ctx context.Context, leadID, changedBy uuid.UUID, reason string) (repository.Lead, error) {
	lead, err := f.GetLead(ctx, leadID)
	if err != nil {
		return repository.Lead{}, err
	}
	if lead.PipelineStage == domain.PipelineStageLost {
		return repository.Lead{}, apperr.Conflict("lead is already marked lost")
	}
	if domain.IsTerminalCaseStage(lead.CaseStage) {
		return repository.Lead{}, apperr.Conflict("discharged case cannot be marked lost")
	}
	lead.PipelineStage = domain.PipelineStageLost
	lead.LostReason = &reason
	f.leads[lead.ID] = lead
	note := "Marked lost: " + reason
	f.addHistory(lead.ID, lead.CaseStage, lead.CaseStage, changedBy, &note)
	return lead, nil
}

func (f *fakeStore) CreateKYPSubmission(ctx context.Context, leadID, changedBy uuid.UUID) (repository.KYPSubmission, repository.Lead, error) {
	lead, err := f.GetLead(ctx, leadID)
	if err != nil {
		return repository.KYPSubmission{}, repository.Lead{}, err
	}
	lead, err = f.advance(lead, domain.CaseStageKYPPending, changedBy, nil)
	if err != nil {
		return repository.KYPSubmission{}, repository.Lead{}, err
	}
	kyp := repository.KYPSubmission{ID: uuid.New(), LeadID: leadID, Status: domain.KYPStatusPending}
	f.kyps[kyp.ID] = kyp
	return kyp, lead, nil
}

func (f *fakeStore) GetKYPSubmission(_ context.Context, id uuid.UUID) (repository.KYPSubmission, error) {
	kyp, ok := f.kyps[id]
	if !ok {
		return repository.KYPSubmission{}, apperr.NotFound("KYP submission not found")
	}
	return kyp, nil
}

func (f *fakeStore) GetKYPSubmissionByLead(_ context.Context, leadID uuid.UUID) (repository.KYPSubmission, error) {
	for _, k := range f.kyps {
		if k.LeadID == leadID {
			return k, nil
		}
	}
	return repository.KYPSubmission{}, apperr.NotFound("KYP submission not found")
}

func (f *fakeStore) AddKYPDetails(ctx context.Context, kypID, changedBy uuid.UUID, p repository.KYPDetailsParams) (repository.KYPSubmission, repository.Lead, error) {
	kyp, err := f.GetKYPSubmission(ctx, kypID)
	if err != nil {
		return repository.KYPSubmission{}, repository.Lead{}, err
	}
	if kyp.Status != domain.KYPStatusPending {
		return repository.KYPSubmission{}, repository.Lead{}, apperr.Conflict("KYP details already added")
	}
	kyp.Status = domain.KYPStatusDetailsAdded
	kyp.InsurerName = p.InsurerName
	f.kyps[kypID] = kyp
	lead, err := f.GetLead(ctx, kyp.LeadID)
	if err != nil {
		return repository.KYPSubmission{}, repository.Lead{}, err
	}
	lead, err = f.advance(lead, domain.CaseStageKYPComplete, changedBy, nil)
	if err != nil {
		return repository.KYPSubmission{}, repository.Lead{}, err
	}
	return kyp, lead, nil
}

func (f *fakeStore) RaisePreAuth(ctx context.Context, kypID, raisedBy uuid.UUID, isNewHospital bool, requestedAmount *decimal.Decimal) (repository.PreAuthorization, repository.Lead, error) {
	kyp, err := f.GetKYPSubmission(ctx, kypID)
	if err != nil {
		return repository.PreAuthorization{}, repository.Lead{}, err
	}
	if kyp.Status != domain.KYPStatusDetailsAdded {
		return repository.PreAuthorization{}, repository.Lead{}, apperr.Conflict("KYP submission is not ready for pre-authorization")
	}
	lead, err := f.GetLead(ctx, kyp.LeadID)
	if err != nil {
		return repository.PreAuthorization{}, repository.Lead{}, err
	}
	lead, err = f.advance(lead, domain.CaseStagePreAuthRaised, raisedBy, nil)
	if err != nil {
		return repository.PreAuthorization{}, repository.Lead{}, err
	}
	preAuth := repository.PreAuthorization{
		ID:                   uuid.New(),
		KYPSubmissionID:      kypID,
		ApprovalStatus:       domain.PreAuthPending,
		IsNewHospitalRequest: isNewHospital,
		RequestedAmount:      requestedAmount,
	}
	f.preAuths[preAuth.ID] = preAuth
	return preAuth, lead, nil
}

func (f *fakeStore) GetPreAuth(_ context.Context, id uuid.UUID) (repository.PreAuthorization, error) {
	p, ok := f.preAuths[id]
	if !ok {
		return repository.PreAuthorization{}, apperr.NotFound("pre-authorization not found")
	}
	return p, nil
}

func (f *fakeStore) MarkNewHospitalRaised(ctx context.Context, preAuthID uuid.UUID) (repository.PreAuthorization, error) {
	p, err := f.GetPreAuth(ctx, preAuthID)
	if err != nil {
		return repository.PreAuthorization{}, err
	}
	if !p.IsNewHospitalRequest {
		return repository.PreAuthorization{}, apperr.Validation("pre-authorization is not a new hospital request")
	}
	if p.ApprovalStatus != domain.PreAuthPending {
		return repository.PreAuthorization{}, apperr.Conflict("pre-authorization is already finalized")
	}
	p.NewHospitalRaised = true
	f.preAuths[preAuthID] = p
	return p, nil
}

func (f *fakeStore) decisionGuards(p repository.PreAuthorization) error {
	if p.ApprovalStatus != domain.PreAuthPending {
		return apperr.Conflict("pre-authorization is already finalized")
	}
	if p.IsNewHospitalRequest && !p.NewHospitalRaised {
		return apperr.Conflict("new hospital pre-authorization has not been raised yet")
	}
	return nil
}

func (f *fakeStore) ApprovePreAuth(ctx context.Context, preAuthID, actorID uuid.UUID) (repository.PreAuthorization, repository.Lead, error) {
	p, err := f.GetPreAuth(ctx, preAuthID)
	if err != nil {
		return repository.PreAuthorization{}, repository.Lead{}, err
	}
	if err := f.decisionGuards(p); err != nil {
		return repository.PreAuthorization{}, repository.Lead{}, err
	}
	p.ApprovalStatus = domain.PreAuthApproved
	p.HandledByID = &actorID
	f.preAuths[preAuthID] = p

	kyp := f.kyps[p.KYPSubmissionID]
	kyp.Status = domain.KYPStatusPreAuthComplete
	f.kyps[kyp.ID] = kyp

	lead, err := f.GetLead(ctx, kyp.LeadID)
	if err != nil {
		return repository.PreAuthorization{}, repository.Lead{}, err
	}
	lead, err = f.advance(lead, domain.CaseStagePreAuthDone, actorID, nil)
	if err != nil {
		return repository.PreAuthorization{}, repository.Lead{}, err
	}
	return p, lead, nil
}

func (f *fakeStore) RejectPreAuth(ctx context.Context, preAuthID, actorID uuid.UUID, reason string) (repository.PreAuthorization, repository.Lead, error) {
	p, err := f.GetPreAuth(ctx, preAuthID)
	if err != nil {
		return repository.PreAuthorization{}, repository.Lead{}, err
	}
	if err := f.decisionGuards(p); err != nil {
		return repository.PreAuthorization{}, repository.Lead{}, err
	}
	p.ApprovalStatus = domain.PreAuthRejected
	p.RejectionReason = &reason
	f.preAuths[preAuthID] = p

	kyp := f.kyps[p.KYPSubmissionID]
	lead, err := f.GetLead(ctx, kyp.LeadID)
	if err != nil {
		return repository.PreAuthorization{}, repository.Lead{}, err
	}
	note := "Pre-authorization rejected: " + reason
	f.addHistory(lead.ID, lead.CaseStage, lead.CaseStage, actorID, &note)
	return p, lead, nil
}

func (f *fakeStore) CreateInsuranceCase(ctx context.Context, leadID, openedBy uuid.UUID) (repository.InsuranceCase, repository.Lead, error) {
	lead, err := f.GetLead(ctx, leadID)
	if err != nil {
		return repository.InsuranceCase{}, repository.Lead{}, err
	}
	if lead.CaseStage != domain.CaseStagePreAuthDone {
		return repository.InsuranceCase{}, repository.Lead{}, apperr.Conflict("pre-authorization is not complete for this lead")
	}
	for _, existing := range f.insurance {
		if existing.LeadID == leadID && existing.Status == domain.InsuranceCaseOpen {
			return repository.InsuranceCase{}, repository.Lead{}, apperr.Conflict("lead already has an open insurance case")
		}
	}
	if lead.PipelineStage == domain.PipelineStageSales {
		lead.PipelineStage = domain.PipelineStageInsurance
		f.leads[leadID] = lead
	}
	ic := repository.InsuranceCase{ID: uuid.New(), LeadID: leadID, Status: domain.InsuranceCaseOpen, HandledByID: &openedBy}
	f.insurance[ic.ID] = ic
	return ic, lead, nil
}

func (f *fakeStore) GetInsuranceCase(_ context.Context, id uuid.UUID) (repository.InsuranceCase, error) {
	ic, ok := f.insurance[id]
	if !ok {
		return repository.InsuranceCase{}, apperr.NotFound("insurance case not found")
	}
	return ic, nil
}

func (f *fakeStore) ApproveInsuranceCase(ctx context.Context, caseID, actorID uuid.UUID, approvalAmount *decimal.Decimal) (repository.InsuranceCase, repository.Lead, error) {
	ic, err := f.GetInsuranceCase(ctx, caseID)
	if err != nil {
		return repository.InsuranceCase{}, repository.Lead{}, err
	}
	if ic.Status != domain.InsuranceCaseOpen {
		return repository.InsuranceCase{}, repository.Lead{}, apperr.Conflict("insurance case is already finalized")
	}
	ic.Status = domain.InsuranceCaseApproved
	ic.ApprovalAmount = approvalAmount
	f.insurance[caseID] = ic
	lead := f.leads[ic.LeadID]
	if lead.PipelineStage != domain.PipelineStageInsurance {
		return repository.InsuranceCase{}, repository.Lead{}, apperr.Conflict("lead is not in the insurance pipeline stage")
	}
	lead.PipelineStage = domain.PipelineStagePL
	f.leads[lead.ID] = lead
	return ic, lead, nil
}

func (f *fakeStore) RejectInsuranceCase(ctx context.Context, caseID, actorID uuid.UUID) (repository.InsuranceCase, error) {
	ic, err := f.GetInsuranceCase(ctx, caseID)
	if err != nil {
		return repository.InsuranceCase{}, err
	}
	if ic.Status != domain.InsuranceCaseOpen {
		return repository.InsuranceCase{}, apperr.Conflict("insurance case is already finalized")
	}
	ic.Status = domain.InsuranceCaseRejected
	f.insurance[caseID] = ic
	return ic, nil
}

// fakeAuthz mirrors the identity service's access rules closely enough for
// these tests: admins and insurance heads see everything, BDs only their
// own leads.
type fakeAuthz struct {
	denied map[string]bool
}

func (f *fakeAuthz) HasPermission(_ context.Context, actor identity.Actor, capability string) (bool, error) {
	if f.denied[actor.Role+"/"+capability] {
		return false, nil
	}
	return true, nil
}

func (f *fakeAuthz) CanAccessLead(_ context.Context, actor identity.Actor, assignedBDID *uuid.UUID) (bool, error) {
	if actor.Role == identity.RoleAdmin || actor.Role == identity.RoleInsuranceHead || actor.Role == identity.RoleInsuranceExec {
		return true, nil
	}
	if actor.Role == identity.RoleBD {
		return assignedBDID != nil && *assignedBDID == actor.ID, nil
	}
	return false, nil
}

type captureBus struct {
	published []events.Event
}

func (b *captureBus) Publish(_ context.Context, e events.Event)          { b.published = append(b.published, e) }
func (b *captureBus) PublishSync(_ context.Context, e events.Event) error {
	b.published = append(b.published, e)
	return nil
}
func (b *captureBus) Subscribe(string, events.Handler) {}

func (b *captureBus) names() []string {
	var out []string
	for _, e := range b.published {
		out = append(out, e.EventName())
	}
	return out
}

func newTestService() (*Service, *fakeStore, *captureBus) {
	store := newFakeStore()
	bus := &captureBus{}
	return New(store, &fakeAuthz{}, bus), store, bus
}

func admin() identity.Actor {
	return identity.Actor{ID: uuid.New(), Role: identity.RoleAdmin}
}

func seedLead(t *testing.T, svc *Service, store *fakeStore, stage string) repository.Lead {
	t.Helper()
	lead, err := store.CreateLead(context.Background(), repository.CreateLeadParams{
		PatientName: "Asha Rao", PatientPhone: "+919876543210", CreatedBy: uuid.New(),
	})
	if err != nil {
		t.Fatalf("seed lead: %v", err)
	}
	lead.CaseStage = stage
	store.leads[lead.ID] = lead
	return lead
}

func TestMarkDischargeFromAdmitted(t *testing.T) {
	svc, store, bus := newTestService()
	lead := seedLead(t, svc, store, domain.CaseStageAdmitted)

	resp, err := svc.MarkDischarge(context.Background(), admin(), lead.ID)
	if err != nil {
		t.Fatalf("MarkDischarge: %v", err)
	}
	if resp.CaseStage != domain.CaseStageDischarged {
		t.Fatalf("case stage = %s, want DISCHARGED", resp.CaseStage)
	}
	if resp.PipelineStage != domain.PipelineStageCompleted {
		t.Fatalf("pipeline stage = %s, want COMPLETED", resp.PipelineStage)
	}
	names := bus.names()
	if len(names) != 2 || names[0] != "cases.stage.changed" || names[1] != "cases.discharged" {
		t.Fatalf("published events = %v", names)
	}
}

func TestMarkDischargeRejectedBeforeInitiation(t *testing.T) {
	svc, store, bus := newTestService()
	lead := seedLead(t, svc, store, domain.CaseStageKYPPending)

	_, err := svc.MarkDischarge(context.Background(), admin(), lead.ID)
	if apperr.GetKind(err) != apperr.KindConflict {
		t.Fatalf("error kind = %v, want conflict (err: %v)", apperr.GetKind(err), err)
	}
	got := store.leads[lead.ID]
	if got.CaseStage != domain.CaseStageKYPPending {
		t.Fatalf("case stage mutated to %s on rejected discharge", got.CaseStage)
	}
	if len(bus.published) != 0 {
		t.Fatalf("events published on rejected discharge: %v", bus.names())
	}
}

func TestMarkLostIsNotIdempotent(t *testing.T) {
	svc, store, bus := newTestService()
	lead := seedLead(t, svc, store, domain.CaseStageKYPComplete)
	actor := admin()

	req := transport.MarkLostRequest{Reason: domain.LostReasonGhosted}
	if _, err := svc.MarkLost(context.Background(), actor, lead.ID, req); err != nil {
		t.Fatalf("first MarkLost: %v", err)
	}
	_, err := svc.MarkLost(context.Background(), actor, lead.ID, req)
	if apperr.GetKind(err) != apperr.KindConflict {
		t.Fatalf("second MarkLost kind = %v, want conflict", apperr.GetKind(err))
	}
	if n := len(bus.published); n != 1 {
		t.Fatalf("published %d events, want 1", n)
	}
	if bus.published[0].EventName() != "cases.lead.lost" {
		t.Fatalf("event = %s", bus.published[0].EventName())
	}
}

func TestMarkLostUnknownReason(t *testing.T) {
	svc, store, _ := newTestService()
	lead := seedLead(t, svc, store, domain.CaseStageNewLead)

	_, err := svc.MarkLost(context.Background(), admin(), lead.ID, transport.MarkLostRequest{Reason: "WEATHER"})
	if apperr.GetKind(err) != apperr.KindValidation {
		t.Fatalf("error kind = %v, want validation", apperr.GetKind(err))
	}
}

func TestMarkLostComposesReasonDetail(t *testing.T) {
	svc, store, _ := newTestService()
	lead := seedLead(t, svc, store, domain.CaseStageNewLead)

	resp, err := svc.MarkLost(context.Background(), admin(), lead.ID, transport.MarkLostRequest{
		Reason: domain.LostReasonOther, Detail: "moved to another city",
	})
	if err != nil {
		t.Fatalf("MarkLost: %v", err)
	}
	if resp.LostReason == nil || *resp.LostReason != "Other: moved to another city" {
		t.Fatalf("lost reason = %v", resp.LostReason)
	}
}

func TestAdvanceCaseStageRejectsSkip(t *testing.T) {
	svc, store, bus := newTestService()
	lead := seedLead(t, svc, store, domain.CaseStageNewLead)

	_, err := svc.AdvanceCaseStage(context.Background(), admin(), lead.ID, transport.AdvanceStageRequest{
		ToStage: domain.CaseStageKYPComplete,
	})
	if apperr.GetKind(err) != apperr.KindConflict {
		t.Fatalf("error kind = %v, want conflict", apperr.GetKind(err))
	}
	if len(bus.published) != 0 {
		t.Fatalf("events published on rejected advance: %v", bus.names())
	}
}

func TestAdvanceCaseStageUnknownStage(t *testing.T) {
	svc, store, _ := newTestService()
	lead := seedLead(t, svc, store, domain.CaseStageNewLead)

	_, err := svc.AdvanceCaseStage(context.Background(), admin(), lead.ID, transport.AdvanceStageRequest{ToStage: "BOGUS"})
	if apperr.GetKind(err) != apperr.KindValidation {
		t.Fatalf("error kind = %v, want validation", apperr.GetKind(err))
	}
}

func TestBDCannotTouchAnotherBDsLead(t *testing.T) {
	svc, store, bus := newTestService()
	owner := uuid.New()
	lead, err := store.CreateLead(context.Background(), repository.CreateLeadParams{
		PatientName: "Asha Rao", PatientPhone: "+919876543210", AssignedBDID: &owner, CreatedBy: owner,
	})
	if err != nil {
		t.Fatalf("seed lead: %v", err)
	}

	other := identity.Actor{ID: uuid.New(), Role: identity.RoleBD}
	if _, err := svc.GetLead(context.Background(), other, lead.ID); apperr.GetKind(err) != apperr.KindForbidden {
		t.Fatalf("GetLead kind = %v, want forbidden", apperr.GetKind(err))
	}
	_, err = svc.AdvanceCaseStage(context.Background(), other, lead.ID, transport.AdvanceStageRequest{ToStage: domain.CaseStageKYPPending})
	if apperr.GetKind(err) != apperr.KindForbidden {
		t.Fatalf("AdvanceCaseStage kind = %v, want forbidden", apperr.GetKind(err))
	}
	if got := store.leads[lead.ID].CaseStage; got != domain.CaseStageNewLead {
		t.Fatalf("case stage mutated to %s", got)
	}
	if len(bus.published) != 0 {
		t.Fatalf("events published on forbidden call: %v", bus.names())
	}
}

func TestListLeadsScopesBDToOwnBook(t *testing.T) {
	svc, store, _ := newTestService()
	bd := identity.Actor{ID: uuid.New(), Role: identity.RoleBD}
	ctx := context.Background()
	store.CreateLead(ctx, repository.CreateLeadParams{PatientName: "A", PatientPhone: "+911", AssignedBDID: &bd.ID, CreatedBy: bd.ID})
	otherBD := uuid.New()
	store.CreateLead(ctx, repository.CreateLeadParams{PatientName: "B", PatientPhone: "+912", AssignedBDID: &otherBD, CreatedBy: otherBD})

	resp, err := svc.ListLeads(ctx, bd, repository.LeadFilter{})
	if err != nil {
		t.Fatalf("ListLeads: %v", err)
	}
	if resp.Total != 1 {
		t.Fatalf("BD sees %d leads, want 1", resp.Total)
	}
}

func TestKYPAndPreAuthHappyPath(t *testing.T) {
	svc, store, bus := newTestService()
	actor := admin()
	ctx := context.Background()
	lead := seedLead(t, svc, store, domain.CaseStageNewLead)

	kyp, err := svc.SubmitKYP(ctx, actor, lead.ID)
	if err != nil {
		t.Fatalf("SubmitKYP: %v", err)
	}
	if store.leads[lead.ID].CaseStage != domain.CaseStageKYPPending {
		t.Fatalf("stage after SubmitKYP = %s", store.leads[lead.ID].CaseStage)
	}

	insurer := "Star Health"
	if _, err := svc.AddKYPDetails(ctx, actor, kyp.ID, transport.KYPDetailsRequest{InsurerName: &insurer}); err != nil {
		t.Fatalf("AddKYPDetails: %v", err)
	}
	if store.leads[lead.ID].CaseStage != domain.CaseStageKYPComplete {
		t.Fatalf("stage after AddKYPDetails = %s", store.leads[lead.ID].CaseStage)
	}

	amount := "250000"
	preAuth, err := svc.RaisePreAuth(ctx, actor, kyp.ID, transport.RaisePreAuthRequest{RequestedAmount: &amount})
	if err != nil {
		t.Fatalf("RaisePreAuth: %v", err)
	}
	if store.leads[lead.ID].CaseStage != domain.CaseStagePreAuthRaised {
		t.Fatalf("stage after RaisePreAuth = %s", store.leads[lead.ID].CaseStage)
	}

	if _, err := svc.ApprovePreAuth(ctx, actor, preAuth.ID); err != nil {
		t.Fatalf("ApprovePreAuth: %v", err)
	}
	if store.leads[lead.ID].CaseStage != domain.CaseStagePreAuthDone {
		t.Fatalf("stage after ApprovePreAuth = %s", store.leads[lead.ID].CaseStage)
	}
	if store.kyps[kyp.ID].Status != domain.KYPStatusPreAuthComplete {
		t.Fatalf("kyp status = %s", store.kyps[kyp.ID].Status)
	}

	var sawApproved bool
	for _, name := range bus.names() {
		if name == "cases.preauth.approved" {
			sawApproved = true
		}
	}
	if !sawApproved {
		t.Fatalf("cases.preauth.approved not published; got %v", bus.names())
	}
}

func TestRejectPreAuthKeepsStageAndRecordsLateralHistory(t *testing.T) {
	svc, store, bus := newTestService()
	actor := admin()
	ctx := context.Background()
	lead := seedLead(t, svc, store, domain.CaseStageNewLead)

	kyp, _ := svc.SubmitKYP(ctx, actor, lead.ID)
	insurer := "Star Health"
	svc.AddKYPDetails(ctx, actor, kyp.ID, transport.KYPDetailsRequest{InsurerName: &insurer})
	preAuth, err := svc.RaisePreAuth(ctx, actor, kyp.ID, transport.RaisePreAuthRequest{})
	if err != nil {
		t.Fatalf("RaisePreAuth: %v", err)
	}
	historyBefore := len(store.history[lead.ID])

	resp, err := svc.RejectPreAuth(ctx, actor, preAuth.ID, transport.RejectPreAuthRequest{Reason: "policy lapsed"})
	if err != nil {
		t.Fatalf("RejectPreAuth: %v", err)
	}
	if resp.ApprovalStatus != domain.PreAuthRejected {
		t.Fatalf("approval status = %s", resp.ApprovalStatus)
	}
	if store.leads[lead.ID].CaseStage != domain.CaseStagePreAuthRaised {
		t.Fatalf("case stage moved to %s on rejection", store.leads[lead.ID].CaseStage)
	}

	history := store.history[lead.ID]
	if len(history) != historyBefore+1 {
		t.Fatalf("history rows = %d, want %d", len(history), historyBefore+1)
	}
	last := history[len(history)-1]
	if last.FromStage != domain.CaseStagePreAuthRaised || last.ToStage != domain.CaseStagePreAuthRaised {
		t.Fatalf("lateral row = %s -> %s", last.FromStage, last.ToStage)
	}

	var sawRejected bool
	for _, name := range bus.names() {
		if name == "cases.preauth.rejected" {
			sawRejected = true
		}
	}
	if !sawRejected {
		t.Fatalf("cases.preauth.rejected not published; got %v", bus.names())
	}

	// A rejected pre-auth cannot be decided again.
	if _, err := svc.ApprovePreAuth(ctx, actor, preAuth.ID); apperr.GetKind(err) != apperr.KindConflict {
		t.Fatalf("approve after reject kind = %v, want conflict", apperr.GetKind(err))
	}
}

func TestNewHospitalGuard(t *testing.T) {
	svc, store, _ := newTestService()
	actor := admin()
	ctx := context.Background()
	lead := seedLead(t, svc, store, domain.CaseStageNewLead)

	kyp, _ := svc.SubmitKYP(ctx, actor, lead.ID)
	insurer := "Care Health"
	svc.AddKYPDetails(ctx, actor, kyp.ID, transport.KYPDetailsRequest{InsurerName: &insurer})
	preAuth, err := svc.RaisePreAuth(ctx, actor, kyp.ID, transport.RaisePreAuthRequest{IsNewHospitalRequest: true})
	if err != nil {
		t.Fatalf("RaisePreAuth: %v", err)
	}

	if _, err := svc.ApprovePreAuth(ctx, actor, preAuth.ID); apperr.GetKind(err) != apperr.KindConflict {
		t.Fatalf("approve before raise kind = %v, want conflict", apperr.GetKind(err))
	}
	if _, err := svc.MarkNewHospitalPreAuthRaised(ctx, actor, preAuth.ID); err != nil {
		t.Fatalf("MarkNewHospitalPreAuthRaised: %v", err)
	}
	// Idempotent re-mark.
	if _, err := svc.MarkNewHospitalPreAuthRaised(ctx, actor, preAuth.ID); err != nil {
		t.Fatalf("second MarkNewHospitalPreAuthRaised: %v", err)
	}
	if _, err := svc.ApprovePreAuth(ctx, actor, preAuth.ID); err != nil {
		t.Fatalf("approve after raise: %v", err)
	}
}

func TestApproveInsuranceCaseAdvancesPipeline(t *testing.T) {
	svc, store, bus := newTestService()
	actor := admin()
	ctx := context.Background()
	lead := seedLead(t, svc, store, domain.CaseStagePreAuthDone)

	ic, err := svc.OpenInsuranceCase(ctx, actor, lead.ID)
	if err != nil {
		t.Fatalf("OpenInsuranceCase: %v", err)
	}
	if store.leads[lead.ID].PipelineStage != domain.PipelineStageInsurance {
		t.Fatalf("pipeline = %s after open", store.leads[lead.ID].PipelineStage)
	}

	amount := "180000.50"
	resp, err := svc.ApproveInsuranceCase(ctx, actor, ic.ID, transport.ApproveInsuranceCaseRequest{ApprovalAmount: &amount})
	if err != nil {
		t.Fatalf("ApproveInsuranceCase: %v", err)
	}
	if resp.Status != domain.InsuranceCaseApproved {
		t.Fatalf("status = %s", resp.Status)
	}
	if store.leads[lead.ID].PipelineStage != domain.PipelineStagePL {
		t.Fatalf("pipeline = %s after approve, want PL", store.leads[lead.ID].PipelineStage)
	}

	// Double approval is a conflict and must not publish again.
	published := len(bus.published)
	if _, err := svc.ApproveInsuranceCase(ctx, actor, ic.ID, transport.ApproveInsuranceCaseRequest{}); apperr.GetKind(err) != apperr.KindConflict {
		t.Fatalf("second approve kind = %v, want conflict", apperr.GetKind(err))
	}
	if len(bus.published) != published {
		t.Fatalf("event published on rejected double approval")
	}
}

func TestReopenInsuranceCaseAfterRejection(t *testing.T) {
	svc, store, _ := newTestService()
	actor := admin()
	ctx := context.Background()
	lead := seedLead(t, svc, store, domain.CaseStagePreAuthDone)

	first, err := svc.OpenInsuranceCase(ctx, actor, lead.ID)
	if err != nil {
		t.Fatalf("OpenInsuranceCase: %v", err)
	}
	// A lead carries at most one open case at a time.
	if _, err := svc.OpenInsuranceCase(ctx, actor, lead.ID); apperr.GetKind(err) != apperr.KindConflict {
		t.Fatalf("second open kind = %v, want conflict", apperr.GetKind(err))
	}

	if _, err := svc.RejectInsuranceCase(ctx, actor, first.ID); err != nil {
		t.Fatalf("RejectInsuranceCase: %v", err)
	}
	second, err := svc.OpenInsuranceCase(ctx, actor, lead.ID)
	if err != nil {
		t.Fatalf("open after rejection: %v", err)
	}
	if second.ID == first.ID {
		t.Fatalf("reopen returned the rejected case")
	}
}

func TestCreateLeadDefaultsBDOwnership(t *testing.T) {
	svc, _, _ := newTestService()
	bd := identity.Actor{ID: uuid.New(), Role: identity.RoleBD}

	resp, err := svc.CreateLead(context.Background(), bd, transport.CreateLeadRequest{
		PatientName: "Ravi Kumar", PatientPhone: "9876543210",
	})
	if err != nil {
		t.Fatalf("CreateLead: %v", err)
	}
	if resp.AssignedBDID == nil || *resp.AssignedBDID != bd.ID {
		t.Fatalf("assigned BD = %v, want creator", resp.AssignedBDID)
	}
	if resp.PatientPhone != "+919876543210" {
		t.Fatalf("phone = %s, want normalized E.164", resp.PatientPhone)
	}
}

func TestCapabilityDenied(t *testing.T) {
	store := newFakeStore()
	bus := &captureBus{}
	authz := &fakeAuthz{denied: map[string]bool{identity.RoleEmployee + "/" + identity.CapCasesWrite: true}}
	svc := New(store, authz, bus)

	actor := identity.Actor{ID: uuid.New(), Role: identity.RoleEmployee}
	_, err := svc.CreateLead(context.Background(), actor, transport.CreateLeadRequest{
		PatientName: "Ravi Kumar", PatientPhone: "9876543210",
	})
	if apperr.GetKind(err) != apperr.KindForbidden {
		t.Fatalf("error kind = %v, want forbidden", apperr.GetKind(err))
	}
	if len(store.leads) != 0 {
		t.Fatalf("lead created despite missing capability")
	}
}
