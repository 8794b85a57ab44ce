// Package service implements the ledger operations. Writing entries needs
// finance:write; every decision that moves or could move money needs
// finance:approve. Balance arithmetic itself lives in the domain package
// and executes inside repository transactions.
package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"careops_backend/internal/events"
	"careops_backend/internal/identity"
	"careops_backend/internal/ledger/domain"
	"careops_backend/internal/ledger/repository"
	"careops_backend/internal/ledger/transport"
	"careops_backend/platform/apperr"
)

// Store is the persistence surface the service depends on. The repository
// implements it; tests substitute an in-memory fake.
type Store interface {
	CreatePaymentMode(ctx context.Context, name string, openingBalance decimal.Decimal) (repository.PaymentMode, error)
	GetPaymentMode(ctx context.Context, id uuid.UUID) (repository.PaymentMode, error)
	ListPaymentModes(ctx context.Context) ([]repository.PaymentMode, error)

	CreateEntry(ctx context.Context, p repository.CreateEntryParams) (repository.Entry, error)
	GetEntry(ctx context.Context, id uuid.UUID) (repository.Entry, error)
	ListEntries(ctx context.Context, f repository.EntryFilter) ([]repository.Entry, error)
	ApproveEntry(ctx context.Context, entryID, actorID uuid.UUID) (repository.Entry, error)
	RejectEntry(ctx context.Context, entryID, actorID uuid.UUID, note *string) (repository.Entry, error)
	SoftDeleteEntry(ctx context.Context, entryID, actorID uuid.UUID, reason string) (repository.Entry, error)
	ListAuditLog(ctx context.Context, entryID uuid.UUID) ([]repository.AuditLog, error)

	RequestEdit(ctx context.Context, entryID uuid.UUID, p repository.EditRequestParams) (repository.EditRequest, error)
	GetEditRequest(ctx context.Context, id uuid.UUID) (repository.EditRequest, error)
	ApproveEditRequest(ctx context.Context, editID, actorID uuid.UUID) (repository.EditRequest, repository.Entry, error)
	RejectEditRequest(ctx context.Context, editID, actorID uuid.UUID) (repository.EditRequest, error)
}

// Authorizer answers capability questions for an actor.
type Authorizer interface {
	HasPermission(ctx context.Context, actor identity.Actor, capability string) (bool, error)
}

type Service struct {
	store Store
	authz Authorizer
	bus   events.Bus
}

func New(store Store, authz Authorizer, bus events.Bus) *Service {
	return &Service{store: store, authz: authz, bus: bus}
}

const op = "ledger.service"

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

func parseAmount(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, apperr.Validation("invalid amount").WithOp(op)
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, apperr.Validation("amount must be positive").WithOp(op)
	}
	return d, nil
}

func parseOptionalID(raw *string) (*uuid.UUID, error) {
	if raw == nil {
		return nil, nil
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		return nil, apperr.Validation("invalid payment mode id").WithOp(op)
	}
	return &id, nil
}

func (s *Service) CreatePaymentMode(ctx context.Context, actor identity.Actor, req transport.CreatePaymentModeRequest) (transport.PaymentModeResponse, error) {
	if err := s.requireCapability(ctx, actor, identity.CapFinanceWrite); err != nil {
		return transport.PaymentModeResponse{}, err
	}

	opening := decimal.Zero
	if req.OpeningBalance != nil {
		d, err := decimal.NewFromString(*req.OpeningBalance)
		if err != nil {
			return transport.PaymentModeResponse{}, apperr.Validation("invalid opening balance").WithOp(op)
		}
		opening = d
	}

	mode, err := s.store.CreatePaymentMode(ctx, req.Name, opening)
	if err != nil {
		return transport.PaymentModeResponse{}, err
	}
	return transport.ToPaymentModeResponse(mode), nil
}

func (s *Service) ListPaymentModes(ctx context.Context, actor identity.Actor) ([]transport.PaymentModeResponse, error) {
	if err := s.requireCapability(ctx, actor, identity.CapFinanceWrite); err != nil {
		return nil, err
	}
	modes, err := s.store.ListPaymentModes(ctx)
	if err != nil {
		return nil, err
	}
	resp := make([]transport.PaymentModeResponse, 0, len(modes))
	for _, m := range modes {
		resp = append(resp, transport.ToPaymentModeResponse(m))
	}
	return resp, nil
}

// CreateEntry records a pending entry. Nothing moves until an approver
// signs off.
func (s *Service) CreateEntry(ctx context.Context, actor identity.Actor, req transport.CreateEntryRequest) (transport.EntryResponse, error) {
	if err := s.requireCapability(ctx, actor, identity.CapFinanceWrite); err != nil {
		return transport.EntryResponse{}, err
	}
	if !domain.IsKnownTransactionType(req.TransactionType) {
		return transport.EntryResponse{}, apperr.Validation("unknown transaction type").WithOp(op)
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		return transport.EntryResponse{}, err
	}
	modeID, err := parseOptionalID(req.PaymentModeID)
	if err != nil {
		return transport.EntryResponse{}, err
	}
	fromID, err := parseOptionalID(req.FromModeID)
	if err != nil {
		return transport.EntryResponse{}, err
	}
	toID, err := parseOptionalID(req.ToModeID)
	if err != nil {
		return transport.EntryResponse{}, err
	}

	movement := domain.Movement{
		Type:       req.TransactionType,
		Amount:     amount,
		ModeID:     modeID,
		FromModeID: fromID,
		ToModeID:   toID,
	}
	if !movement.Valid() {
		return transport.EntryResponse{}, apperr.Validation("transaction does not reference the required payment modes").WithOp(op)
	}

	entry, err := s.store.CreateEntry(ctx, repository.CreateEntryParams{
		TransactionType: req.TransactionType,
		Amount:          amount,
		PaymentModeID:   modeID,
		FromModeID:      fromID,
		ToModeID:        toID,
		Description:     req.Description,
		CreatedByID:     actor.ID,
	})
	if err != nil {
		return transport.EntryResponse{}, err
	}
	return transport.ToEntryResponse(entry), nil
}

func (s *Service) GetEntry(ctx context.Context, actor identity.Actor, entryID uuid.UUID) (transport.EntryResponse, error) {
	if err := s.requireCapability(ctx, actor, identity.CapFinanceWrite); err != nil {
		return transport.EntryResponse{}, err
	}
	entry, err := s.store.GetEntry(ctx, entryID)
	if err != nil {
		return transport.EntryResponse{}, err
	}
	return transport.ToEntryResponse(entry), nil
}

func (s *Service) ListEntries(ctx context.Context, actor identity.Actor, f repository.EntryFilter) (transport.EntryListResponse, error) {
	if err := s.requireCapability(ctx, actor, identity.CapFinanceWrite); err != nil {
		return transport.EntryListResponse{}, err
	}
	entries, err := s.store.ListEntries(ctx, f)
	if err != nil {
		return transport.EntryListResponse{}, err
	}
	resp := transport.EntryListResponse{Entries: make([]transport.EntryResponse, 0, len(entries)), Total: len(entries)}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, transport.ToEntryResponse(e))
	}
	return resp, nil
}

func (s *Service) ListAuditLog(ctx context.Context, actor identity.Actor, entryID uuid.UUID) ([]transport.AuditLogResponse, error) {
	if err := s.requireCapability(ctx, actor, identity.CapFinanceWrite); err != nil {
		return nil, err
	}
	logs, err := s.store.ListAuditLog(ctx, entryID)
	if err != nil {
		return nil, err
	}
	resp := make([]transport.AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		resp = append(resp, transport.ToAuditLogResponse(l))
	}
	return resp, nil
}

func (s *Service) ApproveEntry(ctx context.Context, actor identity.Actor, entryID uuid.UUID) (transport.EntryResponse, error) {
	if err := s.requireCapability(ctx, actor, identity.CapFinanceApprove); err != nil {
		return transport.EntryResponse{}, err
	}
	entry, err := s.store.ApproveEntry(ctx, entryID, actor.ID)
	if err != nil {
		return transport.EntryResponse{}, err
	}
	s.bus.Publish(ctx, events.LedgerEntryApproved{
		BaseEvent:       events.NewBaseEvent(),
		EntryID:         entry.ID,
		SerialNumber:    entry.SerialNumber,
		TransactionType: entry.TransactionType,
		Amount:          entry.Amount.String(),
		CreatedByID:     entry.CreatedByID,
		ActorID:         actor.ID,
	})
	return transport.ToEntryResponse(entry), nil
}

func (s *Service) RejectEntry(ctx context.Context, actor identity.Actor, entryID uuid.UUID, req transport.RejectEntryRequest) (transport.EntryResponse, error) {
	if err := s.requireCapability(ctx, actor, identity.CapFinanceApprove); err != nil {
		return transport.EntryResponse{}, err
	}
	entry, err := s.store.RejectEntry(ctx, entryID, actor.ID, req.Note)
	if err != nil {
		return transport.EntryResponse{}, err
	}
	return transport.ToEntryResponse(entry), nil
}

func (s *Service) SoftDeleteEntry(ctx context.Context, actor identity.Actor, entryID uuid.UUID, req transport.DeleteEntryRequest) (transport.EntryResponse, error) {
	if err := s.requireCapability(ctx, actor, identity.CapFinanceApprove); err != nil {
		return transport.EntryResponse{}, err
	}
	entry, err := s.store.SoftDeleteEntry(ctx, entryID, actor.ID, req.Reason)
	if err != nil {
		return transport.EntryResponse{}, err
	}
	s.bus.Publish(ctx, events.LedgerEntryDeleted{
		BaseEvent:    events.NewBaseEvent(),
		EntryID:      entry.ID,
		SerialNumber: entry.SerialNumber,
		Reason:       req.Reason,
		CreatedByID:  entry.CreatedByID,
		ActorID:      actor.ID,
	})
	return transport.ToEntryResponse(entry), nil
}

func (s *Service) RequestEdit(ctx context.Context, actor identity.Actor, entryID uuid.UUID, req transport.RequestEditRequest) (transport.EditRequestResponse, error) {
	if err := s.requireCapability(ctx, actor, identity.CapFinanceWrite); err != nil {
		return transport.EditRequestResponse{}, err
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		return transport.EditRequestResponse{}, err
	}
	modeID, err := parseOptionalID(req.PaymentModeID)
	if err != nil {
		return transport.EditRequestResponse{}, err
	}
	fromID, err := parseOptionalID(req.FromModeID)
	if err != nil {
		return transport.EditRequestResponse{}, err
	}
	toID, err := parseOptionalID(req.ToModeID)
	if err != nil {
		return transport.EditRequestResponse{}, err
	}

	edit, err := s.store.RequestEdit(ctx, entryID, repository.EditRequestParams{
		Amount:        amount,
		Description:   req.Description,
		PaymentModeID: modeID,
		FromModeID:    fromID,
		ToModeID:      toID,
		RequestedByID: actor.ID,
	})
	if err != nil {
		return transport.EditRequestResponse{}, err
	}
	return transport.ToEditRequestResponse(edit), nil
}

func (s *Service) ApproveEditRequest(ctx context.Context, actor identity.Actor, editID uuid.UUID) (transport.EntryResponse, error) {
	if err := s.requireCapability(ctx, actor, identity.CapFinanceApprove); err != nil {
		return transport.EntryResponse{}, err
	}
	_, entry, err := s.store.ApproveEditRequest(ctx, editID, actor.ID)
	if err != nil {
		return transport.EntryResponse{}, err
	}
	return transport.ToEntryResponse(entry), nil
}

func (s *Service) RejectEditRequest(ctx context.Context, actor identity.Actor, editID uuid.UUID) (transport.EditRequestResponse, error) {
	if err := s.requireCapability(ctx, actor, identity.CapFinanceApprove); err != nil {
		return transport.EditRequestResponse{}, err
	}
	edit, err := s.store.RejectEditRequest(ctx, editID, actor.ID)
	if err != nil {
		return transport.EditRequestResponse{}, err
	}
	return transport.ToEditRequestResponse(edit), nil
}
