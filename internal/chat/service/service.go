// Package service implements the per-lead chat thread.
package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"careops_backend/internal/chat/repository"
	"careops_backend/internal/chat/transport"
	"careops_backend/internal/identity"
	"careops_backend/platform/apperr"
)

const op = "chat.service"

// Store is the persistence surface the service needs.
type Store interface {
	Create(ctx context.Context, p repository.CreateParams) (repository.Message, error)
	ListByLead(ctx context.Context, leadID uuid.UUID) ([]repository.Message, error)
}

// Authorizer answers capability and lead-scoping questions.
type Authorizer interface {
	HasPermission(ctx context.Context, actor identity.Actor, capability string) (bool, error)
	CanAccessLead(ctx context.Context, actor identity.Actor, assignedBDID *uuid.UUID) (bool, error)
}

// LeadDirectory resolves the BD owning a lead so thread access can be
// scoped the same way the lead itself is.
type LeadDirectory interface {
	GetLeadOwner(ctx context.Context, leadID uuid.UUID) (*uuid.UUID, error)
}

type Service struct {
	store Store
	authz Authorizer
	leads LeadDirectory
}

func New(store Store, authz Authorizer, leads LeadDirectory) *Service {
	return &Service{store: store, authz: authz, leads: leads}
}

func (s *Service) requireThreadAccess(ctx context.Context, actor identity.Actor, leadID uuid.UUID, capability string) error {
	allowed, err := s.authz.HasPermission(ctx, actor, capability)
	if err != nil {
		return err
	}
	if !allowed {
		return apperr.Forbidden("you do not have permission to perform this action").WithOp(op)
	}

	owner, err := s.leads.GetLeadOwner(ctx, leadID)
	if err != nil {
		return err
	}
	allowed, err = s.authz.CanAccessLead(ctx, actor, owner)
	if err != nil {
		return err
	}
	if !allowed {
		return apperr.Forbidden("you do not have access to this lead").WithOp(op)
	}
	return nil
}

// PostMessage appends a user message to a lead's thread.
func (s *Service) PostMessage(ctx context.Context, actor identity.Actor, leadID uuid.UUID, req transport.PostMessageRequest) (transport.MessageResponse, error) {
	if err := s.requireThreadAccess(ctx, actor, leadID, identity.CapCasesWrite); err != nil {
		return transport.MessageResponse{}, err
	}

	body := strings.TrimSpace(req.Body)
	if body == "" {
		return transport.MessageResponse{}, apperr.Validation("message body is required").WithOp(op)
	}

	authorID := actor.ID
	msg, err := s.store.Create(ctx, repository.CreateParams{
		LeadID:     leadID,
		AuthorID:   &authorID,
		AuthorType: repository.AuthorTypeUser,
		Body:       body,
	})
	if err != nil {
		return transport.MessageResponse{}, err
	}
	return transport.ToMessageResponse(msg), nil
}

// PostSystemMessage appends a message authored by the pipeline itself.
// It bypasses actor checks because it runs from event subscribers, not
// HTTP requests.
func (s *Service) PostSystemMessage(ctx context.Context, leadID uuid.UUID, body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return apperr.Validation("message body is required").WithOp(op)
	}
	_, err := s.store.Create(ctx, repository.CreateParams{
		LeadID:     leadID,
		AuthorType: repository.AuthorTypeSystem,
		Body:       body,
	})
	return err
}

// ListMessages returns a lead's thread oldest first.
func (s *Service) ListMessages(ctx context.Context, actor identity.Actor, leadID uuid.UUID) (transport.MessageListResponse, error) {
	if err := s.requireThreadAccess(ctx, actor, leadID, identity.CapCasesRead); err != nil {
		return transport.MessageListResponse{}, err
	}
	messages, err := s.store.ListByLead(ctx, leadID)
	if err != nil {
		return transport.MessageListResponse{}, err
	}
	return transport.ToMessageListResponse(messages), nil
}
