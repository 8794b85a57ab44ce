// Package chat provides the per-lead message thread module.
package chat

import (
	"context"
	"fmt"

	"careops_backend/internal/chat/handler"
	"careops_backend/internal/chat/repository"
	"careops_backend/internal/chat/service"
	"careops_backend/internal/events"
	apphttp "careops_backend/internal/http"
	"careops_backend/platform/logger"
	"careops_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Module struct {
	handler *handler.Handler
	service *service.Service
	log     *logger.Logger
}

// NewModule wires the chat module and subscribes it to pipeline events so
// terminal transitions leave a trace in the lead's thread.
func NewModule(pool *pgxpool.Pool, authz service.Authorizer, leads service.LeadDirectory, bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	svc := service.New(repository.New(pool), authz, leads)
	m := &Module{
		handler: handler.New(svc, val),
		service: svc,
		log:     log,
	}
	bus.Subscribe(events.LeadLost{}.EventName(), events.HandlerFunc(m.onLeadLost))
	return m
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "chat"
}

// Service returns the chat service for cross-module wiring.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts thread routes next to the lead routes they belong to.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	leads := ctx.Protected.Group("/leads")
	leads.GET("/:id/messages", m.handler.ListMessages)
	leads.POST("/:id/messages", m.handler.PostMessage)
}

func (m *Module) onLeadLost(ctx context.Context, event events.Event) error {
	e, ok := event.(events.LeadLost)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}

	body := fmt.Sprintf("Lead marked lost: %s", e.LostReason)
	if err := m.service.PostSystemMessage(ctx, e.LeadID, body); err != nil {
		m.log.Error("failed to post lost-lead system message", "error", err, "leadId", e.LeadID)
		return err
	}
	return nil
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
