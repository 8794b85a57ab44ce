// Package hr provides attendance, leave and ticket workflows as a module.
package hr

import (
	"careops_backend/internal/events"
	"careops_backend/internal/hr/handler"
	"careops_backend/internal/hr/repository"
	"careops_backend/internal/hr/service"
	apphttp "careops_backend/internal/http"
	"careops_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule wires the HR module. The punch provider may be nil on API
// nodes; only the worker runs the attendance sync.
func NewModule(pool *pgxpool.Pool, authz service.Authorizer, bus events.Bus, punches service.PunchProvider, val *validator.Validator) *Module {
	svc := service.New(repository.New(pool), authz, bus, punches)
	return &Module{
		handler: handler.New(svc, val),
		service: svc,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "hr"
}

// Service returns the HR service for cross-module and worker wiring.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts HR routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	hr := ctx.Protected.Group("/hr")

	hr.GET("/attendance", m.handler.MyAttendance)
	hr.GET("/attendance/:id", m.handler.EmployeeAttendance)

	hr.POST("/leave", m.handler.ApplyLeave)
	hr.GET("/leave", m.handler.MyLeave)
	hr.GET("/leave/all", m.handler.ListLeave)
	hr.POST("/leave/:id/approve", m.handler.ApproveLeave)
	hr.POST("/leave/:id/reject", m.handler.RejectLeave)

	hr.POST("/tickets", m.handler.OpenTicket)
	hr.GET("/tickets", m.handler.ListTickets)
	hr.GET("/tickets/assigned", m.handler.MyTickets)
	hr.POST("/tickets/:id/assign", m.handler.AssignTicket)
	hr.POST("/tickets/:id/close", m.handler.CloseTicket)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
