// Package cases provides the case pipeline bounded context module.
package cases

import (
	"careops_backend/internal/cases/handler"
	"careops_backend/internal/cases/repository"
	"careops_backend/internal/cases/service"
	"careops_backend/internal/events"
	apphttp "careops_backend/internal/http"
	"careops_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the case pipeline bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule wires the case pipeline against the shared pool, the identity
// module's authorizer and the event bus.
func NewModule(pool *pgxpool.Pool, authz service.Authorizer, bus events.Bus, val *validator.Validator) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, authz, bus)
	h := handler.New(svc, val)
	return &Module{handler: h, service: svc}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "cases"
}

// Service returns the cases service for cross-module wiring.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts case pipeline routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	leads := ctx.Protected.Group("/leads")
	leads.POST("", m.handler.CreateLead)
	leads.GET("", m.handler.ListLeads)
	leads.GET("/:id", m.handler.GetLead)
	leads.GET("/:id/history", m.handler.StageHistory)
	leads.POST("/:id/advance", m.handler.AdvanceStage)
	leads.POST("/:id/discharge", m.handler.MarkDischarge)
	leads.POST("/:id/lost", m.handler.MarkLost)
	leads.POST("/:id/kyp", m.handler.SubmitKYP)
	leads.POST("/:id/insurance-case", m.handler.OpenInsuranceCase)

	kyp := ctx.Protected.Group("/kyp")
	kyp.GET("/:id", m.handler.GetKYP)
	kyp.PATCH("/:id/details", m.handler.AddKYPDetails)
	kyp.POST("/:id/preauth", m.handler.RaisePreAuth)

	preauth := ctx.Protected.Group("/preauth")
	preauth.POST("/:id/new-hospital-raised", m.handler.MarkNewHospitalRaised)
	preauth.POST("/:id/approve", m.handler.ApprovePreAuth)
	preauth.POST("/:id/reject", m.handler.RejectPreAuth)

	insurance := ctx.Protected.Group("/insurance-cases")
	insurance.POST("/:id/approve", m.handler.ApproveInsuranceCase)
	insurance.POST("/:id/reject", m.handler.RejectInsuranceCase)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
