// Package ledger provides the ledger bounded context module.
package ledger

import (
	"careops_backend/internal/events"
	apphttp "careops_backend/internal/http"
	"careops_backend/internal/ledger/handler"
	"careops_backend/internal/ledger/repository"
	"careops_backend/internal/ledger/service"
	"careops_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the ledger bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule wires the ledger against the shared pool, the identity module's
// authorizer and the event bus.
func NewModule(pool *pgxpool.Pool, authz service.Authorizer, bus events.Bus, val *validator.Validator) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, authz, bus)
	h := handler.New(svc, val)
	return &Module{handler: h, service: svc}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "ledger"
}

// RegisterRoutes mounts ledger routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ledger := ctx.Protected.Group("/ledger")

	ledger.POST("/modes", m.handler.CreatePaymentMode)
	ledger.GET("/modes", m.handler.ListPaymentModes)

	ledger.POST("/entries", m.handler.CreateEntry)
	ledger.GET("/entries", m.handler.ListEntries)
	ledger.GET("/entries/:id", m.handler.GetEntry)
	ledger.GET("/entries/:id/audit", m.handler.AuditLog)
	ledger.POST("/entries/:id/approve", m.handler.ApproveEntry)
	ledger.POST("/entries/:id/reject", m.handler.RejectEntry)
	ledger.DELETE("/entries/:id", m.handler.SoftDeleteEntry)
	ledger.POST("/entries/:id/edit-requests", m.handler.RequestEdit)

	ledger.POST("/edit-requests/:id/approve", m.handler.ApproveEditRequest)
	ledger.POST("/edit-requests/:id/reject", m.handler.RejectEditRequest)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
