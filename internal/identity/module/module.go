// Package module wires the identity bounded context. It lives below the
// identity root so the shared Actor and capability types stay importable
// by every other context without dragging in handler or service wiring.
package module

import (
	"careops_backend/internal/identity/handler"
	"careops_backend/internal/identity/repository"
	"careops_backend/internal/identity/service"
	apphttp "careops_backend/internal/http"
	"careops_backend/platform/config"
	"careops_backend/platform/logger"
	"careops_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Config combines the config interfaces the identity module needs.
type Config interface {
	config.AuthConfig
	config.RedisConfig
}

// Module is the identity bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// New creates and initializes the identity module with all its dependencies.
func New(pool *pgxpool.Pool, cfg Config, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)

	var cache *redis.Client
	if cfg.GetRedisURL() != "" {
		if opt, err := redis.ParseURL(cfg.GetRedisURL()); err == nil {
			cache = redis.NewClient(opt)
		} else {
			log.Warn("invalid REDIS_URL, permission caching disabled", "error", err)
		}
	}

	svc := service.New(repo, cfg, cache, cfg.GetPermissionCacheTTL(), log)
	h := handler.New(svc, val)

	return &Module{handler: h, service: svc}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "identity"
}

// Service returns the identity service for cross-module wiring.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts identity routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	auth := ctx.V1.Group("/auth")
	auth.Use(ctx.AuthRateLimiter.RateLimit())
	auth.POST("/login", m.handler.Login)

	ctx.Protected.GET("/me", m.handler.Me)

	ctx.Admin.POST("/users", m.handler.CreateUser)
	ctx.Admin.GET("/users", m.handler.ListUsers)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
