package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"careops_backend/internal/identity"
	"careops_backend/internal/identity/repository"
	"careops_backend/internal/identity/transport"
	"careops_backend/platform/apperr"
	"careops_backend/platform/config"
	"careops_backend/platform/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

const permissionCachePrefix = "careops:capabilities:"

// Service implements authentication and the capability checks consumed by
// every other bounded context.
type Service struct {
	repo     *repository.Repository
	cfg      config.AuthConfig
	cache    *redis.Client // nil disables caching
	cacheTTL time.Duration
	log      *logger.Logger
}

// New creates the identity service. The redis client is optional; without it
// every capability check reads the role table directly.
func New(repo *repository.Repository, cfg config.AuthConfig, cache *redis.Client, cacheTTL time.Duration, log *logger.Logger) *Service {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &Service{repo: repo, cfg: cfg, cache: cache, cacheTTL: cacheTTL, log: log}
}

// Login verifies credentials and returns a signed access token.
func (s *Service) Login(ctx context.Context, req transport.LoginRequest) (transport.LoginResponse, error) {
	user, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return transport.LoginResponse{}, apperr.Unauthorized("invalid credentials")
		}
		return transport.LoginResponse{}, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return transport.LoginResponse{}, apperr.Unauthorized("invalid credentials")
	}

	token, expiresAt, err := s.issueAccessToken(user)
	if err != nil {
		return transport.LoginResponse{}, apperr.Wrap(err, apperr.KindInternal, "failed to issue token")
	}

	return transport.LoginResponse{
		AccessToken: token,
		ExpiresAt:   expiresAt.UTC().Format(time.RFC3339),
		User:        toUserResponse(user),
	}, nil
}

func (s *Service) issueAccessToken(user repository.User) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.GetAccessTokenTTL())
	claims := jwt.MapClaims{
		"sub":  user.ID.String(),
		"role": user.Role,
		"type": "access",
		"iat":  now.Unix(),
		"exp":  expiresAt.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.GetJWTAccessSecret()))
	return token, expiresAt, err
}

// HasPermission reports whether the actor's role grants the capability.
// Role capability sets are cached in Redis with a short TTL.
func (s *Service) HasPermission(ctx context.Context, actor identity.Actor, capability string) (bool, error) {
	caps, err := s.capabilitiesForRole(ctx, actor.Role)
	if err != nil {
		return false, err
	}
	for _, c := range caps {
		if c == capability {
			return true, nil
		}
	}
	return false, nil
}

// CanAccessLead reports whether the actor may act on a lead owned by the
// given BD. Admins always may; a BD only on their own leads.
func (s *Service) CanAccessLead(ctx context.Context, actor identity.Actor, assignedBDID *uuid.UUID) (bool, error) {
	if actor.Role == identity.RoleAdmin || actor.Role == identity.RoleInsuranceHead {
		return true, nil
	}
	if assignedBDID != nil && *assignedBDID == actor.ID {
		return true, nil
	}
	return false, nil
}

func (s *Service) capabilitiesForRole(ctx context.Context, role string) ([]string, error) {
	if role == "" {
		return nil, nil
	}

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, permissionCachePrefix+role).Result(); err == nil {
			var caps []string
			if json.Unmarshal([]byte(cached), &caps) == nil {
				return caps, nil
			}
		}
	}

	caps, err := s.repo.RoleCapabilities(ctx, role)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if encoded, err := json.Marshal(caps); err == nil {
			if err := s.cache.Set(ctx, permissionCachePrefix+role, encoded, s.cacheTTL).Err(); err != nil && s.log != nil {
				s.log.Warn("permission cache write failed", "role", role, "error", err)
			}
		}
	}

	return caps, nil
}

// ListUserIDsByRole returns the IDs of all active holders of a role.
// Notification fan-out uses this for role-addressed messages.
func (s *Service) ListUserIDsByRole(ctx context.Context, role string) ([]uuid.UUID, error) {
	users, err := s.repo.ListByRole(ctx, role)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids, nil
}

// GetProfile returns the user behind an actor.
func (s *Service) GetProfile(ctx context.Context, userID uuid.UUID) (transport.UserResponse, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return transport.UserResponse{}, err
	}
	return toUserResponse(user), nil
}

// CreateUser provisions a new user (admin only, enforced by the route).
func (s *Service) CreateUser(ctx context.Context, req transport.CreateUserRequest) (transport.UserResponse, error) {
	if !identity.IsKnownRole(req.Role) {
		return transport.UserResponse{}, apperr.Validation("unknown role: " + req.Role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return transport.UserResponse{}, apperr.Wrap(err, apperr.KindInternal, "failed to hash password")
	}

	user, err := s.repo.Create(ctx, repository.CreateUserParams{
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: string(hash),
		Role:         req.Role,
	})
	if err != nil {
		return transport.UserResponse{}, err
	}
	return toUserResponse(user), nil
}

// ListUsers returns all users (admin only, enforced by the route).
func (s *Service) ListUsers(ctx context.Context) ([]transport.UserResponse, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]transport.UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	return out, nil
}

func toUserResponse(u repository.User) transport.UserResponse {
	return transport.UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
	}
}
