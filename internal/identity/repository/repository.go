package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"careops_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opGetByEmail       = "identity.repository.get_by_email"
	opGetByID          = "identity.repository.get_by_id"
	opCreate           = "identity.repository.create"
	opList             = "identity.repository.list"
	opListByRole       = "identity.repository.list_by_role"
	opRoleCapabilities = "identity.repository.role_capabilities"
)

// User is the database model for an application user.
type User struct {
	ID           uuid.UUID
	Email        string
	Name         string
	PasswordHash string
	Role         string
	IsActive     bool
	CreatedAt    time.Time
}

// CreateUserParams contains fields for inserting a user.
type CreateUserParams struct {
	Email        string
	Name         string
	PasswordHash string
	Role         string
}

// Repository provides database operations for users and role capabilities.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new identity repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userSelectCols = `id, email, name, password_hash, role, is_active, created_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt)
	return u, err
}

// GetByEmail fetches an active user by email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `
		SELECT `+userSelectCols+`
		FROM users
		WHERE email = $1 AND is_active = TRUE
	`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, apperr.NotFound("user not found").WithOp(opGetByEmail)
	}
	if err != nil {
		return User{}, apperr.Internalf("get user by email failed: %v", err).WithOp(opGetByEmail)
	}
	return u, nil
}

// GetByID fetches a user by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `
		SELECT `+userSelectCols+`
		FROM users
		WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, apperr.NotFound("user not found").WithOp(opGetByID)
	}
	if err != nil {
		return User{}, apperr.Internalf("get user failed: %v", err).WithOp(opGetByID)
	}
	return u, nil
}

// Create inserts a new user.
func (r *Repository) Create(ctx context.Context, p CreateUserParams) (User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `
		INSERT INTO users (email, name, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING `+userSelectCols+`
	`, p.Email, p.Name, p.PasswordHash, p.Role))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, apperr.Conflict("a user with this email already exists").WithOp(opCreate)
		}
		return User{}, apperr.Internalf("create user failed: %v", err).WithOp(opCreate)
	}
	return u, nil
}

// List returns all users ordered by creation time.
func (r *Repository) List(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+userSelectCols+`
		FROM users
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, apperr.Internalf("list users failed: %v", err).WithOp(opList)
	}
	defer rows.Close()
	return collectUsers(rows, opList)
}

// ListByRole returns all active users holding the given role.
// Used for notification fan-out (e.g. every INSURANCE_HEAD on discharge).
func (r *Repository) ListByRole(ctx context.Context, role string) ([]User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+userSelectCols+`
		FROM users
		WHERE role = $1 AND is_active = TRUE
		ORDER BY created_at
	`, role)
	if err != nil {
		return nil, apperr.Internalf("list users by role failed: %v", err).WithOp(opListByRole)
	}
	defer rows.Close()
	return collectUsers(rows, opListByRole)
}

func collectUsers(rows pgx.Rows, op string) ([]User, error) {
	items := make([]User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, apperr.Internalf("scan user failed: %v", err).WithOp(op)
		}
		items = append(items, u)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internalf("iterate users failed: %v", err).WithOp(op)
	}
	return items, nil
}

// RoleCapabilities returns the capability strings granted to a role.
func (r *Repository) RoleCapabilities(ctx context.Context, role string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT capability
		FROM role_capabilities
		WHERE role = $1
	`, role)
	if err != nil {
		return nil, apperr.Internalf("load role capabilities failed: %v", err).WithOp(opRoleCapabilities)
	}
	defer rows.Close()

	caps := make([]string, 0)
	for rows.Next() {
		var capability string
		if err := rows.Scan(&capability); err != nil {
			return nil, apperr.Internalf("scan capability failed: %v", err).WithOp(opRoleCapabilities)
		}
		caps = append(caps, capability)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(fmt.Sprintf("iterate capabilities failed: %v", err)).WithOp(opRoleCapabilities)
	}
	return caps, nil
}
