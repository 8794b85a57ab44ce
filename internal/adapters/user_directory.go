// Package adapters contains thin cross-module glue so each bounded
// context depends only on its own interfaces.
package adapters

import (
	"context"

	"github.com/google/uuid"

	identityservice "careops_backend/internal/identity/service"
)

// IdentityUserDirectory adapts the identity service to the notification
// module's recipient lookups.
type IdentityUserDirectory struct {
	svc *identityservice.Service
}

func NewIdentityUserDirectory(svc *identityservice.Service) *IdentityUserDirectory {
	return &IdentityUserDirectory{svc: svc}
}

func (d *IdentityUserDirectory) ListUserIDsByRole(ctx context.Context, role string) ([]uuid.UUID, error) {
	return d.svc.ListUserIDsByRole(ctx, role)
}

func (d *IdentityUserDirectory) GetUserEmail(ctx context.Context, userID uuid.UUID) (string, error) {
	profile, err := d.svc.GetProfile(ctx, userID)
	if err != nil {
		return "", err
	}
	return profile.Email, nil
}
