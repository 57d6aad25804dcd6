package repositories

import (
	"context"
	"errors"

	"mediashelf/internal/models"
)

// ErrNotFound is returned (wrapped) when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// AppUserRepository defines the interface for app user data access.
type AppUserRepository interface {
	GetByEmail(ctx context.Context, email string) (*models.AppUser, error)
	// CreateIfAbsent inserts user unless a row with the same email exists and
	// returns whichever row holds that email afterwards.
	CreateIfAbsent(ctx context.Context, user *models.AppUser) (*models.AppUser, error)
}
