package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"mediashelf/internal/models"
	"mediashelf/internal/repositories"
)

// AppUserService maps identity provider accounts to internal app users,
// provisioning them just in time.
type AppUserService struct {
	repo repositories.AppUserRepository
}

// NewAppUserService creates a new AppUserService.
func NewAppUserService(repo repositories.AppUserRepository) *AppUserService {
	return &AppUserService{repo: repo}
}

// EnsureAppUser returns the app user id for identity's email, creating the
// row on first sight. Concurrent first calls for one email converge on a
// single row through the unique email index.
func (s *AppUserService) EnsureAppUser(ctx context.Context, identity *models.Identity) (uint, error) {
	if identity == nil {
		return 0, ErrUnauthenticated
	}
	email := normalizeEmail(identity.Email)
	if email == "" {
		return 0, ErrUnauthenticated
	}

	existing, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return 0, &StoreError{Op: "lookup app user", Err: err}
	}

	user, err := s.repo.CreateIfAbsent(ctx, &models.AppUser{
		Email:     email,
		Name:      optionalString(identity.Name),
		AvatarURL: optionalString(identity.AvatarURL),
	})
	if err != nil {
		return 0, &StoreError{Op: "provision app user", Err: err}
	}
	slog.InfoContext(ctx, "app user resolved on first sight", "app_user_id", user.ID)
	return user.ID, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
