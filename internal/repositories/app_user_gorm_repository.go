package repositories

import (
	"context"
	"errors"
	"fmt"

	"mediashelf/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GORMAppUserRepository is a GORM implementation of AppUserRepository.
type GORMAppUserRepository struct {
	db *gorm.DB
}

// NewGORMAppUserRepository creates a new instance of GORMAppUserRepository.
func NewGORMAppUserRepository(db *gorm.DB) *GORMAppUserRepository {
	return &GORMAppUserRepository{
		db: db,
	}
}

// GetByEmail retrieves an app user by email.
func (r *GORMAppUserRepository) GetByEmail(ctx context.Context, email string) (*models.AppUser, error) {
	var user models.AppUser
	if err := r.db.WithContext(ctx).First(&user, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("app user with email %s: %w", email, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get app user by email %s: %w", email, err)
	}
	return &user, nil
}

// CreateIfAbsent inserts the user, deferring to the unique email index when a
// concurrent request already created the row.
func (r *GORMAppUserRepository) CreateIfAbsent(ctx context.Context, user *models.AppUser) (*models.AppUser, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "email"}}, DoNothing: true}).
		Create(user)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to create app user %s: %w", user.Email, res.Error)
	}
	if res.RowsAffected == 1 && user.ID != 0 {
		return user, nil
	}
	return r.GetByEmail(ctx, user.Email)
}
