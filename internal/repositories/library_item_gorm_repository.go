package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mediashelf/internal/models"

	"gorm.io/gorm"
)

// GORMLibraryItemRepository is a GORM implementation of LibraryItemRepository.
type GORMLibraryItemRepository struct {
	db *gorm.DB
}

// NewGORMLibraryItemRepository creates a new instance of GORMLibraryItemRepository.
func NewGORMLibraryItemRepository(db *gorm.DB) *GORMLibraryItemRepository {
	return &GORMLibraryItemRepository{
		db: db,
	}
}

// Create inserts a new library item.
func (r *GORMLibraryItemRepository) Create(ctx context.Context, item *models.LibraryItem) error {
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return fmt.Errorf("failed to create library item: %w", err)
	}
	return nil
}

// GetByID retrieves a single library item owned by ownerID.
func (r *GORMLibraryItemRepository) GetByID(ctx context.Context, id, ownerID uint) (*models.LibraryItem, error) {
	var item models.LibraryItem
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, ownerID).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("library item %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get library item %d: %w", id, err)
	}
	return &item, nil
}

// ListByOwner returns the owner's items, most recently created first.
func (r *GORMLibraryItemRepository) ListByOwner(ctx context.Context, ownerID uint) ([]models.LibraryItem, error) {
	items := []models.LibraryItem{}
	err := r.db.WithContext(ctx).
		Where("user_id = ?", ownerID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list library items for owner %d: %w", ownerID, err)
	}
	return items, nil
}

// Update overwrites every mutable column. Nil optional fields are written as NULL.
func (r *GORMLibraryItemRepository) Update(ctx context.Context, item *models.LibraryItem) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.LibraryItem{}).
		Where("id = ? AND user_id = ?", item.ID, item.OwnerID).
		Updates(map[string]any{
			"type":               item.MediaType,
			"title":              item.Title,
			"status":             item.Status,
			"year":               item.Year,
			"platform_or_author": item.PlatformOrAuthor,
			"progress":           item.Progress,
			"rating":             item.Rating,
			"cover_url":          item.CoverURL,
			"review":             item.Review,
			"updated_at":         time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to update library item %d: %w", item.ID, res.Error)
	}
	return res.RowsAffected, nil
}

// Delete permanently removes the item when it belongs to ownerID.
func (r *GORMLibraryItemRepository) Delete(ctx context.Context, id, ownerID uint) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, ownerID).
		Delete(&models.LibraryItem{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete library item %d: %w", id, res.Error)
	}
	return res.RowsAffected, nil
}
