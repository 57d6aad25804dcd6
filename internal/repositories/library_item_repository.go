package repositories

import (
	"context"

	"mediashelf/internal/models"
)

// LibraryItemRepository defines the interface for library item data access.
// Every method except Create is scoped to ownerID; rows of other owners are
// invisible and untouchable.
type LibraryItemRepository interface {
	Create(ctx context.Context, item *models.LibraryItem) error
	GetByID(ctx context.Context, id, ownerID uint) (*models.LibraryItem, error)
	ListByOwner(ctx context.Context, ownerID uint) ([]models.LibraryItem, error)
	// Update writes the mutable fields of item to the row matching item.ID
	// and item.OwnerID and reports how many rows matched.
	Update(ctx context.Context, item *models.LibraryItem) (int64, error)
	Delete(ctx context.Context, id, ownerID uint) (int64, error)
}
