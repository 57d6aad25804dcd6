package repositories

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"mediashelf/internal/models"
)

// MemoryLibraryItemRepository is an in-memory implementation of LibraryItemRepository.
type MemoryLibraryItemRepository struct {
	items  map[uint]models.LibraryItem
	nextID uint
	mu     sync.RWMutex
}

// NewMemoryLibraryItemRepository creates a new instance of MemoryLibraryItemRepository.
func NewMemoryLibraryItemRepository() *MemoryLibraryItemRepository {
	return &MemoryLibraryItemRepository{
		items:  make(map[uint]models.LibraryItem),
		nextID: 1,
	}
}

// Create stores a copy of item and assigns its ID and timestamps.
func (r *MemoryLibraryItemRepository) Create(_ context.Context, item *models.LibraryItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	item.ID = r.nextID
	r.nextID++
	item.CreatedAt = now
	item.UpdatedAt = now
	r.items[item.ID] = *item
	return nil
}

// GetByID returns the item when it exists and belongs to ownerID.
func (r *MemoryLibraryItemRepository) GetByID(_ context.Context, id, ownerID uint) (*models.LibraryItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[id]
	if !ok || item.OwnerID != ownerID {
		return nil, fmt.Errorf("library item %d: %w", id, ErrNotFound)
	}
	return &item, nil
}

// ListByOwner returns the owner's items, newest first.
func (r *MemoryLibraryItemRepository) ListByOwner(_ context.Context, ownerID uint) ([]models.LibraryItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.LibraryItem, 0)
	for _, item := range r.items {
		if item.OwnerID == ownerID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Update replaces the mutable fields of a matching item.
func (r *MemoryLibraryItemRepository) Update(_ context.Context, item *models.LibraryItem) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.items[item.ID]
	if !ok || existing.OwnerID != item.OwnerID {
		return 0, nil
	}
	updated := *item
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = time.Now().UTC()
	r.items[item.ID] = updated
	return 1, nil
}

// Delete removes a matching item.
func (r *MemoryLibraryItemRepository) Delete(_ context.Context, id, ownerID uint) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.items[id]
	if !ok || existing.OwnerID != ownerID {
		return 0, nil
	}
	delete(r.items, id)
	return 1, nil
}

// Len returns the number of stored items across all owners.
func (r *MemoryLibraryItemRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}
