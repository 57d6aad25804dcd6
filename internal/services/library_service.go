package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"mediashelf/internal/cache"
	"mediashelf/internal/models"
	"mediashelf/internal/repositories"
	"mediashelf/pkg/rabbitmq"

	"github.com/google/uuid"
)

// AppUserResolver maps an identity to its app user id.
type AppUserResolver interface {
	EnsureAppUser(ctx context.Context, identity *models.Identity) (uint, error)
}

// EventPublisher publishes library change events.
type EventPublisher interface {
	PublishLibraryEvent(ctx context.Context, evt rabbitmq.Event) error
}

// LibraryService is the owner-scoped CRUD surface over library items.
type LibraryService struct {
	items  repositories.LibraryItemRepository
	users  AppUserResolver
	views  cache.ViewCache
	events EventPublisher
}

// NewLibraryService creates a new LibraryService. views and events may be nil.
func NewLibraryService(items repositories.LibraryItemRepository, users AppUserResolver, views cache.ViewCache, events EventPublisher) *LibraryService {
	if views == nil {
		views = cache.Nop{}
	}
	return &LibraryService{
		items:  items,
		users:  users,
		views:  views,
		events: events,
	}
}

func (s *LibraryService) owner(ctx context.Context, caller *models.Identity) (uint, error) {
	if caller == nil {
		return 0, ErrUnauthenticated
	}
	return s.users.EnsureAppUser(ctx, caller)
}

// Create validates fields and stores a new item owned by caller.
func (s *LibraryService) Create(ctx context.Context, caller *models.Identity, fields ItemFields) (*models.LibraryItem, error) {
	ownerID, err := s.owner(ctx, caller)
	if err != nil {
		return nil, err
	}
	draft := fields.normalize()
	if err := validateDraft(draft); err != nil {
		return nil, err
	}

	item := &models.LibraryItem{OwnerID: ownerID}
	draft.applyTo(item)
	if err := s.items.Create(ctx, item); err != nil {
		return nil, &StoreError{Op: "create library item", Err: err}
	}
	s.afterWrite(ctx, rabbitmq.EventItemCreated, item)
	return item, nil
}

// Update overwrites the item with id when caller owns it. Every optional
// field absent from fields is cleared.
func (s *LibraryService) Update(ctx context.Context, caller *models.Identity, id uint, fields ItemFields) (*models.LibraryItem, Outcome, error) {
	ownerID, err := s.owner(ctx, caller)
	if err != nil {
		return nil, 0, err
	}
	draft := fields.normalize()
	if err := validateDraft(draft); err != nil {
		return nil, 0, err
	}

	item := &models.LibraryItem{ID: id, OwnerID: ownerID}
	draft.applyTo(item)
	n, err := s.items.Update(ctx, item)
	if err != nil {
		return nil, 0, &StoreError{Op: "update library item", Err: err}
	}
	if n == 0 {
		return nil, OutcomeNoMatch, nil
	}
	s.afterWrite(ctx, rabbitmq.EventItemUpdated, item)

	updated, err := s.items.GetByID(ctx, id, ownerID)
	if errors.Is(err, repositories.ErrNotFound) {
		// deleted between the write and the reload
		return nil, OutcomeNoMatch, nil
	}
	if err != nil {
		return nil, 0, &StoreError{Op: "reload library item", Err: err}
	}
	return updated, OutcomeApplied, nil
}

// Delete permanently removes the item with id when caller owns it.
func (s *LibraryService) Delete(ctx context.Context, caller *models.Identity, id uint) (Outcome, error) {
	ownerID, err := s.owner(ctx, caller)
	if err != nil {
		return 0, err
	}
	n, err := s.items.Delete(ctx, id, ownerID)
	if err != nil {
		return 0, &StoreError{Op: "delete library item", Err: err}
	}
	if n == 0 {
		return OutcomeNoMatch, nil
	}
	s.afterWrite(ctx, rabbitmq.EventItemDeleted, &models.LibraryItem{ID: id, OwnerID: ownerID})
	return OutcomeApplied, nil
}

// Get returns the item with id when caller owns it.
func (s *LibraryService) Get(ctx context.Context, caller *models.Identity, id uint) (*models.LibraryItem, Outcome, error) {
	ownerID, err := s.owner(ctx, caller)
	if err != nil {
		return nil, 0, err
	}
	item, err := s.items.GetByID(ctx, id, ownerID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, OutcomeNoMatch, nil
	}
	if err != nil {
		return nil, 0, &StoreError{Op: "get library item", Err: err}
	}
	return item, OutcomeApplied, nil
}

// List returns ownerID's items, newest first, served from the view cache
// when possible. Cache failures are logged and bypassed.
func (s *LibraryService) List(ctx context.Context, ownerID uint) ([]models.LibraryItem, error) {
	// The generation is read before the store so a write landing in between
	// moves readers to a key this result is not stored under.
	gen, err := s.views.Generation(ctx, cache.ProfilePath)
	if err != nil {
		slog.WarnContext(ctx, "view cache generation unavailable", "path", cache.ProfilePath, "err", err)
		return s.listFromStore(ctx, ownerID)
	}
	key := cache.OwnerKey(cache.ProfilePath, gen, ownerID)
	if raw, ok, err := s.views.Get(ctx, key); err != nil {
		slog.WarnContext(ctx, "view cache read failed", "key", key, "err", err)
	} else if ok {
		var items []models.LibraryItem
		if err := json.Unmarshal(raw, &items); err == nil {
			return items, nil
		}
		slog.WarnContext(ctx, "discarding undecodable cache entry", "key", key)
	}

	items, err := s.listFromStore(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(items); err == nil {
		if err := s.views.Set(ctx, key, raw); err != nil {
			slog.WarnContext(ctx, "view cache write failed", "key", key, "err", err)
		}
	}
	return items, nil
}

func (s *LibraryService) listFromStore(ctx context.Context, ownerID uint) ([]models.LibraryItem, error) {
	items, err := s.items.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, &StoreError{Op: "list library items", Err: err}
	}
	return items, nil
}

// ListForCaller resolves caller's app user and lists their items.
func (s *LibraryService) ListForCaller(ctx context.Context, caller *models.Identity) ([]models.LibraryItem, error) {
	ownerID, err := s.owner(ctx, caller)
	if err != nil {
		return nil, err
	}
	return s.List(ctx, ownerID)
}

// InvalidateViews drops every cached profile view.
func (s *LibraryService) InvalidateViews(ctx context.Context) error {
	return s.views.InvalidatePath(ctx, cache.ProfilePath)
}

func (s *LibraryService) afterWrite(ctx context.Context, eventType string, item *models.LibraryItem) {
	if err := s.InvalidateViews(ctx); err != nil {
		slog.WarnContext(ctx, "view cache invalidation failed", "path", cache.ProfilePath, "err", err)
	}
	if s.events == nil {
		return
	}
	evt := rabbitmq.Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		ItemID:     item.ID,
		OwnerID:    item.OwnerID,
		MediaType:  string(item.MediaType),
		OccurredAt: time.Now().UTC(),
	}
	if err := s.events.PublishLibraryEvent(ctx, evt); err != nil {
		slog.WarnContext(ctx, "library event not published", "type", eventType, "item_id", item.ID, "err", err)
	}
}
