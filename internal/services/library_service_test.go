package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"mediashelf/internal/cache"
	"mediashelf/internal/models"
	"mediashelf/internal/repositories"
	"mediashelf/internal/services"
	"mediashelf/pkg/rabbitmq"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// stubResolver maps identities to app user ids by email.
type stubResolver map[string]uint

func (r stubResolver) EnsureAppUser(_ context.Context, identity *models.Identity) (uint, error) {
	if identity == nil {
		return 0, services.ErrUnauthenticated
	}
	id, ok := r[identity.Email]
	if !ok {
		return 0, services.ErrUnauthenticated
	}
	return id, nil
}

// MockEventPublisher is a mock implementation of services.EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishLibraryEvent(ctx context.Context, evt rabbitmq.Event) error {
	args := m.Called(ctx, evt)
	return args.Error(0)
}

// failingItemRepository fails every call.
type failingItemRepository struct{ err error }

func (r failingItemRepository) Create(context.Context, *models.LibraryItem) error { return r.err }
func (r failingItemRepository) GetByID(context.Context, uint, uint) (*models.LibraryItem, error) {
	return nil, r.err
}
func (r failingItemRepository) ListByOwner(context.Context, uint) ([]models.LibraryItem, error) {
	return nil, r.err
}
func (r failingItemRepository) Update(context.Context, *models.LibraryItem) (int64, error) {
	return 0, r.err
}
func (r failingItemRepository) Delete(context.Context, uint, uint) (int64, error) { return 0, r.err }

var (
	alice = &models.Identity{Subject: "sub-alice", Email: "alice@example.com"}
	bob   = &models.Identity{Subject: "sub-bob", Email: "bob@example.com"}
)

func newLibraryFixture() (*services.LibraryService, *repositories.MemoryLibraryItemRepository, *cache.Memory) {
	repo := repositories.NewMemoryLibraryItemRepository()
	views := cache.NewMemory(time.Minute)
	users := stubResolver{alice.Email: 1, bob.Email: 2}
	return services.NewLibraryService(repo, users, views, nil), repo, views
}

func TestLibraryService_Create_HadesIIStoresNulls(t *testing.T) {
	service, repo, _ := newLibraryFixture()

	item, err := service.Create(context.Background(), alice, services.ItemFields{
		MediaType: "GAME",
		Title:     "Hades II",
		Status:    "PLAYING",
	})
	require.NoError(t, err)

	stored, err := repo.GetByID(context.Background(), item.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, uint(1), stored.OwnerID)
	assert.Equal(t, models.MediaGame, stored.MediaType)
	assert.Equal(t, "Hades II", stored.Title)
	assert.Equal(t, models.StatusPlaying, stored.Status)
	assert.Nil(t, stored.Rating)
	assert.Nil(t, stored.Year)
	assert.Nil(t, stored.Progress)
	assert.Nil(t, stored.PlatformOrAuthor)
	assert.Nil(t, stored.CoverURL)
	assert.Nil(t, stored.Review)
}

func TestLibraryService_Create_NormalizesFields(t *testing.T) {
	service, _, _ := newLibraryFixture()

	item, err := service.Create(context.Background(), alice, services.ItemFields{
		MediaType:        " book ",
		Title:            "  Dune ",
		Status:           "reading",
		Year:             "1965",
		PlatformOrAuthor: "  Frank Herbert ",
		Progress:         "abc",
		Rating:           " 9 ",
		CoverURL:         "   ",
		Review:           "",
	})
	require.NoError(t, err)
	assert.Equal(t, models.MediaBook, item.MediaType)
	assert.Equal(t, "Dune", item.Title)
	assert.Equal(t, models.StatusReading, item.Status)
	require.NotNil(t, item.Year)
	assert.Equal(t, 1965, *item.Year)
	require.NotNil(t, item.PlatformOrAuthor)
	assert.Equal(t, "Frank Herbert", *item.PlatformOrAuthor)
	assert.Nil(t, item.Progress, "non-numeric input is treated as absent")
	require.NotNil(t, item.Rating)
	assert.Equal(t, 9, *item.Rating)
	assert.Nil(t, item.CoverURL)
	assert.Nil(t, item.Review)
}

func TestLibraryService_Create_IgnoresClientOwner(t *testing.T) {
	service, repo, _ := newLibraryFixture()

	var fields services.ItemFields
	require.NoError(t, json.Unmarshal([]byte(`{"media_type":"MOVIE","title":"Heat","status":"COMPLETED","owner_id":2,"user_id":2,"rating":8}`), &fields))

	item, err := service.Create(context.Background(), alice, fields)
	require.NoError(t, err)
	assert.Equal(t, uint(1), item.OwnerID)

	stored, err := repo.GetByID(context.Background(), item.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, uint(1), stored.OwnerID)
	require.NotNil(t, stored.Rating)
	assert.Equal(t, 8, *stored.Rating)
}

func TestLibraryService_Create_ValidationErrors(t *testing.T) {
	cases := []struct {
		name   string
		fields services.ItemFields
		field  string
	}{
		{"empty title", services.ItemFields{MediaType: "GAME", Title: "   ", Status: "PLAYING"}, "title"},
		{"unknown media type", services.ItemFields{MediaType: "PODCAST", Title: "Serial", Status: "PLANNED"}, "media_type"},
		{"missing media type", services.ItemFields{Title: "Serial", Status: "PLANNED"}, "media_type"},
		{"unknown status", services.ItemFields{MediaType: "GAME", Title: "Celeste", Status: "TO_WATCH"}, "status"},
		{"status of another type", services.ItemFields{MediaType: "BOOK", Title: "Dune", Status: "WATCHING"}, "status"},
		{"rating too high", services.ItemFields{MediaType: "GAME", Title: "Celeste", Status: "COMPLETED", Rating: "11"}, "rating"},
		{"rating zero", services.ItemFields{MediaType: "GAME", Title: "Celeste", Status: "COMPLETED", Rating: "0"}, "rating"},
		{"negative progress", services.ItemFields{MediaType: "SERIES", Title: "Dark", Status: "WATCHING", Progress: "-3"}, "progress"},
		{"relative cover url", services.ItemFields{MediaType: "MOVIE", Title: "Heat", Status: "PLANNED", CoverURL: "cover.jpg"}, "cover_url"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			service, repo, _ := newLibraryFixture()

			item, err := service.Create(context.Background(), alice, tc.fields)
			assert.Nil(t, item)
			var verr *services.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tc.field)
			assert.Equal(t, 0, repo.Len(), "a rejected create must not write")
		})
	}
}

func TestLibraryService_Create_StatusMessageNamesAllowedValues(t *testing.T) {
	service, _, _ := newLibraryFixture()

	_, err := service.Create(context.Background(), alice, services.ItemFields{MediaType: "GAME", Title: "Celeste", Status: "READING"})
	var verr *services.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "is not valid for GAME; use one of PLANNED, PLAYING, CASUAL, PAUSED, DROPPED, COMPLETED", verr.Fields["status"])
}

func TestLibraryService_Unauthenticated(t *testing.T) {
	service, repo, _ := newLibraryFixture()
	ctx := context.Background()

	_, err := service.Create(ctx, nil, services.ItemFields{MediaType: "GAME", Title: "Celeste", Status: "PLAYING"})
	assert.ErrorIs(t, err, services.ErrUnauthenticated)
	_, _, err = service.Update(ctx, nil, 1, services.ItemFields{})
	assert.ErrorIs(t, err, services.ErrUnauthenticated)
	_, err = service.Delete(ctx, nil, 1)
	assert.ErrorIs(t, err, services.ErrUnauthenticated)
	_, err = service.ListForCaller(ctx, nil)
	assert.ErrorIs(t, err, services.ErrUnauthenticated)
	assert.Equal(t, 0, repo.Len())
}

func TestLibraryService_UpdateAndDelete_ForeignIDIsNoMatch(t *testing.T) {
	service, repo, _ := newLibraryFixture()
	ctx := context.Background()

	item, err := service.Create(ctx, alice, services.ItemFields{MediaType: "GAME", Title: "Hades II", Status: "PLAYING"})
	require.NoError(t, err)

	updated, outcome, err := service.Update(ctx, bob, item.ID, services.ItemFields{MediaType: "GAME", Title: "Stolen", Status: "DROPPED"})
	assert.NoError(t, err)
	assert.Nil(t, updated)
	assert.Equal(t, services.OutcomeNoMatch, outcome)

	outcome, err = service.Delete(ctx, bob, item.ID)
	assert.NoError(t, err)
	assert.Equal(t, services.OutcomeNoMatch, outcome)

	// A missing id is reported exactly the same way.
	missingOutcome, err := service.Delete(ctx, bob, 999)
	assert.NoError(t, err)
	assert.Equal(t, outcome, missingOutcome)

	stored, err := repo.GetByID(ctx, item.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "Hades II", stored.Title)
	assert.Equal(t, models.StatusPlaying, stored.Status)

	_, outcome, err = service.Get(ctx, bob, item.ID)
	assert.NoError(t, err)
	assert.Equal(t, services.OutcomeNoMatch, outcome)
}

func TestLibraryService_UpdateOwnItem(t *testing.T) {
	service, _, _ := newLibraryFixture()
	ctx := context.Background()

	item, err := service.Create(ctx, alice, services.ItemFields{MediaType: "GAME", Title: "Hades II", Status: "PLAYING", Rating: "8", Review: "great"})
	require.NoError(t, err)

	updated, outcome, err := service.Update(ctx, alice, item.ID, services.ItemFields{MediaType: "GAME", Title: "Hades II", Status: "COMPLETED", Progress: "42"})
	require.NoError(t, err)
	assert.Equal(t, services.OutcomeApplied, outcome)
	assert.Equal(t, models.StatusCompleted, updated.Status)
	require.NotNil(t, updated.Progress)
	assert.Equal(t, 42, *updated.Progress)
	assert.Nil(t, updated.Rating, "fields left blank are cleared")
	assert.Nil(t, updated.Review)
	assert.Equal(t, uint(1), updated.OwnerID)

	_, _, err = service.Update(ctx, alice, item.ID, services.ItemFields{MediaType: "GAME", Title: "", Status: "COMPLETED"})
	var verr *services.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestLibraryService_DeleteOwnItem(t *testing.T) {
	service, repo, _ := newLibraryFixture()
	ctx := context.Background()

	item, err := service.Create(ctx, alice, services.ItemFields{MediaType: "MOVIE", Title: "Heat", Status: "PLANNED"})
	require.NoError(t, err)

	outcome, err := service.Delete(ctx, alice, item.ID)
	require.NoError(t, err)
	assert.Equal(t, services.OutcomeApplied, outcome)
	assert.Equal(t, 0, repo.Len())

	outcome, err = service.Delete(ctx, alice, item.ID)
	require.NoError(t, err)
	assert.Equal(t, services.OutcomeNoMatch, outcome)
}

func TestLibraryService_ListIsOwnerScopedAndCached(t *testing.T) {
	service, _, views := newLibraryFixture()
	ctx := context.Background()

	_, err := service.Create(ctx, alice, services.ItemFields{MediaType: "GAME", Title: "Celeste", Status: "COMPLETED"})
	require.NoError(t, err)
	_, err = service.Create(ctx, bob, services.ItemFields{MediaType: "BOOK", Title: "Dune", Status: "READING"})
	require.NoError(t, err)

	items, err := service.ListForCaller(ctx, alice)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Celeste", items[0].Title)

	gen, err := views.Generation(ctx, cache.ProfilePath)
	require.NoError(t, err)
	_, ok, err := views.Get(ctx, cache.OwnerKey(cache.ProfilePath, gen, 1))
	require.NoError(t, err)
	assert.True(t, ok, "list populates the view cache")

	// Any write drops every cached profile view.
	_, err = service.Create(ctx, bob, services.ItemFields{MediaType: "BOOK", Title: "Emma", Status: "PLANNED"})
	require.NoError(t, err)
	_, ok, err = views.Get(ctx, cache.OwnerKey(cache.ProfilePath, gen, 1))
	require.NoError(t, err)
	assert.False(t, ok)
	next, err := views.Generation(ctx, cache.ProfilePath)
	require.NoError(t, err)
	assert.Greater(t, next, gen)

	_, err = service.Create(ctx, alice, services.ItemFields{MediaType: "SERIES", Title: "Dark", Status: "WATCHING"})
	require.NoError(t, err)
	items, err = service.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Dark", items[0].Title, "newest first")
	assert.Equal(t, "Celeste", items[1].Title)
}

// pausingItemRepository holds ListByOwner after it has read the store until
// release is closed.
type pausingItemRepository struct {
	*repositories.MemoryLibraryItemRepository
	read    chan struct{}
	release chan struct{}
}

func (r *pausingItemRepository) ListByOwner(ctx context.Context, ownerID uint) ([]models.LibraryItem, error) {
	items, err := r.MemoryLibraryItemRepository.ListByOwner(ctx, ownerID)
	if r.read != nil {
		close(r.read)
		r.read = nil
		<-r.release
	}
	return items, err
}

func TestLibraryService_ListDoesNotCacheViewReadBeforeUpdate(t *testing.T) {
	repo := &pausingItemRepository{MemoryLibraryItemRepository: repositories.NewMemoryLibraryItemRepository()}
	service := services.NewLibraryService(repo, stubResolver{alice.Email: 1}, cache.NewMemory(time.Minute), nil)
	ctx := context.Background()

	item, err := service.Create(ctx, alice, services.ItemFields{MediaType: "GAME", Title: "Celeste", Status: "PLAYING"})
	require.NoError(t, err)

	repo.read = make(chan struct{})
	repo.release = make(chan struct{})
	read := repo.read
	done := make(chan []models.LibraryItem)
	go func() {
		items, err := service.List(ctx, 1)
		assert.NoError(t, err)
		done <- items
	}()

	// The list has read PLAYING; the update commits and invalidates before
	// the list stores its result.
	<-read
	_, outcome, err := service.Update(ctx, alice, item.ID, services.ItemFields{MediaType: "GAME", Title: "Celeste", Status: "COMPLETED"})
	require.NoError(t, err)
	require.Equal(t, services.OutcomeApplied, outcome)
	close(repo.release)

	stale := <-done
	require.Len(t, stale, 1)
	assert.Equal(t, models.StatusPlaying, stale[0].Status)

	items, err := service.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.StatusCompleted, items[0].Status)
}

func TestLibraryService_PublishesEvents(t *testing.T) {
	repo := repositories.NewMemoryLibraryItemRepository()
	publisher := new(MockEventPublisher)
	service := services.NewLibraryService(repo, stubResolver{alice.Email: 1}, nil, publisher)
	ctx := context.Background()

	publisher.On("PublishLibraryEvent", ctx, mock.MatchedBy(func(evt rabbitmq.Event) bool {
		return evt.Type == rabbitmq.EventItemCreated && evt.OwnerID == 1 && evt.MediaType == "GAME" && evt.ID != ""
	})).Return(errors.New("broker down")).Once()
	publisher.On("PublishLibraryEvent", ctx, mock.MatchedBy(func(evt rabbitmq.Event) bool {
		return evt.Type == rabbitmq.EventItemDeleted && evt.OwnerID == 1
	})).Return(nil).Once()

	// A failed publish never fails the write.
	item, err := service.Create(ctx, alice, services.ItemFields{MediaType: "GAME", Title: "Celeste", Status: "PLAYING"})
	require.NoError(t, err)

	outcome, err := service.Delete(ctx, alice, item.ID)
	require.NoError(t, err)
	assert.Equal(t, services.OutcomeApplied, outcome)

	// No event for a write that matched nothing.
	_, err = service.Delete(ctx, alice, item.ID)
	require.NoError(t, err)
	publisher.AssertExpectations(t)
}

func TestLibraryService_StoreErrors(t *testing.T) {
	dbDown := errors.New("connection reset")
	service := services.NewLibraryService(failingItemRepository{err: dbDown}, stubResolver{alice.Email: 1}, nil, nil)
	ctx := context.Background()

	var storeErr *services.StoreError
	_, err := service.Create(ctx, alice, services.ItemFields{MediaType: "GAME", Title: "Celeste", Status: "PLAYING"})
	require.ErrorAs(t, err, &storeErr)
	assert.ErrorIs(t, err, dbDown)

	_, _, err = service.Update(ctx, alice, 1, services.ItemFields{MediaType: "GAME", Title: "Celeste", Status: "PLAYING"})
	assert.ErrorAs(t, err, &storeErr)
	_, err = service.Delete(ctx, alice, 1)
	assert.ErrorAs(t, err, &storeErr)
	_, err = service.List(ctx, 1)
	assert.ErrorAs(t, err, &storeErr)
	_, _, err = service.Get(ctx, alice, 1)
	assert.ErrorAs(t, err, &storeErr)
}

func TestItemFields_UnmarshalJSON(t *testing.T) {
	var fields services.ItemFields
	err := json.Unmarshal([]byte(`{"media_type":"game","title":"Celeste","status":"playing","year":2018,"rating":null,"progress":"12","review":true}`), &fields)
	require.NoError(t, err)
	assert.Equal(t, "game", fields.MediaType)
	assert.Equal(t, "2018", fields.Year)
	assert.Equal(t, "", fields.Rating)
	assert.Equal(t, "12", fields.Progress)
	assert.Equal(t, "true", fields.Review)

	err = json.Unmarshal([]byte(`{"title":{"nested":true}}`), &fields)
	assert.Error(t, err)
}

func TestLibraryService_Create_AcceptsWholeFloats(t *testing.T) {
	service, _, _ := newLibraryFixture()

	var fields services.ItemFields
	require.NoError(t, json.Unmarshal([]byte(`{"media_type":"BOOK","title":"Dune","status":"READING","rating":7.0,"year":2.024e3,"progress":7.5}`), &fields))

	item, err := service.Create(context.Background(), alice, fields)
	require.NoError(t, err)
	require.NotNil(t, item.Rating)
	assert.Equal(t, 7, *item.Rating)
	require.NotNil(t, item.Year)
	assert.Equal(t, 2024, *item.Year)
	assert.Nil(t, item.Progress, "fractional input is treated as absent")

	item, err = service.Create(context.Background(), alice, services.ItemFields{MediaType: "BOOK", Title: "Emma", Status: "PLANNED", Year: "1e400", Rating: "NaN"})
	require.NoError(t, err)
	assert.Nil(t, item.Year)
	assert.Nil(t, item.Rating)
}
