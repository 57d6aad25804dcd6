package models

import "time"

// MediaType is the kind of media a library item tracks.
type MediaType string

const (
	MediaGame   MediaType = "GAME"
	MediaSeries MediaType = "SERIES"
	MediaMovie  MediaType = "MOVIE"
	MediaBook   MediaType = "BOOK"
)

// MediaTypes lists every media type in display order.
var MediaTypes = []MediaType{MediaGame, MediaSeries, MediaMovie, MediaBook}

// Status is the progress state of a library item.
type Status string

const (
	StatusPlanned   Status = "PLANNED"
	StatusPlaying   Status = "PLAYING"
	StatusWatching  Status = "WATCHING"
	StatusReading   Status = "READING"
	StatusCasual    Status = "CASUAL"
	StatusPaused    Status = "PAUSED"
	StatusDropped   Status = "DROPPED"
	StatusCompleted Status = "COMPLETED"
)

// Statuses lists every status in display order.
var Statuses = []Status{
	StatusPlanned, StatusPlaying, StatusWatching, StatusReading,
	StatusCasual, StatusPaused, StatusDropped, StatusCompleted,
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	for _, candidate := range Statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

var statusesByType = map[MediaType][]Status{
	MediaGame:   {StatusPlanned, StatusPlaying, StatusCasual, StatusPaused, StatusDropped, StatusCompleted},
	MediaSeries: {StatusPlanned, StatusWatching, StatusCasual, StatusPaused, StatusDropped, StatusCompleted},
	MediaMovie:  {StatusPlanned, StatusWatching, StatusCasual, StatusPaused, StatusDropped, StatusCompleted},
	MediaBook:   {StatusPlanned, StatusReading, StatusCasual, StatusPaused, StatusDropped, StatusCompleted},
}

// Valid reports whether m is one of the known media types.
func (m MediaType) Valid() bool {
	_, ok := statusesByType[m]
	return ok
}

// Statuses returns the statuses permitted for m, or nil for an unknown type.
func (m MediaType) Statuses() []Status {
	allowed := statusesByType[m]
	out := make([]Status, len(allowed))
	copy(out, allowed)
	return out
}

// AllowsStatus reports whether s is a valid status for items of type m.
func (m MediaType) AllowsStatus(s Status) bool {
	for _, candidate := range statusesByType[m] {
		if candidate == s {
			return true
		}
	}
	return false
}

// LibraryItem is one tracked piece of media owned by exactly one app user.
type LibraryItem struct {
	ID               uint      `json:"id" gorm:"primaryKey"`
	OwnerID          uint      `json:"owner_id" gorm:"column:user_id;not null;index:idx_library_items_owner_created,priority:1"`
	MediaType        MediaType `json:"media_type" gorm:"column:type;type:varchar(16);not null"`
	Title            string    `json:"title" gorm:"not null"`
	Status           Status    `json:"status" gorm:"type:varchar(16);not null"`
	Year             *int      `json:"year"`
	PlatformOrAuthor *string   `json:"platform_or_author"`
	Progress         *int      `json:"progress"`
	Rating           *int      `json:"rating"`
	CoverURL         *string   `json:"cover_url"`
	Review           *string   `json:"review"`
	CreatedAt        time.Time `json:"created_at" gorm:"index:idx_library_items_owner_created,priority:2,sort:desc"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName keeps the table name shared with the existing schema.
func (LibraryItem) TableName() string {
	return "library_items"
}
