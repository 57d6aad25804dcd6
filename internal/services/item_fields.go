package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"mediashelf/internal/models"
)

// ItemFields is the raw, client-supplied content of a library item as it
// arrives from a form or a JSON body. Every value is kept as text; coercion
// happens in one place before validation. There is deliberately no owner
// field: the owner always comes from the session.
type ItemFields struct {
	MediaType        string `json:"media_type" form:"media_type"`
	Title            string `json:"title" form:"title"`
	Status           string `json:"status" form:"status"`
	Year             string `json:"year" form:"year"`
	PlatformOrAuthor string `json:"platform_or_author" form:"platform_or_author"`
	Progress         string `json:"progress" form:"progress"`
	Rating           string `json:"rating" form:"rating"`
	CoverURL         string `json:"cover_url" form:"cover_url"`
	Review           string `json:"review" form:"review"`
}

// UnmarshalJSON accepts strings, numbers, booleans and null for every field
// and ignores unknown keys.
func (f *ItemFields) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	targets := map[string]*string{
		"media_type":         &f.MediaType,
		"title":              &f.Title,
		"status":             &f.Status,
		"year":               &f.Year,
		"platform_or_author": &f.PlatformOrAuthor,
		"progress":           &f.Progress,
		"rating":             &f.Rating,
		"cover_url":          &f.CoverURL,
		"review":             &f.Review,
	}
	for key, dst := range targets {
		msg, ok := raw[key]
		if !ok {
			continue
		}
		s, err := rawText(msg)
		if err != nil {
			return fmt.Errorf("field %s: %w", key, err)
		}
		*dst = s
	}
	return nil
}

func rawText(msg json.RawMessage) (string, error) {
	msg = bytes.TrimSpace(msg)
	if len(msg) == 0 || bytes.Equal(msg, []byte("null")) {
		return "", nil
	}
	switch msg[0] {
	case '"':
		var s string
		err := json.Unmarshal(msg, &s)
		return s, err
	case '{', '[':
		return "", fmt.Errorf("expected a scalar value")
	default:
		// numbers and booleans keep their literal form
		return string(msg), nil
	}
}

// itemDraft is the normalized form of ItemFields that gets validated and
// copied onto a LibraryItem.
type itemDraft struct {
	MediaType        models.MediaType `json:"media_type" validate:"required,media_type"`
	Title            string           `json:"title" validate:"required"`
	Status           models.Status    `json:"status" validate:"required,status"`
	Year             *int             `json:"year"`
	PlatformOrAuthor *string          `json:"platform_or_author"`
	Progress         *int             `json:"progress" validate:"omitnil,min=0"`
	Rating           *int             `json:"rating" validate:"omitnil,min=1,max=10"`
	CoverURL         *string          `json:"cover_url" validate:"omitnil,url"`
	Review           *string          `json:"review"`
}

func (f ItemFields) normalize() itemDraft {
	return itemDraft{
		MediaType:        models.MediaType(strings.ToUpper(strings.TrimSpace(f.MediaType))),
		Title:            strings.TrimSpace(f.Title),
		Status:           models.Status(strings.ToUpper(strings.TrimSpace(f.Status))),
		Year:             optionalInt(f.Year),
		PlatformOrAuthor: optionalString(f.PlatformOrAuthor),
		Progress:         optionalInt(f.Progress),
		Rating:           optionalInt(f.Rating),
		CoverURL:         optionalString(f.CoverURL),
		Review:           optionalString(f.Review),
	}
}

func (d itemDraft) applyTo(item *models.LibraryItem) {
	item.MediaType = d.MediaType
	item.Title = d.Title
	item.Status = d.Status
	item.Year = d.Year
	item.PlatformOrAuthor = d.PlatformOrAuthor
	item.Progress = d.Progress
	item.Rating = d.Rating
	item.CoverURL = d.CoverURL
	item.Review = d.Review
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// optionalInt treats blank and non-integer input as absent. Numbers written
// as floats count when they hold a whole value, so 7.0 and 2.024e3 are 7 and
// 2024 while 7.5 is absent.
func optionalInt(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return &n
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) {
		return nil
	}
	if f < math.MinInt || f >= math.MaxInt {
		return nil
	}
	n := int(f)
	return &n
}
