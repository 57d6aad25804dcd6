package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnauthenticated is returned when no valid session backs a call.
var ErrUnauthenticated = errors.New("unauthenticated")

// ValidationError carries per-field messages for rejected input.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// AuthExchangeError reports a failed OAuth code exchange. Reason is safe to
// show to the user.
type AuthExchangeError struct {
	Reason string
	Err    error
}

func (e *AuthExchangeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth exchange: %s: %v", e.Reason, e.Err)
	}
	return "auth exchange: " + e.Reason
}

func (e *AuthExchangeError) Unwrap() error { return e.Err }

// StoreError wraps a failure of the underlying data store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Outcome names the result of an owner-scoped write or lookup.
type Outcome int

const (
	// OutcomeApplied means a row owned by the caller matched.
	OutcomeApplied Outcome = iota + 1
	// OutcomeNoMatch means no row matched. A missing id and an id owned by
	// someone else are deliberately reported the same way.
	OutcomeNoMatch
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeNoMatch:
		return "no_match"
	default:
		return "unknown"
	}
}
