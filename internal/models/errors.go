package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Business-rule rejections. All of these are expected outcomes a caller
// can map to a client response; none indicate a defect.
var (
	ErrSessionOverlaps    = errors.New("movie session overlaps")
	ErrSessionHasBookings = errors.New("movie session has bookings")
	ErrMovieScheduled     = errors.New("movie is scheduled")
	ErrHallScheduled      = errors.New("hall is scheduled")
	ErrSeatNotAvailable   = errors.New("seat not available")
	ErrNoBookingAvailable = errors.New("no booking available")
	ErrTicketAlreadyPaid  = errors.New("ticket already paid")

	ErrHallNotFound    = errors.New("hall not found")
	ErrMovieNotFound   = errors.New("movie not found")
	ErrSessionNotFound = errors.New("movie session not found")
	ErrTicketNotFound  = errors.New("ticket not found")

	// ErrAttemptsExhausted means order-number generation collided on every
	// retry. Near-impossible under correct random generation; treated as an
	// operational anomaly, not a client error.
	ErrAttemptsExhausted = errors.New("order number attempts exhausted")
)

// ValidationError aggregates field-level problems so a request with
// several bad fields reports them all in one response.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string]string)}
}

func (e *ValidationError) Add(field, reason string) {
	e.Fields[field] = reason
}

// OrNil collapses an empty collector to nil so callers can return it directly.
func (e *ValidationError) OrNil() *ValidationError {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
