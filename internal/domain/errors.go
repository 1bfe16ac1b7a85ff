package domain

import "errors"

// ErrValidation covers malformed intervals, missing referenced cabins or activities,
// edits of bookings that are already locked and negative prices.
var ErrValidation = errors.New("validation error")

// ErrConflict is returned when the cabin is not available for the requested range.
var ErrConflict = errors.New("cabin is not available")

// ErrUnauthorized is returned when a capability or ownership predicate fails.
var ErrUnauthorized = errors.New("unauthorized")

// ErrNotFound is returned when a booking, cabin or activity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConcurrency is returned when a lock or an optimistic version check is lost
// during the atomic write.
var ErrConcurrency = errors.New("concurrent modification")

// Kind returns a short label for err, used for metrics and API error codes.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConcurrency):
		return "concurrency"
	default:
		return "internal"
	}
}
