package store

import (
	"context"
	"errors"
	"time"
)

// Result contains the outcome of a counter increment.
type Result struct {
	// Allowed indicates the increment landed within the limit.
	Allowed bool

	// Remaining is the number of increments left in the current window.
	// Zero when the limit is reached or exceeded.
	Remaining int64

	// RetryAfter is how long until the current window expires.
	// Only meaningful when Allowed is false.
	RetryAfter time.Duration
}

// Counter is the shared key -> (count, expiry) store underneath all rate
// limiting. Implementations must provide atomic increment-with-expiry
// semantics: two concurrent increments must both be counted, and the first
// increment in a window must set the window expiry.
type Counter interface {
	// IncrementAndCheck atomically increments the counter for key and
	// reports whether the new count is within limit for the window.
	// Counters are created lazily on first increment and expire on their
	// own; there is no explicit deletion path.
	IncrementAndCheck(ctx context.Context, key string, limit int64, window time.Duration) (Result, error)

	// Ping verifies the backend is reachable. Used by health checks.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Errors returned by counter backends.
var (
	// ErrUnavailable is returned when the backend cannot be reached.
	// Callers decide fail-open or fail-closed; the store never decides.
	ErrUnavailable = errors.New("counter store unavailable")

	// ErrInvalidLimit is returned for a non-positive limit or window.
	ErrInvalidLimit = errors.New("counter limit and window must be positive")
)
