package limits

import (
	"errors"
	"fmt"
	"time"
)

// Scope namespaces a rate-limit counter by the kind of principal it tracks.
type Scope string

const (
	// ScopeUser tracks an authenticated caller.
	ScopeUser Scope = "user"

	// ScopeAnonymous tracks an unauthenticated caller (keyed by client IP).
	ScopeAnonymous Scope = "anonymous"

	// ScopeRepository tracks volume against a shared data repository.
	ScopeRepository Scope = "repository"
)

// Key is the composite counter key: one caller, one category, one budget.
// Namespacing by category means one caller's usage of one endpoint
// category never drains another category's budget.
type Key struct {
	Scope    Scope
	Identity string
	Category EndpointCategory
}

// String renders the key in the form the counter store expects.
func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Scope, k.Identity, k.Category)
}

// Identity describes the caller as extracted from the request by the
// gateway. The tier claim comes from a header set by the auth layer and is
// never trusted for anonymous callers.
type Identity struct {
	// ID is the API key or user ID, or the client IP for anonymous callers.
	ID string

	// Anonymous is true when no credential was presented.
	Anonymous bool

	// Tier is the claimed subscription tier. Ignored when Anonymous.
	Tier Tier
}

// Result is the outcome of a tier rate-limit check. A denied Result is an
// expected, structured outcome, not an error.
type Result struct {
	Allowed    bool
	Remaining  int64
	Limit      int64
	Tier       Tier
	Category   EndpointCategory
	RetryAfter time.Duration

	// WindowSeconds is the length of the budget window, for reset hints.
	WindowSeconds int64

	// Degraded is true when the counter store was unreachable and the
	// configured failure policy decided the outcome instead of a counter.
	Degraded bool
}

// FailurePolicy decides the outcome of a limit check when the counter
// store is unreachable. The limiter is an advisory safety layer, not the
// system of record, so fail-open is the recommended default: a store
// outage should degrade limiting, not availability.
type FailurePolicy string

const (
	// FailOpen allows requests when the store is unreachable.
	FailOpen FailurePolicy = "open"

	// FailClosed denies requests when the store is unreachable.
	FailClosed FailurePolicy = "closed"
)

// Errors for limit configuration and resolution.
var (
	// ErrUnknownTier is returned when a tier name cannot be parsed.
	ErrUnknownTier = errors.New("unknown subscription tier")

	// ErrUnknownCategory is returned when a category has no limit entry.
	ErrUnknownCategory = errors.New("no limit configured for category")

	// ErrTierOrdering is returned by validation when a higher tier has a
	// smaller limit than a lower tier for the same category.
	ErrTierOrdering = errors.New("tier limits must be non-decreasing across tiers")
)
