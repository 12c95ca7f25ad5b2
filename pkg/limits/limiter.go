package limits

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"arbor-hq/gatekeeper/pkg/limits/store"
)

// Limiter answers "is this identity over its limit for this category in
// the current window". It resolves the caller's tier budget and performs
// one atomic counter-store round trip per check.
//
// A Limiter is constructed once at startup and shared by all requests; it
// holds no per-request state. The resolver can be swapped at runtime for
// configuration hot reload.
type Limiter struct {
	resolver atomic.Pointer[Resolver]
	counter  store.Counter
	policy   FailurePolicy
	logger   *slog.Logger
}

// LimiterConfig configures the tier rate limiter.
type LimiterConfig struct {
	// Resolver maps (tier, category) to budgets. Required.
	Resolver *Resolver

	// Counter is the shared counter store. Required.
	Counter store.Counter

	// Policy decides the outcome when the counter store is unreachable.
	// Default: FailOpen.
	Policy FailurePolicy

	// Logger receives store-outage warnings. Defaults to slog.Default.
	Logger *slog.Logger
}

// NewLimiter creates a tier rate limiter.
func NewLimiter(cfg LimiterConfig) *Limiter {
	if cfg.Policy == "" {
		cfg.Policy = FailOpen
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	l := &Limiter{
		counter: cfg.Counter,
		policy:  cfg.Policy,
		logger:  cfg.Logger.With("component", "limits"),
	}
	l.resolver.Store(cfg.Resolver)
	return l
}

// SwapResolver replaces the budget tables atomically. In-flight checks
// finish against the resolver they started with. A nil resolver is ignored.
func (l *Limiter) SwapResolver(r *Resolver) {
	if r == nil {
		return
	}
	l.resolver.Store(r)
	l.logger.Info("rate limit tables reloaded")
}

// Check increments the caller's counter for the category and reports
// whether the request is within budget. Anonymous callers are always
// resolved against the free tier regardless of the tier claim carried by
// the identity.
func (l *Limiter) Check(ctx context.Context, id Identity, category EndpointCategory) (Result, error) {
	tier := id.Tier
	scope := ScopeUser
	if id.Anonymous {
		tier = TierFree
		scope = ScopeAnonymous
	}

	lim, err := l.resolver.Load().Resolve(tier, category)
	if err != nil {
		return Result{}, err
	}

	key := Key{Scope: scope, Identity: id.ID, Category: category}
	window := time.Duration(lim.WindowSeconds) * time.Second

	res, err := l.counter.IncrementAndCheck(ctx, key.String(), lim.Limit, window)
	if err != nil {
		return l.degraded(tier, category, lim, err), nil
	}

	return Result{
		Allowed:       res.Allowed,
		Remaining:     res.Remaining,
		Limit:         lim.Limit,
		Tier:          tier,
		Category:      category,
		RetryAfter:    res.RetryAfter,
		WindowSeconds: lim.WindowSeconds,
	}, nil
}

// CheckAuth applies the fixed, tier-independent auth sub-limiter. Auth
// paths are exempt from tiered limiting but still budgeted so credential
// stuffing cannot hammer the auth backend.
func (l *Limiter) CheckAuth(ctx context.Context, id Identity) (Result, error) {
	lim, err := l.resolver.Load().Resolve(TierFree, CategoryAuth)
	if err != nil {
		return Result{}, err
	}

	scope := ScopeUser
	if id.Anonymous {
		scope = ScopeAnonymous
	}

	key := Key{Scope: scope, Identity: id.ID, Category: CategoryAuth}
	window := time.Duration(lim.WindowSeconds) * time.Second

	res, err := l.counter.IncrementAndCheck(ctx, key.String(), lim.Limit, window)
	if err != nil {
		return l.degraded(TierFree, CategoryAuth, lim, err), nil
	}

	return Result{
		Allowed:       res.Allowed,
		Remaining:     res.Remaining,
		Limit:         lim.Limit,
		Tier:          TierFree,
		Category:      CategoryAuth,
		RetryAfter:    res.RetryAfter,
		WindowSeconds: lim.WindowSeconds,
	}, nil
}

// Ping reports counter-store reachability for health checks.
func (l *Limiter) Ping(ctx context.Context) error {
	return l.counter.Ping(ctx)
}

// degraded builds the outcome of a check whose counter round trip failed,
// according to the configured failure policy. Store outages never surface
// as errors to the request path.
func (l *Limiter) degraded(tier Tier, category EndpointCategory, lim TierLimit, err error) Result {
	allowed := l.policy == FailOpen
	l.logger.Warn("counter store unavailable, applying failure policy",
		"policy", string(l.policy),
		"allowed", allowed,
		"category", string(category),
		"error", err,
	)

	res := Result{
		Allowed:       allowed,
		Limit:         lim.Limit,
		Tier:          tier,
		Category:      category,
		WindowSeconds: lim.WindowSeconds,
		Degraded:      true,
	}
	if !allowed {
		res.RetryAfter = time.Duration(lim.WindowSeconds) * time.Second
	}
	return res
}
