package limits

import (
	"fmt"
	"sort"
	"strings"
)

// Tier is a subscription level. Tiers form an ordered progression: a
// higher tier's limit is never smaller than a lower tier's for the same
// category. That invariant is enforced by ValidateTierOrdering at
// configuration load, not at runtime.
type Tier string

const (
	// TierFree is the lowest tier. Anonymous callers are always pinned
	// here regardless of any tier claim in the request.
	TierFree Tier = "free"

	// TierStandard is the paid self-serve tier.
	TierStandard Tier = "standard"

	// TierEnterprise is the highest tier.
	TierEnterprise Tier = "enterprise"
)

// tierRank orders tiers for the ordering invariant. Higher is bigger.
var tierRank = map[Tier]int{
	TierFree:       0,
	TierStandard:   1,
	TierEnterprise: 2,
}

// ParseTier normalizes a tier name. Unknown names fall back to free with
// ErrUnknownTier so a bad claim never grants a bigger budget.
func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierFree, "":
		return TierFree, nil
	case TierStandard:
		return TierStandard, nil
	case TierEnterprise, "large": // legacy plan name
		return TierEnterprise, nil
	default:
		return TierFree, fmt.Errorf("%w: %q", ErrUnknownTier, s)
	}
}

// TierLimit is a resolved budget: at most Limit requests per
// WindowSeconds-second window.
type TierLimit struct {
	Limit         int64 `yaml:"limit"`
	WindowSeconds int64 `yaml:"window_seconds"`
}

// DefaultBaseLimits is the compiled-in free-tier budget per category.
// Higher tiers scale these by DefaultTierMultipliers.
var DefaultBaseLimits = map[EndpointCategory]TierLimit{
	CategoryGraphRead:      {Limit: 100, WindowSeconds: 60},
	CategoryGraphWrite:     {Limit: 50, WindowSeconds: 60},
	CategoryQuery:          {Limit: 60, WindowSeconds: 60},
	CategoryAnalytics:      {Limit: 20, WindowSeconds: 60},
	CategoryBackup:         {Limit: 5, WindowSeconds: 3600},
	CategorySync:           {Limit: 10, WindowSeconds: 60},
	CategoryMCP:            {Limit: 30, WindowSeconds: 60},
	CategoryAgent:          {Limit: 20, WindowSeconds: 60},
	CategoryAuth:           {Limit: 20, WindowSeconds: 60},
	CategoryUserManagement: {Limit: 30, WindowSeconds: 60},
	CategoryPublic:         {Limit: 120, WindowSeconds: 60},
}

// DefaultTierMultipliers scale the free-tier base per tier. Auth is
// excluded from scaling (see Resolver.Resolve): its budget protects the
// auth backend, not the tenant's wallet.
var DefaultTierMultipliers = map[Tier]int64{
	TierFree:       1,
	TierStandard:   5,
	TierEnterprise: 20,
}

// Resolver maps (tier, category) to a TierLimit from a static base table
// plus tier multipliers. It is a pure lookup; construction validates the
// tables once so Resolve never fails at request time.
type Resolver struct {
	base        map[EndpointCategory]TierLimit
	multipliers map[Tier]int64
}

// NewResolver creates a resolver over the given tables. Nil tables use the
// compiled-in defaults. The tier-ordering invariant is checked here.
func NewResolver(base map[EndpointCategory]TierLimit, multipliers map[Tier]int64) (*Resolver, error) {
	if base == nil {
		base = DefaultBaseLimits
	}
	if multipliers == nil {
		multipliers = DefaultTierMultipliers
	}

	r := &Resolver{base: base, multipliers: multipliers}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Resolve returns the budget for a tier and category.
func (r *Resolver) Resolve(tier Tier, category EndpointCategory) (TierLimit, error) {
	base, ok := r.base[category]
	if !ok {
		return TierLimit{}, fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}

	// Auth budgets do not scale with tier.
	if category == CategoryAuth {
		return base, nil
	}

	mult, ok := r.multipliers[tier]
	if !ok {
		mult = r.multipliers[TierFree]
	}
	return TierLimit{Limit: base.Limit * mult, WindowSeconds: base.WindowSeconds}, nil
}

// validate enforces table completeness and the tier-ordering invariant:
// for every category, a higher tier resolves to a limit >= every lower
// tier's limit.
func (r *Resolver) validate() error {
	for _, cat := range AllCategories {
		if _, ok := r.base[cat]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownCategory, cat)
		}
		lim := r.base[cat]
		if lim.Limit <= 0 || lim.WindowSeconds <= 0 {
			return fmt.Errorf("invalid base limit for %s: limit and window must be positive", cat)
		}
	}

	tiers := make([]Tier, 0, len(r.multipliers))
	for t := range r.multipliers {
		if _, ok := tierRank[t]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownTier, t)
		}
		tiers = append(tiers, t)
	}
	sort.Slice(tiers, func(i, j int) bool { return tierRank[tiers[i]] < tierRank[tiers[j]] })

	for _, cat := range AllCategories {
		prev := int64(-1)
		for _, t := range tiers {
			lim, err := r.Resolve(t, cat)
			if err != nil {
				return err
			}
			if lim.Limit < prev {
				return fmt.Errorf("%w: %s/%s", ErrTierOrdering, t, cat)
			}
			prev = lim.Limit
		}
	}

	return nil
}
