package limits

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"arbor-hq/gatekeeper/pkg/limits/store"
)

// OperationType classifies what a request does to a shared repository.
type OperationType string

const (
	OpRead   OperationType = "read"
	OpWrite  OperationType = "write"
	OpQuery  OperationType = "query"
	OpExport OperationType = "export"
	OpDelete OperationType = "delete"
)

// VolumeCap is a per-repository, per-operation volume budget independent
// of the caller's tier. Zero means the dimension is uncapped.
type VolumeCap struct {
	Hourly int64 `yaml:"hourly"`
	Daily  int64 `yaml:"daily"`
}

// RepoResult is the outcome of a repository volume check.
type RepoResult struct {
	Allowed    bool
	Remaining  int64
	Limit      int64
	Repository string
	Operation  OperationType
	RetryAfter time.Duration

	// Blocked is true when the operation is on the static deny-list:
	// the rejection stands regardless of quota state.
	Blocked bool

	Degraded bool
}

// DefaultRepositoryCaps is the compiled-in volume table for the shared,
// externally curated repositories. User-owned graphs are never listed
// here; the dual layer does not apply to them.
var DefaultRepositoryCaps = map[string]map[OperationType]VolumeCap{
	"open-street-graph": {
		OpRead:   {Hourly: 2000, Daily: 20000},
		OpQuery:  {Hourly: 500, Daily: 4000},
		OpExport: {Hourly: 10, Daily: 40},
	},
	"pubchem-compounds": {
		OpRead:   {Hourly: 1000, Daily: 10000},
		OpQuery:  {Hourly: 300, Daily: 2500},
		OpExport: {Hourly: 5, Daily: 20},
	},
	"wikidata-snapshot": {
		OpRead:   {Hourly: 1500, Daily: 15000},
		OpQuery:  {Hourly: 400, Daily: 3000},
		OpExport: {Hourly: 5, Daily: 20},
	},
}

// DefaultDeniedOperations is the static deny-list: these operations are
// rejected on every shared repository even with full quota available.
var DefaultDeniedOperations = map[OperationType]bool{
	OpDelete: true,
	OpWrite:  true,
}

// DefaultBypassSuffixes are endpoint suffixes allow-listed for shared
// repository access: cheap metadata reads skip the volume layer entirely.
var DefaultBypassSuffixes = []string{
	"/metadata",
	"/schema",
	"/stats",
}

// RepositoryLimiter applies the second, repository-scoped limiting layer.
// It runs in addition to the tier limiter, never instead of it, and only
// for shared curated repositories. The volume tables can be swapped at
// runtime for configuration hot reload.
type RepositoryLimiter struct {
	counter store.Counter
	tables  atomic.Pointer[repoTables]
	policy  FailurePolicy
	logger  *slog.Logger
}

// repoTables groups the reloadable pieces so a swap is one atomic store.
type repoTables struct {
	caps   map[string]map[OperationType]VolumeCap
	denied map[OperationType]bool
	bypass []string
}

// RepositoryLimiterConfig configures the repository volume layer.
type RepositoryLimiterConfig struct {
	// Counter is the shared counter store. Required.
	Counter store.Counter

	// Caps is the per-repository volume table. Nil uses the defaults.
	Caps map[string]map[OperationType]VolumeCap

	// DeniedOperations is the static deny-list. Nil uses the defaults.
	DeniedOperations map[OperationType]bool

	// BypassSuffixes are allow-listed endpoint suffixes. Nil uses defaults.
	BypassSuffixes []string

	// Policy decides the outcome on store outage. Default: FailOpen.
	Policy FailurePolicy

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// NewRepositoryLimiter creates the repository volume limiter.
func NewRepositoryLimiter(cfg RepositoryLimiterConfig) *RepositoryLimiter {
	if cfg.Caps == nil {
		cfg.Caps = DefaultRepositoryCaps
	}
	if cfg.DeniedOperations == nil {
		cfg.DeniedOperations = DefaultDeniedOperations
	}
	if cfg.BypassSuffixes == nil {
		cfg.BypassSuffixes = DefaultBypassSuffixes
	}
	if cfg.Policy == "" {
		cfg.Policy = FailOpen
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	r := &RepositoryLimiter{
		counter: cfg.Counter,
		policy:  cfg.Policy,
		logger:  cfg.Logger.With("component", "limits.repository"),
	}
	r.tables.Store(&repoTables{
		caps:   cfg.Caps,
		denied: cfg.DeniedOperations,
		bypass: cfg.BypassSuffixes,
	})
	return r
}

// SwapCaps replaces the volume table atomically. Nil falls back to the
// compiled-in defaults, matching the constructor. The deny-list and bypass
// suffixes are static policy and are kept as configured at startup.
func (r *RepositoryLimiter) SwapCaps(caps map[string]map[OperationType]VolumeCap) {
	if caps == nil {
		caps = DefaultRepositoryCaps
	}
	old := r.tables.Load()
	r.tables.Store(&repoTables{
		caps:   caps,
		denied: old.denied,
		bypass: old.bypass,
	})
	r.logger.Info("repository volume table reloaded", "repositories", len(caps))
}

// SharedRepository extracts the shared repository name from a path, or ""
// when the path does not target the shared namespace.
func SharedRepository(path string) string {
	const prefix = "/api/shared/"
	if !strings.HasPrefix(path, prefix) {
		return ""
	}
	rest := strings.TrimPrefix(path, prefix)
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

// ClassifyOperation maps a shared-repository request to its operation type.
func ClassifyOperation(path, method string) OperationType {
	switch {
	case strings.Contains(path, "/export"), strings.Contains(path, "/backups"):
		return OpExport
	case strings.Contains(path, "/query"):
		return OpQuery
	}

	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return OpRead
	case http.MethodDelete:
		return OpDelete
	default:
		return OpWrite
	}
}

// Bypassed reports whether the endpoint is allow-listed to skip the
// repository volume layer entirely.
func (r *RepositoryLimiter) Bypassed(path string) bool {
	path = strings.TrimSuffix(path, "/")
	for _, s := range r.tables.Load().bypass {
		if strings.HasSuffix(path, s) {
			return true
		}
	}
	return false
}

// Check applies the deny-list and then the hourly and daily volume caps
// for the repository and operation. Both caps must pass. The deny-list is
// evaluated first: a denied operation is rejected before any counter is
// touched, so quota state can never override it.
func (r *RepositoryLimiter) Check(ctx context.Context, repo string, op OperationType) (RepoResult, error) {
	tables := r.tables.Load()
	if tables.denied[op] {
		return RepoResult{
			Allowed:    false,
			Blocked:    true,
			Repository: repo,
			Operation:  op,
		}, nil
	}

	ops, ok := tables.caps[repo]
	if !ok {
		// Unknown repository in the shared namespace: no volume table
		// means no extra layer. The tier limiter already applied.
		return RepoResult{Allowed: true, Repository: repo, Operation: op}, nil
	}

	vc, ok := ops[op]
	if !ok {
		return RepoResult{Allowed: true, Repository: repo, Operation: op}, nil
	}

	if vc.Hourly > 0 {
		res, err := r.checkWindow(ctx, repo, op, "hourly", vc.Hourly, time.Hour)
		if err != nil || !res.Allowed {
			return res, err
		}
	}
	if vc.Daily > 0 {
		return r.checkWindow(ctx, repo, op, "daily", vc.Daily, 24*time.Hour)
	}

	return RepoResult{Allowed: true, Repository: repo, Operation: op}, nil
}

func (r *RepositoryLimiter) checkWindow(ctx context.Context, repo string, op OperationType, span string, limit int64, window time.Duration) (RepoResult, error) {
	key := fmt.Sprintf("%s:%s:%s:%s", ScopeRepository, repo, op, span)

	res, err := r.counter.IncrementAndCheck(ctx, key, limit, window)
	if err != nil {
		allowed := r.policy == FailOpen
		r.logger.Warn("counter store unavailable for repository check, applying failure policy",
			"policy", string(r.policy),
			"repository", repo,
			"operation", string(op),
			"error", err,
		)
		return RepoResult{
			Allowed:    allowed,
			Limit:      limit,
			Repository: repo,
			Operation:  op,
			Degraded:   true,
		}, nil
	}

	return RepoResult{
		Allowed:    res.Allowed,
		Remaining:  res.Remaining,
		Limit:      limit,
		Repository: repo,
		Operation:  op,
		RetryAfter: res.RetryAfter,
	}, nil
}
