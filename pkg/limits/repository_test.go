package limits

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"arbor-hq/gatekeeper/pkg/limits/store"
)

func newTestRepositoryLimiter(t *testing.T, cfg RepositoryLimiterConfig) *RepositoryLimiter {
	t.Helper()

	if cfg.Counter == nil {
		mem := store.NewMemoryCounter()
		t.Cleanup(func() { _ = mem.Close() })
		cfg.Counter = mem
	}
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRepositoryLimiter(cfg)
}

func TestSharedRepository(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"/api/shared/open-street-graph", "open-street-graph"},
		{"/api/shared/open-street-graph/query", "open-street-graph"},
		{"/api/shared/pubchem-compounds/nodes/42", "pubchem-compounds"},
		{"/api/graphs/g1", ""},
		{"/api/shared/", ""},
		{"/", ""},
	}
	for _, tc := range cases {
		if got := SharedRepository(tc.path); got != tc.want {
			t.Errorf("SharedRepository(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}

func TestClassifyOperation(t *testing.T) {
	cases := []struct {
		path   string
		method string
		want   OperationType
	}{
		{"/api/shared/r/nodes", http.MethodGet, OpRead},
		{"/api/shared/r/nodes", http.MethodHead, OpRead},
		{"/api/shared/r/query", http.MethodPost, OpQuery},
		{"/api/shared/r/export", http.MethodPost, OpExport},
		{"/api/shared/r/backups", http.MethodPost, OpExport},
		{"/api/shared/r/nodes", http.MethodPost, OpWrite},
		{"/api/shared/r", http.MethodDelete, OpDelete},
	}
	for _, tc := range cases {
		if got := ClassifyOperation(tc.path, tc.method); got != tc.want {
			t.Errorf("ClassifyOperation(%q, %s) = %s, want %s", tc.path, tc.method, got, tc.want)
		}
	}
}

func TestRepositoryLimiter_DenyListBeatsQuota(t *testing.T) {
	r := newTestRepositoryLimiter(t, RepositoryLimiterConfig{})

	// The repository has full, untouched quota; delete must still be
	// rejected, and no counter may be consumed by the attempt.
	res, err := r.Check(context.Background(), "open-street-graph", OpDelete)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if res.Allowed {
		t.Error("expected delete on a shared repository to be rejected")
	}
	if !res.Blocked {
		t.Error("expected the rejection to be marked as deny-listed, not quota")
	}

	// Reads are unaffected by the blocked delete attempt.
	read, err := r.Check(context.Background(), "open-street-graph", OpRead)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !read.Allowed {
		t.Error("expected reads to still be allowed")
	}
}

func TestRepositoryLimiter_HourlyCapEnforced(t *testing.T) {
	r := newTestRepositoryLimiter(t, RepositoryLimiterConfig{
		Caps: map[string]map[OperationType]VolumeCap{
			"r": {OpQuery: {Hourly: 3, Daily: 100}},
		},
	})
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		res, err := r.Check(ctx, "r", OpQuery)
		if err != nil {
			t.Fatalf("Check %d failed: %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("query %d: expected allowed", i)
		}
	}

	res, err := r.Check(ctx, "r", OpQuery)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if res.Allowed {
		t.Error("expected the hourly cap to deny the fourth query")
	}
	if res.Blocked {
		t.Error("a quota denial must not be marked as deny-listed")
	}
	if res.Limit != 3 {
		t.Errorf("expected the hourly limit 3 in the result, got %d", res.Limit)
	}
}

func TestRepositoryLimiter_DailyCapEnforced(t *testing.T) {
	r := newTestRepositoryLimiter(t, RepositoryLimiterConfig{
		Caps: map[string]map[OperationType]VolumeCap{
			"r": {OpExport: {Hourly: 100, Daily: 2}},
		},
	})
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		if res, _ := r.Check(ctx, "r", OpExport); !res.Allowed {
			t.Fatalf("export %d: expected allowed", i)
		}
	}

	res, err := r.Check(ctx, "r", OpExport)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if res.Allowed {
		t.Error("expected the daily cap to deny the third export")
	}
	if res.Limit != 2 {
		t.Errorf("expected the daily limit 2 in the result, got %d", res.Limit)
	}
}

func TestRepositoryLimiter_UnknownRepositoryPasses(t *testing.T) {
	r := newTestRepositoryLimiter(t, RepositoryLimiterConfig{})

	res, err := r.Check(context.Background(), "not-in-the-table", OpRead)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !res.Allowed {
		t.Error("a repository without a volume table must pass through")
	}
}

func TestRepositoryLimiter_Bypassed(t *testing.T) {
	r := newTestRepositoryLimiter(t, RepositoryLimiterConfig{})

	bypassed := []string{
		"/api/shared/open-street-graph/metadata",
		"/api/shared/open-street-graph/schema",
		"/api/shared/open-street-graph/stats/",
	}
	for _, p := range bypassed {
		if !r.Bypassed(p) {
			t.Errorf("expected %q to bypass the repository layer", p)
		}
	}

	if r.Bypassed("/api/shared/open-street-graph/query") {
		t.Error("query paths must not bypass the repository layer")
	}
}

func TestRepositoryLimiter_FailOpenOnStoreOutage(t *testing.T) {
	r := newTestRepositoryLimiter(t, RepositoryLimiterConfig{
		Counter: failingCounter{},
	})

	res, err := r.Check(context.Background(), "open-street-graph", OpRead)
	if err != nil {
		t.Fatalf("store outage must not surface as an error: %v", err)
	}
	if !res.Allowed {
		t.Error("fail-open must allow on store outage")
	}
	if !res.Degraded {
		t.Error("expected the result to be flagged degraded")
	}
}

func TestRepositoryLimiter_FailClosedOnStoreOutage(t *testing.T) {
	r := newTestRepositoryLimiter(t, RepositoryLimiterConfig{
		Counter: failingCounter{},
		Policy:  FailClosed,
	})

	res, err := r.Check(context.Background(), "open-street-graph", OpRead)
	if err != nil {
		t.Fatalf("store outage must not surface as an error: %v", err)
	}
	if res.Allowed {
		t.Error("fail-closed must deny on store outage")
	}
}

func TestRepositoryLimiter_KeysIsolatePerWindowSpan(t *testing.T) {
	mem := store.NewMemoryCounter()
	t.Cleanup(func() { _ = mem.Close() })

	r := newTestRepositoryLimiter(t, RepositoryLimiterConfig{
		Counter: mem,
		Caps: map[string]map[OperationType]VolumeCap{
			"r": {OpRead: {Hourly: 5, Daily: 10}},
		},
	})

	if _, err := r.Check(context.Background(), "r", OpRead); err != nil {
		t.Fatalf("Check failed: %v", err)
	}

	// One admitted read consumes one hourly and one daily counter.
	if got := mem.Size(); got != 2 {
		t.Errorf("expected 2 counter windows (hourly and daily), got %d", got)
	}
}

func TestRepositoryLimiter_SwapCapsAppliesNewTable(t *testing.T) {
	r := newTestRepositoryLimiter(t, RepositoryLimiterConfig{
		Caps: map[string]map[OperationType]VolumeCap{
			"r": {OpQuery: {Hourly: 1, Daily: 100}},
		},
	})
	ctx := context.Background()

	if res, err := r.Check(ctx, "r", OpQuery); err != nil || !res.Allowed {
		t.Fatalf("first query: allowed=%v err=%v, want allowed", res.Allowed, err)
	}
	if res, err := r.Check(ctx, "r", OpQuery); err != nil || res.Allowed {
		t.Fatalf("second query: allowed=%v err=%v, want denied", res.Allowed, err)
	}

	// The new table has no entry for "r", so the layer stops applying.
	r.SwapCaps(map[string]map[OperationType]VolumeCap{
		"other": {OpQuery: {Hourly: 1, Daily: 1}},
	})

	if res, err := r.Check(ctx, "r", OpQuery); err != nil || !res.Allowed {
		t.Errorf("post-swap query: allowed=%v err=%v, want allowed", res.Allowed, err)
	}
}

func TestRepositoryLimiter_SwapCapsKeepsDenyList(t *testing.T) {
	r := newTestRepositoryLimiter(t, RepositoryLimiterConfig{})

	r.SwapCaps(map[string]map[OperationType]VolumeCap{})

	res, err := r.Check(context.Background(), "open-street-graph", OpDelete)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if res.Allowed || !res.Blocked {
		t.Errorf("allowed=%v blocked=%v, want deny-list to survive a cap swap", res.Allowed, res.Blocked)
	}
}
