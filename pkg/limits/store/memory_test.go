package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestMemoryCounter(t *testing.T) *MemoryCounter {
	t.Helper()
	c := NewMemoryCounter()
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestMemoryCounter_AllowsUpToLimit(t *testing.T) {
	c := newTestMemoryCounter(t)
	ctx := context.Background()

	const limit = 5
	for i := 1; i <= limit; i++ {
		res, err := c.IncrementAndCheck(ctx, "tenant:read", limit, time.Minute)
		if err != nil {
			t.Fatalf("IncrementAndCheck failed: %v", err)
		}
		if !res.Allowed {
			t.Errorf("call %d: expected allowed", i)
		}
		if res.Remaining != int64(limit-i) {
			t.Errorf("call %d: expected remaining %d, got %d", i, limit-i, res.Remaining)
		}
	}

	// Calls past the limit are denied with remaining 0 for the rest of the window.
	for i := 0; i < 3; i++ {
		res, err := c.IncrementAndCheck(ctx, "tenant:read", limit, time.Minute)
		if err != nil {
			t.Fatalf("IncrementAndCheck failed: %v", err)
		}
		if res.Allowed {
			t.Error("expected denial past the limit")
		}
		if res.Remaining != 0 {
			t.Errorf("expected remaining 0, got %d", res.Remaining)
		}
		if res.RetryAfter <= 0 || res.RetryAfter > time.Minute {
			t.Errorf("expected retry-after within the window, got %v", res.RetryAfter)
		}
	}
}

func TestMemoryCounter_IndependentKeys(t *testing.T) {
	c := newTestMemoryCounter(t)
	ctx := context.Background()

	if _, err := c.IncrementAndCheck(ctx, "a:read", 1, time.Minute); err != nil {
		t.Fatalf("IncrementAndCheck failed: %v", err)
	}
	res, err := c.IncrementAndCheck(ctx, "a:write", 1, time.Minute)
	if err != nil {
		t.Fatalf("IncrementAndCheck failed: %v", err)
	}
	if !res.Allowed {
		t.Error("one key's usage must not drain another key's budget")
	}
}

func TestMemoryCounter_WindowReset(t *testing.T) {
	c := newTestMemoryCounter(t)
	ctx := context.Background()

	base := time.Now()
	current := base
	var mu sync.Mutex
	c.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}

	if _, err := c.IncrementAndCheck(ctx, "k", 1, time.Second); err != nil {
		t.Fatalf("IncrementAndCheck failed: %v", err)
	}
	res, _ := c.IncrementAndCheck(ctx, "k", 1, time.Second)
	if res.Allowed {
		t.Fatal("expected denial within the window")
	}

	mu.Lock()
	current = base.Add(2 * time.Second)
	mu.Unlock()

	res, err := c.IncrementAndCheck(ctx, "k", 1, time.Second)
	if err != nil {
		t.Fatalf("IncrementAndCheck failed: %v", err)
	}
	if !res.Allowed {
		t.Error("expected a fresh window after expiry")
	}
}

func TestMemoryCounter_ConcurrentIncrementsAllCount(t *testing.T) {
	c := newTestMemoryCounter(t)
	ctx := context.Background()

	const (
		limit   = 50
		callers = 100
	)

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.IncrementAndCheck(ctx, "hot", limit, time.Minute)
			if err != nil {
				t.Errorf("IncrementAndCheck failed: %v", err)
				return
			}
			if res.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != limit {
		t.Errorf("expected exactly %d allowed under concurrency, got %d", limit, got)
	}
}

func TestMemoryCounter_SweepRemovesExpired(t *testing.T) {
	c := newTestMemoryCounter(t)
	ctx := context.Background()

	base := time.Now()
	current := base
	var mu sync.Mutex
	c.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}

	_, _ = c.IncrementAndCheck(ctx, "old", 10, time.Second)
	_, _ = c.IncrementAndCheck(ctx, "fresh", 10, time.Hour)

	mu.Lock()
	current = base.Add(5 * time.Second)
	mu.Unlock()

	c.sweep()

	if c.Size() != 1 {
		t.Errorf("expected 1 live window after sweep, got %d", c.Size())
	}
}

func TestMemoryCounter_InvalidLimit(t *testing.T) {
	c := newTestMemoryCounter(t)
	ctx := context.Background()

	if _, err := c.IncrementAndCheck(ctx, "k", 0, time.Minute); err != ErrInvalidLimit {
		t.Errorf("expected ErrInvalidLimit for zero limit, got %v", err)
	}
	if _, err := c.IncrementAndCheck(ctx, "k", 10, 0); err != ErrInvalidLimit {
		t.Errorf("expected ErrInvalidLimit for zero window, got %v", err)
	}
}
