package store

import (
	"context"
	"sync"
	"time"
)

// MemoryCounter implements Counter using an in-process map.
// This is the fallback backend when no shared store is configured. It is
// accurate within one process only: in a multi-instance deployment each
// instance counts independently, so effective limits are multiplied by the
// instance count. Deployments that need exact shared limits use RedisCounter.
//
// MemoryCounter is thread-safe and runs a janitor goroutine that sweeps
// expired windows so idle keys do not accumulate.
type MemoryCounter struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow

	sweepInterval time.Duration
	done          chan struct{}
	closeOnce     sync.Once

	// now is injectable for tests.
	now func() time.Time
}

type memoryWindow struct {
	count     int64
	expiresAt time.Time
}

// MemoryCounterConfig configures the memory backend.
type MemoryCounterConfig struct {
	// SweepInterval is how often the janitor removes expired windows.
	// Default: 1 minute.
	SweepInterval time.Duration
}

// NewMemoryCounter creates an in-process counter with default settings.
func NewMemoryCounter() *MemoryCounter {
	return NewMemoryCounterWithConfig(MemoryCounterConfig{})
}

// NewMemoryCounterWithConfig creates an in-process counter with custom
// configuration.
func NewMemoryCounterWithConfig(cfg MemoryCounterConfig) *MemoryCounter {
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = time.Minute
	}

	c := &MemoryCounter{
		windows:       make(map[string]*memoryWindow),
		sweepInterval: cfg.SweepInterval,
		done:          make(chan struct{}),
		now:           time.Now,
	}

	go c.sweepLoop()

	return c
}

// IncrementAndCheck atomically increments the window counter for key.
func (c *MemoryCounter) IncrementAndCheck(ctx context.Context, key string, limit int64, window time.Duration) (Result, error) {
	if limit <= 0 || window <= 0 {
		return Result{}, ErrInvalidLimit
	}

	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.windows[key]
	if !ok || !w.expiresAt.After(now) {
		// First increment in a new window sets the expiry.
		c.windows[key] = &memoryWindow{count: 1, expiresAt: now.Add(window)}
		return Result{Allowed: true, Remaining: limit - 1}, nil
	}

	w.count++
	if w.count > limit {
		return Result{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: w.expiresAt.Sub(now),
		}, nil
	}

	return Result{Allowed: true, Remaining: limit - w.count}, nil
}

// Ping always succeeds for the in-process backend.
func (c *MemoryCounter) Ping(ctx context.Context) error {
	return nil
}

// Close stops the janitor goroutine.
func (c *MemoryCounter) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}

// Size returns the number of live windows. Useful for monitoring and tests.
func (c *MemoryCounter) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.windows)
}

// sweep removes windows that expired before now.
func (c *MemoryCounter) sweep() {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, w := range c.windows {
		if !w.expiresAt.After(now) {
			delete(c.windows, key)
		}
	}
}

func (c *MemoryCounter) sweepLoop() {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}
