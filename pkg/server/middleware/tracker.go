package middleware

import (
	"net/http"
	"sync/atomic"
)

// InFlightTracker counts requests currently being served and derives the
// queue view fed to the admission controller. Active work is the raw
// in-flight count; queue depth is the in-flight excess over the configured
// concurrency target, i.e. requests the node has accepted but cannot be
// serving without contention.
type InFlightTracker struct {
	active            atomic.Int64
	concurrencyTarget int
	maxQueueSize      int
}

// NewInFlightTracker creates a tracker with the given concurrency model.
func NewInFlightTracker(concurrencyTarget, maxQueueSize int) *InFlightTracker {
	return &InFlightTracker{
		concurrencyTarget: concurrencyTarget,
		maxQueueSize:      maxQueueSize,
	}
}

// Acquire registers a request as in flight.
func (t *InFlightTracker) Acquire() {
	t.active.Add(1)
}

// Release unregisters a request.
func (t *InFlightTracker) Release() {
	t.active.Add(-1)
}

// InFlight returns the number of requests currently being served.
func (t *InFlightTracker) InFlight() int {
	return int(t.active.Load())
}

// ActiveWork returns the active-work count for admission checks.
func (t *InFlightTracker) ActiveWork() int {
	return t.InFlight()
}

// QueueDepth returns the in-flight excess over the concurrency target.
func (t *InFlightTracker) QueueDepth() int {
	depth := t.InFlight() - t.concurrencyTarget
	if depth < 0 {
		return 0
	}
	return depth
}

// MaxQueueSize returns the configured queue bound.
func (t *InFlightTracker) MaxQueueSize() int {
	return t.maxQueueSize
}

// Track wraps a handler with in-flight accounting.
func (t *InFlightTracker) Track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Acquire()
		defer t.Release()
		next.ServeHTTP(w, r)
	})
}
