package admission

import (
	"math/rand"
	"sync"
	"time"
)

// RandSource supplies the uniform draws used for probabilistic rejection.
// It is an interface so tests can feed a deterministic sequence instead of
// patching a global generator.
type RandSource interface {
	// Float64 returns a uniform draw in [0, 1).
	Float64() float64
}

// lockedRand is the production source: a seeded math/rand generator behind
// a mutex. Crypto-grade randomness buys nothing for load shedding.
type lockedRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newLockedRand() *lockedRand {
	return &lockedRand{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.Float64()
}
