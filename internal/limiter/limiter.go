// Package limiter implements the per-destination concurrency limiter (C10):
// a slow-start/back-off token governor the dispatcher consults before
// popping downstream-bound items. Grounded on spec.md §4.8; the shape
// (a mutex-guarded struct with on-success/on-fail/is-valid-to-pop) follows
// the same small-state-machine style as internal/watch.Registry.
package limiter

import (
	"sync"
	"time"

	"github.com/open-logtail/logtailcore/clock"
)

// Config tunes the limiter's bounds, per spec.md §4.8.
type Config struct {
	LowerBoundLimit  int
	UpperBoundLimit  int
	InitialLimit     int
	FloorInterval    time.Duration
	InitialInterval  time.Duration
	GrowthFactor     float64 // multiplicative increase on success, e.g. 2
	ShrinkDivisor    float64 // interval shrink divisor on success, e.g. 3
	BackoffFactor    float64 // interval growth factor on failure, e.g. 1.5
}

// DefaultConfig returns the bounds named in spec.md §4.8's example values.
func DefaultConfig() Config {
	return Config{
		LowerBoundLimit: 1,
		UpperBoundLimit: 512,
		InitialLimit:    4,
		FloorInterval:   30 * time.Millisecond,
		InitialInterval: 100 * time.Millisecond,
		GrowthFactor:    2,
		ShrinkDivisor:   3,
		BackoffFactor:   1.5,
	}
}

// Limiter is one per-logical-destination governor.
type Limiter struct {
	cfg   Config
	clock clock.Clock

	mu         sync.Mutex
	limit      int
	inFlight   int
	intervalMs time.Duration
	lastFail   time.Time
}

// New builds a Limiter starting at cfg.InitialLimit/cfg.InitialInterval.
func New(clk clock.Clock, cfg Config) *Limiter {
	return &Limiter{
		cfg:        cfg,
		clock:      clk,
		limit:      cfg.InitialLimit,
		intervalMs: cfg.InitialInterval,
	}
}

// IsValidToPop reports whether a new item may be popped and sent right now:
// in-flight count is below the limit, and enough time has passed since the
// last failure.
func (l *Limiter) IsValidToPop() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inFlight >= l.limit {
		return false
	}
	return l.clock.Now().Sub(l.lastFail) >= l.intervalMs
}

// PostPop records that an item was popped and is now in flight.
func (l *Limiter) PostPop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inFlight++
}

// OnSendDone records that an in-flight item finished (success or failure).
func (l *Limiter) OnSendDone() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inFlight > 0 {
		l.inFlight--
	}
}

// OnSuccess grows the limit toward the upper bound and shrinks the retry
// interval toward its floor, the slow-start half of spec.md §4.8.
func (l *Limiter) OnSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()

	newLimit := int(float64(l.limit) * l.cfg.GrowthFactor)
	if newLimit <= l.limit {
		newLimit = l.limit + 1
	}
	if newLimit > l.cfg.UpperBoundLimit {
		newLimit = l.cfg.UpperBoundLimit
	}
	l.limit = newLimit

	newInterval := time.Duration(float64(l.intervalMs) / l.cfg.ShrinkDivisor)
	if newInterval < l.cfg.FloorInterval {
		newInterval = l.cfg.FloorInterval
	}
	l.intervalMs = newInterval
}

// OnFail halves the limit (never below the lower bound) and grows the
// retry interval, the back-off half of spec.md §4.8.
func (l *Limiter) OnFail(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastFail = now
	l.limit /= 2
	if l.limit < l.cfg.LowerBoundLimit {
		l.limit = l.cfg.LowerBoundLimit
	}

	newInterval := time.Duration(float64(l.intervalMs) * l.cfg.BackoffFactor)
	capped := l.cfg.InitialInterval * 10
	if newInterval > capped {
		newInterval = capped
	}
	l.intervalMs = newInterval
}

// Limit reports the current concurrency ceiling, for tests/metrics.
func (l *Limiter) Limit() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit
}

// Interval reports the current retry interval, for tests/metrics.
func (l *Limiter) Interval() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.intervalMs
}

// InFlight reports the current in-flight count, for tests/metrics.
func (l *Limiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight
}

// Registry holds one Limiter per logical destination (e.g. per config
// name), created lazily on first use.
type Registry struct {
	clock clock.Clock
	cfg   Config

	mu       sync.Mutex
	limiters map[string]*Limiter
}

// NewRegistry builds an empty Registry; every destination gets its own
// Limiter built from cfg.
func NewRegistry(clk clock.Clock, cfg Config) *Registry {
	return &Registry{clock: clk, cfg: cfg, limiters: make(map[string]*Limiter)}
}

// For returns the Limiter for destination, creating it on first use.
func (r *Registry) For(destination string) *Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[destination]
	if !ok {
		l = New(r.clock, r.cfg)
		r.limiters[destination] = l
	}
	return l
}
