// Package budget tracks the model-call budget for a pipeline run and gates
// every model call against it.
package budget

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/seo-brief-automator/internal/brief"
)

// DefaultMaxRequests is the per-run model-call ceiling.
const DefaultMaxRequests = 200

// ErrSupersededRun is returned for calls charged to a run that has since been
// replaced by Reset.
var ErrSupersededRun = errors.New("model call belongs to a superseded run")

// Config holds limiter configuration.
type Config struct {
	MaxRequests       int
	RequestsPerSecond float64
	Burst             int
}

// Limiter counts model calls against a fixed ceiling. An optional token bucket
// paces calls; it never changes the ceiling.
type Limiter struct {
	mu    sync.Mutex
	count int
	max   int
	run   uint64
	pacer *rate.Limiter
}

// New creates a Limiter. A non-positive MaxRequests falls back to the default.
func New(cfg Config) *Limiter {
	maxRequests := cfg.MaxRequests
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	l := &Limiter{max: maxRequests}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		l.pacer = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return l
}

// TryConsume increments the counter and reports whether the ceiling has been
// reached. With a ceiling of 200 the first 199 calls return false and the
// 200th (and every later call) returns true.
func (l *Limiter) TryConsume() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.count++
	return l.count >= l.max
}

// TryConsumeRun is TryConsume for a call made on behalf of run. Calls from a
// run other than the open one are refused without touching the counter.
func (l *Limiter) TryConsumeRun(run uint64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if run != l.run {
		return false, fmt.Errorf("%w: run %d, open run %d", ErrSupersededRun, run, l.run)
	}
	l.count++
	return l.count >= l.max, nil
}

// Reset zeroes the counter and opens a new run, returning its number.
func (l *Limiter) Reset() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.count = 0
	l.run++
	return l.run
}

// Run returns the number of the open run.
func (l *Limiter) Run() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.run
}

// Restore sets the counter back to count if run is still the open run.
func (l *Limiter) Restore(run uint64, count int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if run == l.run {
		l.count = count
	}
}

// Snapshot reports the counter without mutating it.
func (l *Limiter) Snapshot() brief.APIStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return brief.APIStatus{
		CurrentCount: l.count,
		MaxRequests:  l.max,
		LimitReached: l.count >= l.max,
	}
}

// Exhausted reports whether the ceiling has been reached.
func (l *Limiter) Exhausted() bool {
	return l.Snapshot().LimitReached
}

// Wait blocks until the pacer allows another call. It returns immediately when
// pacing is disabled.
func (l *Limiter) Wait(ctx context.Context) error {
	if l.pacer == nil {
		return nil
	}
	if err := l.pacer.Wait(ctx); err != nil {
		return fmt.Errorf("budget pacing wait: %w", err)
	}
	return nil
}
