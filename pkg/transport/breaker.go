package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrymomot/billing/pkg/billing"
)

// Breaker stops calls to a billing endpoint after consecutive transport
// failures. Once the cooldown has passed a single trial call is let through;
// its outcome either closes the breaker or restarts the cooldown.
//
// Only failures of kind billing.KindTransport count. A validation error or a
// 404 means the service answered, so it resets the count like a success.
// Calls canceled by the caller count as neither.
//
// Safe for concurrent use. Share one Breaker per endpoint.
type Breaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	failures  int
	openUntil time.Time
	trial     bool
}

// BreakerOption configures a Breaker.
type BreakerOption func(*Breaker)

// WithFailureThreshold sets how many consecutive transport failures open the breaker.
func WithFailureThreshold(n int) BreakerOption {
	return func(b *Breaker) {
		if n > 0 {
			b.threshold = n
		}
	}
}

// WithCooldown sets how long an open breaker rejects calls.
func WithCooldown(d time.Duration) BreakerOption {
	return func(b *Breaker) {
		if d > 0 {
			b.cooldown = d
		}
	}
}

func WithBreakerClock(now func() time.Time) BreakerOption {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBreaker opens after 5 consecutive transport failures for 30 seconds
// unless configured otherwise.
func NewBreaker(opts ...BreakerOption) *Breaker {
	b := &Breaker{
		threshold: 5,
		cooldown:  30 * time.Second,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Allow returns ErrCircuitOpen while the breaker is open or a trial call is
// still in flight.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failures < b.threshold {
		return nil
	}
	if now := b.now(); now.Before(b.openUntil) {
		return fmt.Errorf("%w: retry after %s", ErrCircuitOpen, b.openUntil.Sub(now).Round(time.Second))
	}
	if b.trial {
		return fmt.Errorf("%w: trial call in flight", ErrCircuitOpen)
	}
	b.trial = true
	return nil
}

// Observe records the outcome of a call that Allow let through.
func (b *Breaker) Observe(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trial = false
	switch {
	case errors.Is(err, context.Canceled):
	case billing.IsTransport(err):
		b.failures++
		if b.failures >= b.threshold {
			b.openUntil = b.now().Add(b.cooldown)
		}
	default:
		b.failures = 0
		b.openUntil = time.Time{}
	}
}

// Open reports whether Allow would currently reject a call.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures >= b.threshold && (b.trial || b.now().Before(b.openUntil))
}
