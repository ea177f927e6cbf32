// Package breaker wraps sony/gobreaker to guard REST fallback and repository
// calls against repeated failures, tripping open rather than piling up
// blocked goroutines against an unhealthy upstream.
package breaker

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Settings configures a Breaker. Zero values fall back to sensible defaults.
type Settings struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration

	// ConsecutiveFailures trips the breaker open once this many consecutive
	// calls have failed. Zero means 5.
	ConsecutiveFailures uint32
}

// Breaker guards calls returning T against cascading failure.
type Breaker[T any] struct {
	cb *gobreaker.CircuitBreaker[T]
}

// New builds a Breaker from Settings.
func New[T any](s Settings) *Breaker[T] {
	failures := s.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}
	timeout := s.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	cbSettings := gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
	}

	return &Breaker[T]{cb: gobreaker.NewCircuitBreaker[T](cbSettings)}
}

// Execute runs fn through the breaker, short-circuiting with
// gobreaker.ErrOpenState when the breaker is tripped.
func (b *Breaker[T]) Execute(_ context.Context, fn func() (T, error)) (T, error) {
	return b.cb.Execute(fn)
}

// State reports the breaker's current state for health/metrics reporting.
func (b *Breaker[T]) State() gobreaker.State {
	return b.cb.State()
}
