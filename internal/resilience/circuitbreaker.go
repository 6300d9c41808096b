// Package resilience wraps data-source calls with a circuit breaker so a
// flaky upstream (a Postgres bar warehouse, say) fails fast instead of
// hanging a walk-forward run that fans out many concurrent loads.
package resilience

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Config defines the trip thresholds for a circuit breaker.
type Config struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	MaxFailures uint32
}

// DefaultConfig returns sensible defaults for wrapping a data-loader call.
func DefaultConfig(name string) Config {
	return Config{
		Name:        name,
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		MaxFailures: 5,
	}
}

// CircuitBreaker wraps gobreaker with logging and a name for diagnostics.
type CircuitBreaker struct {
	cb   *gobreaker.CircuitBreaker[any]
	name string
}

// New creates a new CircuitBreaker from config.
func New(config Config) *CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && (counts.ConsecutiveFailures >= config.MaxFailures || failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("[circuitbreaker:%s] state changed: %s -> %s", name, from, to)
		},
	}
	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker[any](settings), name: config.Name}
}

// Execute runs fn under circuit-breaker protection, aborting immediately if
// ctx is already cancelled.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() (any, error)) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result, err := cb.cb.Execute(fn)
	if err != nil {
		return nil, fmt.Errorf("circuit breaker %s: %w", cb.name, err)
	}
	return result, nil
}

// State returns the current breaker state (closed/open/half-open).
func (cb *CircuitBreaker) State() gobreaker.State { return cb.cb.State() }

// Name returns the breaker's name.
func (cb *CircuitBreaker) Name() string { return cb.name }
