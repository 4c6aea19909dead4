// Package resilience wraps outbound provider HTTP calls with a circuit
// breaker, optional bounded retry, and health bookkeeping.
package resilience

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// CircuitBreakerConfig holds configuration for the circuit breaker.
type CircuitBreakerConfig struct {
	Name string

	// MaxRequests allowed through while half-open. Default: 1
	MaxRequests uint32

	// Interval clears counts while closed. Default: 0 (never)
	Interval time.Duration

	// Timeout is how long the breaker stays open. Default: 30 seconds
	Timeout time.Duration

	// ReadyToTrip decides when to open. Default: DefaultReadyToTrip
	ReadyToTrip func(counts gobreaker.Counts) bool

	OnStateChange func(name string, from gobreaker.State, to gobreaker.State)
}

// DefaultCircuitBreakerConfig returns the configuration used for routing
// and weather providers.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:        name,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: DefaultReadyToTrip,
	}
}

// DefaultReadyToTrip opens the breaker once 8 requests have been seen and at
// least 60% of them failed. A sampling run fans out tens of calls, so a
// handful of scattered failures must not open the circuit.
func DefaultReadyToTrip(counts gobreaker.Counts) bool {
	if counts.Requests < 8 {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
}

// LogStateChanges returns an OnStateChange hook that logs transitions.
func LogStateChanges(logger zerolog.Logger) func(string, gobreaker.State, gobreaker.State) {
	return func(name string, from, to gobreaker.State) {
		evt := logger.Info()
		if to == gobreaker.StateOpen {
			evt = logger.Warn()
		}
		evt.
			Str("breaker", name).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("circuit breaker state changed")
	}
}

// NewCircuitBreaker creates a typed circuit breaker from cfg, filling defaults.
func NewCircuitBreaker[T any](cfg CircuitBreakerConfig) *gobreaker.CircuitBreaker[T] {
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ReadyToTrip == nil {
		cfg.ReadyToTrip = DefaultReadyToTrip
	}

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:          cfg.Name,
		MaxRequests:   cfg.MaxRequests,
		Interval:      cfg.Interval,
		Timeout:       cfg.Timeout,
		ReadyToTrip:   cfg.ReadyToTrip,
		OnStateChange: cfg.OnStateChange,
	})
}
