// Package resilience provides fault-tolerance building blocks for the
// pipeline: a circuit breaker implementation of core.CircuitBreaker. Broker
// reconnect backoff is not here; package rabbitmq handles it itself.
package resilience

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/routemind/routemind/core"
)

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	// Name identifies the breaker in logs and state queries.
	Name string

	// FailureThreshold is the number of consecutive failures that trips
	// the breaker. Default: 5.
	FailureThreshold uint32

	// OpenTimeout is how long the breaker stays open before probing.
	// Default: 30s.
	OpenTimeout time.Duration

	// Logger is an optional logger for state transitions.
	Logger core.Logger
}

// Breaker implements core.CircuitBreaker backed by gobreaker.
type Breaker struct {
	cb     *gobreaker.CircuitBreaker
	logger core.Logger
}

// NewBreaker creates a circuit breaker from config. Zero-valued fields get
// defaults.
func NewBreaker(config BreakerConfig) *Breaker {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = 30 * time.Second
	}

	logger := config.Logger
	if logger != nil {
		if cal, ok := logger.(core.ComponentAwareLogger); ok {
			logger = cal.WithComponent("pipeline/resilience")
		}
	}

	b := &Breaker{logger: logger}

	settings := gobreaker.Settings{
		Name:    config.Name,
		Timeout: config.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if b.logger != nil {
				b.logger.Warn("Circuit breaker state changed", map[string]interface{}{
					"breaker": name,
					"from":    from.String(),
					"to":      to.String(),
				})
			}
		},
	}
	b.cb = gobreaker.NewCircuitBreaker(settings)
	return b
}

// Execute runs fn with circuit breaker protection. When the circuit is
// open, fn is not invoked and the breaker's open error returns
// immediately. Context cancellation is checked before dispatch.
func (b *Breaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

// GetState returns the current state: "closed", "open" or "half-open".
func (b *Breaker) GetState() string {
	return b.cb.State().String()
}
