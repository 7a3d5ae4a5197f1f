package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Circuit breaker default configuration values
const (
	DefaultMaxRequests           uint32        = 3
	DefaultInterval              time.Duration = 60 * time.Second
	DefaultTimeout               time.Duration = 30 * time.Second
	DefaultFailureThreshold      uint32        = 5
	DefaultFailureRatioThreshold float64       = 0.5
	DefaultMinRequestsToTrip     uint32        = 10
)

// CircuitBreakerConfig holds configuration for a circuit breaker
type CircuitBreakerConfig struct {
	Name                  string
	MaxRequests           uint32        // requests allowed through while half-open
	Interval              time.Duration // closed-state window after which counts reset
	Timeout               time.Duration // open-state wait before probing again
	FailureThreshold      uint32        // consecutive failures that trip the breaker
	FailureRatioThreshold float64
	MinRequestsToTrip     uint32
}

// DefaultCircuitBreakerConfig returns sensible defaults
func DefaultCircuitBreakerConfig(name string) *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:                  name,
		MaxRequests:           DefaultMaxRequests,
		Interval:              DefaultInterval,
		Timeout:               DefaultTimeout,
		FailureThreshold:      DefaultFailureThreshold,
		FailureRatioThreshold: DefaultFailureRatioThreshold,
		MinRequestsToTrip:     DefaultMinRequestsToTrip,
	}
}

// StateListener is notified on every breaker state change.
type StateListener func(name string, from, to gobreaker.State)

// CircuitBreaker wraps gobreaker with logging and state listeners.
type CircuitBreaker struct {
	cb     *gobreaker.CircuitBreaker
	name   string
	logger *slog.Logger

	mu        sync.RWMutex
	listeners []StateListener
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config *CircuitBreakerConfig, logger *slog.Logger) *CircuitBreaker {
	if logger == nil {
		logger = slog.Default()
	}

	c := &CircuitBreaker{
		name:   config.Name,
		logger: logger,
	}

	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= config.FailureThreshold {
				return true
			}
			if counts.Requests >= config.MinRequestsToTrip {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return failureRatio >= config.FailureRatioThreshold
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
			c.mu.RLock()
			listeners := append([]StateListener(nil), c.listeners...)
			c.mu.RUnlock()
			for _, l := range listeners {
				l(name, from, to)
			}
		},
	}

	c.cb = gobreaker.NewCircuitBreaker(settings)
	return c
}

// OnStateChange registers a listener for state changes.
func (c *CircuitBreaker) OnStateChange(l StateListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Execute runs fn through the breaker. Rejections wrap ErrCircuitOpen.
func (c *CircuitBreaker) Execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := c.cb.Execute(fn)

	switch {
	case errors.Is(err, gobreaker.ErrOpenState):
		c.logger.Warn("Circuit breaker is open", "name", c.name)
		return nil, fmt.Errorf("%s: %w", c.name, ErrCircuitOpen)
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		c.logger.Warn("Circuit breaker: too many requests", "name", c.name)
		return nil, fmt.Errorf("%s: too many requests while half-open: %w", c.name, ErrCircuitOpen)
	}

	return result, err
}

// State returns the current state of the circuit breaker
func (c *CircuitBreaker) State() gobreaker.State {
	return c.cb.State()
}

// Name returns the circuit breaker name
func (c *CircuitBreaker) Name() string {
	return c.name
}

// Counts returns the current counts
func (c *CircuitBreaker) Counts() gobreaker.Counts {
	return c.cb.Counts()
}
