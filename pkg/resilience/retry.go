package resilience

import (
	"context"
	"fmt"
	"time"
)

// Retry default configuration values
const (
	DefaultRetryMaxAttempts   int           = 3
	DefaultRetryInitialDelay  time.Duration = 200 * time.Millisecond
	DefaultRetryMaxDelay      time.Duration = 30 * time.Second
	DefaultRetryBackoffFactor float64       = 2.0
)

// RetryConfig controls Retry. MaxAttempts <= 0 retries until ctx is done.
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffFactor   float64
	RetryableErrors func(error) bool
	OnRetry         func(attempt int, delay time.Duration, err error)
}

// DefaultRetryConfig returns the default retry policy.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   DefaultRetryMaxAttempts,
		InitialDelay:  DefaultRetryInitialDelay,
		MaxDelay:      DefaultRetryMaxDelay,
		BackoffFactor: DefaultRetryBackoffFactor,
	}
}

// Retry runs fn until it succeeds, returns a non-retryable error, runs out
// of attempts or ctx is done. The delay grows by BackoffFactor up to MaxDelay.
func Retry(ctx context.Context, config *RetryConfig, fn func() error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var lastErr error
	delay := config.InitialDelay

	for attempt := 1; config.MaxAttempts <= 0 || attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if config.RetryableErrors != nil && !config.RetryableErrors(err) {
			return err
		}
		if config.MaxAttempts > 0 && attempt == config.MaxAttempts {
			break
		}

		if config.OnRetry != nil {
			config.OnRetry(attempt, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if config.BackoffFactor > 1 {
			delay = time.Duration(float64(delay) * config.BackoffFactor)
		}
		if config.MaxDelay > 0 && delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", config.MaxAttempts, lastErr)
}
