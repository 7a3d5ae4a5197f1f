package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(maxAttempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   maxAttempts,
		InitialDelay:  time.Millisecond,
		MaxDelay:      2 * time.Millisecond,
		BackoffFactor: 2,
	}
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(5), func() error {
		calls++
		if calls < 3 {
			return errors.New("unavailable")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_GivesUpAfterMaxAttempts(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := Retry(context.Background(), fastRetry(3), func() error {
		calls++
		return boom
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnNonRetryableError(t *testing.T) {
	permanent := errors.New("permanent")
	cfg := fastRetry(5)
	cfg.RetryableErrors = func(err error) bool { return !errors.Is(err, permanent) }

	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		return permanent
	})

	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestRetry_UnlimitedStopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastRetry(0)

	calls := 0
	cfg.OnRetry = func(attempt int, _ time.Duration, _ error) {
		if attempt == 10 {
			cancel()
		}
	}
	err := Retry(ctx, cfg, func() error {
		calls++
		return errors.New("unavailable")
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 10, calls)
}
