package testing

import (
	"context"
	"testing"
	"time"
)

// AssertEventually asserts that a condition becomes true within a timeout
func AssertEventually(t *testing.T, condition func() bool, timeout time.Duration, message string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := WaitForCondition(ctx, condition, 10*time.Millisecond); err != nil {
		t.Fatalf("Condition not met within timeout: %s", message)
	}
}

// CreateTestContext creates a context with a timeout for tests
func CreateTestContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

// WaitForCondition waits for a condition to become true or times out
func WaitForCondition(ctx context.Context, condition func() bool, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if condition() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// SkipIfShort skips container-backed tests under -short.
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}
