package engine

import (
	"context"
	"time"
)

// sleepFunc waits for d or until the context is cancelled. The retry delay
// goes through this indirection so tests can substitute a recording,
// zero-cost implementation; the wait is a discrete, observable call, never
// folded into a state transition.
type sleepFunc func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// shouldRetry decides retry-vs-exhaust for a 0-based attempt index:
// retry while attempt < retries, so retries = N allows N+1 total attempts.
func shouldRetry(attempt, retries int) bool {
	return attempt < retries
}
