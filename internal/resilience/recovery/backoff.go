package recovery

import (
	"context"
	"math"
	"time"
)

// Delay returns the exponential backoff delay for a retry counter:
// min(base * 2^(retries-1), max). retries below 1 yields base.
func Delay(retries int, base, max time.Duration) time.Duration {
	if retries < 1 {
		return base
	}
	d := float64(base) * math.Pow(2, float64(retries-1))
	if d > float64(max) {
		return max
	}
	return time.Duration(d)
}

// sleep waits for d, honoring ctx cancellation.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
