package fetch

import (
	"context"
	"time"
)

// Backoff computes exponential retry delays. The zero value is unusable;
// use NewBackoff.
type Backoff struct {
	// base is the delay before the first retry.
	base time.Duration

	// max caps the delay regardless of attempt count.
	max time.Duration
}

// NewBackoff creates a Backoff starting at base and doubling per attempt,
// capped at max. Non-positive arguments fall back to 500ms and 30s.
func NewBackoff(base, max time.Duration) Backoff {
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if max <= 0 {
		max = 30 * time.Second
	}
	return Backoff{base: base, max: max}
}

// Delay returns the backoff for the given zero-based attempt number.
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= b.max {
			return b.max
		}
	}
	if d > b.max {
		return b.max
	}
	return d
}

// Sleep waits for d or until the context is cancelled, whichever comes
// first. Retry delays must be interruptible so that cancellation does not
// have to wait out a backoff.
func Sleep(ctx context.Context, d time.Duration) error {
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
