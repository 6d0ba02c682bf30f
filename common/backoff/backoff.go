package backoff

import (
	"context"
	"math/rand"
	"time"
)

// Policy describes a bounded exponential backoff schedule. The same policy
// value is shared by every retrying call site so retry behavior is tuned in
// one place.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64
}

// DefaultPolicy returns the retry schedule used for source API calls.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    30 * time.Second,
		Jitter:      0.25,
	}
}

// Delay returns the wait before the given retry attempt (1-based). Attempt 1
// waits BaseDelay, each further attempt doubles it, capped at MaxDelay, with
// up to Jitter fraction added randomly.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay << (attempt - 1)
	if delay > p.MaxDelay || delay <= 0 {
		delay = p.MaxDelay
	}
	if p.Jitter > 0 {
		delay += time.Duration(rand.Float64() * p.Jitter * float64(delay))
	}
	return delay
}

// Retry runs fn up to MaxAttempts times, sleeping per the schedule between
// attempts. It stops early when fn succeeds, when retryable returns false
// for the returned error, or when ctx is cancelled. The last error is
// returned.
func Retry(ctx context.Context, p Policy, retryable func(error) bool, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Delay(attempt)):
		}
	}
	return lastErr
}
