package ratelimit

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/mo"
	"golang.org/x/time/rate"
)

var ErrInvalidRate = errors.New("requests per second must be positive")

const (
	cooldownBase    = 1 * time.Second
	cooldownCap     = 60 * time.Second
	maxConsecutive  = 6
	reductionFactor = 2
)

// Limiter is the single process-wide request gate shared by all crawl
// workers. It wraps a token bucket and layers an upstream-driven cooldown on
// top: when the source API reports throttling, admission pauses for one
// cooldown window and the refill rate is temporarily halved.
type Limiter struct {
	bucket *rate.Limiter
	normal rate.Limit

	mu            sync.Mutex
	cooldownUntil time.Time
	consecutive   int
}

// New creates a limiter admitting rps requests per second with the given
// burst. Burst values below 1 are raised to 1.
func New(rps float64, burst int) (*Limiter, error) {
	if rps <= 0 {
		return nil, ErrInvalidRate
	}
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(rps)
	return &Limiter{
		bucket: rate.NewLimiter(limit, burst),
		normal: limit,
	}, nil
}

// Acquire blocks until one token is available, then debits it. Waiters are
// served in arrival order. Returns the context error if ctx is cancelled
// while waiting.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.AcquireN(ctx, 1)
}

// AcquireN blocks until n tokens are available.
func (l *Limiter) AcquireN(ctx context.Context, n int) error {
	if err := l.waitCooldown(ctx); err != nil {
		return err
	}
	return l.bucket.WaitN(ctx, n)
}

// Throttle applies a cooldown window in response to an upstream rate-limit
// signal. The window duration is taken from hint when present, otherwise
// from exponential backoff with jitter over consecutive throttles. The
// refill rate is reduced for the duration of the window.
func (l *Limiter) Throttle(hint mo.Option[time.Duration]) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()

	// A throttle arriving inside an active window extends nothing; the
	// in-flight requests that triggered it all observed the same signal.
	if now.Before(l.cooldownUntil) {
		return
	}

	if l.consecutive < maxConsecutive {
		l.consecutive++
	}

	window := hint.OrElse(backoffWindow(l.consecutive))
	if window > cooldownCap {
		window = cooldownCap
	}

	l.cooldownUntil = now.Add(window)
	l.bucket.SetLimit(l.normal / reductionFactor)

	log.Warn().
		Dur("window", window).
		Int("consecutive", l.consecutive).
		Msg("Rate limiter entering cooldown")
}

// waitCooldown blocks until any active cooldown window has passed and
// restores the normal refill rate afterwards.
func (l *Limiter) waitCooldown(ctx context.Context) error {
	for {
		l.mu.Lock()
		remaining := time.Until(l.cooldownUntil)
		if remaining <= 0 {
			if l.bucket.Limit() != l.normal {
				l.bucket.SetLimit(l.normal)
				l.consecutive = 0
				log.Info().Msg("Rate limiter cooldown ended, normal rate restored")
			}
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(remaining):
		}
	}
}

// InCooldown reports whether a cooldown window is currently active.
func (l *Limiter) InCooldown() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return time.Now().Before(l.cooldownUntil)
}

func backoffWindow(consecutive int) time.Duration {
	window := cooldownBase << (consecutive - 1)
	if window > cooldownCap {
		window = cooldownCap
	}
	// Up to 25% jitter so contending processes do not resume in lockstep.
	jitter := time.Duration(rand.Int63n(int64(window) / 4))
	return window + jitter
}
