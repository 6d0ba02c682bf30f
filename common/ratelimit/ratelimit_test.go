package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samber/mo"
)

func TestNewRejectsInvalidRate(t *testing.T) {
	tests := []struct {
		name string
		rps  float64
	}{
		{"zero", 0},
		{"negative", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.rps, 1); !errors.Is(err, ErrInvalidRate) {
				t.Errorf("err = %v, want ErrInvalidRate", err)
			}
		})
	}
}

func TestAcquireFastPath(t *testing.T) {
	l, err := New(1000, 5)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := l.Acquire(ctx); err != nil {
			t.Fatalf("Acquire: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("burst acquires took %v, expected near-instant", elapsed)
	}
}

func TestAcquireHonorsCancelledContext(t *testing.T) {
	l, err := New(0.001, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	// Drain the single burst token, then cancel so the next wait fails.
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	cancel()

	if err := l.Acquire(ctx); err == nil {
		t.Error("Acquire succeeded on cancelled context")
	}
}

func TestThrottleBlocksUntilWindowPasses(t *testing.T) {
	l, err := New(1000, 5)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	window := 50 * time.Millisecond
	l.Throttle(mo.Some(window))

	if !l.InCooldown() {
		t.Fatal("limiter not in cooldown after Throttle")
	}

	start := time.Now()
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if elapsed := time.Since(start); elapsed < window {
		t.Errorf("Acquire returned after %v, want at least %v", elapsed, window)
	}
	if l.InCooldown() {
		t.Error("limiter still in cooldown after the window passed")
	}
}

func TestThrottleInsideWindowDoesNotExtend(t *testing.T) {
	l, err := New(1000, 5)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	l.Throttle(mo.Some(50 * time.Millisecond))
	// A second signal inside the active window must not stretch the wait.
	l.Throttle(mo.Some(10 * time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Acquire took %v, second throttle extended the window", elapsed)
	}
}

func TestThrottleCapsWindow(t *testing.T) {
	l, err := New(1000, 5)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	l.Throttle(mo.Some(10 * time.Minute))

	l.mu.Lock()
	remaining := time.Until(l.cooldownUntil)
	l.mu.Unlock()

	if remaining > cooldownCap {
		t.Errorf("cooldown window %v exceeds cap %v", remaining, cooldownCap)
	}
}

func TestThrottleWithoutHintUsesBackoff(t *testing.T) {
	l, err := New(1000, 5)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	l.Throttle(mo.None[time.Duration]())

	l.mu.Lock()
	remaining := time.Until(l.cooldownUntil)
	l.mu.Unlock()

	if remaining <= 0 {
		t.Error("no cooldown window applied")
	}
	if remaining > 2*cooldownBase {
		t.Errorf("first backoff window %v, want around %v", remaining, cooldownBase)
	}
}
