package work

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aurachat/empathy-crawler-service/common/db"
	redisv9 "github.com/redis/go-redis/v9"
)

const (
	runStateKeyPrefix = "crawl:run:"
	runningState      = "running"
	// runTimeout sets how long a crawl run is considered running before it's considered stale.
	// This prevents runs that died without proper cleanup from being stuck in 'running' state forever.
	runTimeout = 24 * time.Hour
)

// RunManager coordinates crawl run ownership through Redis so that
// only one crawl is active at a time across instances. Run state itself
// lives in Postgres, keyed by the run's UUID; the manager only owns the
// Redis lease.
type RunManager struct {
	db *db.DB
}

// NewRunManager creates a new RunManager.
func NewRunManager(dbConn *db.DB) *RunManager {
	return &RunManager{db: dbConn}
}

// getRunKey returns the Redis key for a given run ID.
func (rm *RunManager) getRunKey(runID string) string {
	return fmt.Sprintf("%s%s", runStateKeyPrefix, runID)
}

// Start marks a run as running. It sets a key in Redis with an expiration.
// If the run is already running, it returns an error.
func (rm *RunManager) Start(ctx context.Context, runID string) error {
	key := rm.getRunKey(runID)
	// SetNX to prevent starting a run that is already running.
	ok, err := rm.db.Redis.SetNX(ctx, key, runningState, runTimeout)
	if err != nil {
		return fmt.Errorf("failed to start run %s: %w", runID, err)
	}
	if !ok {
		return fmt.Errorf("run %s is already running", runID)
	}
	return nil
}

// IsRunning checks if a run is currently marked as running.
func (rm *RunManager) IsRunning(ctx context.Context, runID string) (bool, error) {
	key := rm.getRunKey(runID)
	state, err := rm.db.Redis.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redisv9.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get run state for %s: %w", runID, err)
	}
	return state == runningState, nil
}

// removeRun removes a run's state from Redis.
func (rm *RunManager) removeRun(ctx context.Context, runID string) error {
	key := rm.getRunKey(runID)
	err := rm.db.Redis.Delete(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to remove run %s: %w", runID, err)
	}
	return nil
}

// Complete marks a run as completed by removing its state from Redis.
func (rm *RunManager) Complete(ctx context.Context, runID string) error {
	return rm.removeRun(ctx, runID)
}

// Fail marks a run as failed by removing its state from Redis.
func (rm *RunManager) Fail(ctx context.Context, runID string) error {
	return rm.removeRun(ctx, runID)
}

// Cancel marks a run as cancelled by removing its state from Redis.
func (rm *RunManager) Cancel(ctx context.Context, runID string) error {
	return rm.removeRun(ctx, runID)
}

// ListRunningRuns returns a slice of run IDs for all runs currently marked as running.
// This can be used on startup to find and resume stale runs.
// It uses SCAN to avoid blocking the Redis server.
func (rm *RunManager) ListRunningRuns(ctx context.Context) ([]string, error) {
	var runIDs []string
	pattern := fmt.Sprintf("%s*", runStateKeyPrefix)

	iter := rm.db.Redis.GetClient().Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		runID := strings.TrimPrefix(key, runStateKeyPrefix)
		runIDs = append(runIDs, runID)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan for running runs in Redis: %w", err)
	}

	return runIDs, nil
}

// Resume checks if a run is running and extends its expiration if it is.
func (rm *RunManager) Resume(ctx context.Context, runID string) (bool, error) {
	key := rm.getRunKey(runID)
	state, err := rm.db.Redis.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redisv9.Nil) {
			return false, nil // Not running
		}
		return false, fmt.Errorf("failed to get run state for %s: %w", runID, err)
	}

	if state == runningState {
		if _, err := rm.db.Redis.Expire(ctx, key, runTimeout); err != nil {
			return true, fmt.Errorf("failed to extend run session for %s: %w", runID, err)
		}
		return true, nil
	}

	return false, nil
}
