package crawler

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// ErrCheckpointCorrupt means the checkpoint file exists but cannot be
// trusted. The job refuses to guess and will not silently restart from
// zero; an operator has to repair or remove the file.
var ErrCheckpointCorrupt = errors.New("checkpoint corrupt")

// ErrCheckpointRegression means a commit tried to move the frontier
// backwards.
var ErrCheckpointRegression = errors.New("checkpoint regression")

// CheckpointManager persists the crawl frontier with the same
// temp-file-then-rename discipline as the batch writer. Only the
// orchestrator calls it, so no locking is needed for correctness; the mutex
// merely guards the monotonicity bookkeeping against misuse.
type CheckpointManager struct {
	path string

	mu        sync.Mutex
	lastIndex int
	lastCount int
}

// NewCheckpointManager creates a manager writing to path, creating parent
// directories as needed.
func NewCheckpointManager(path string) (*CheckpointManager, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating checkpoint dir: %w", err)
	}
	return &CheckpointManager{path: path, lastIndex: -1}, nil
}

// Load reads the last committed checkpoint. A missing file yields the zero
// checkpoint; an unreadable or invalid one yields ErrCheckpointCorrupt.
func (m *CheckpointManager) Load() (Checkpoint, error) {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return Checkpoint{}, nil
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("%w: %v", ErrCheckpointCorrupt, err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("%w: %v", ErrCheckpointCorrupt, err)
	}
	if cp.NextBatchIndex < 0 {
		return Checkpoint{}, fmt.Errorf("%w: negative batch index %d", ErrCheckpointCorrupt, cp.NextBatchIndex)
	}
	if lo.Contains(cp.CompletedCommunities, "") {
		return Checkpoint{}, fmt.Errorf("%w: empty community name", ErrCheckpointCorrupt)
	}

	m.mu.Lock()
	m.lastIndex = cp.NextBatchIndex
	m.lastCount = len(cp.CompletedCommunities)
	m.mu.Unlock()

	log.Info().
		Int("nextBatchIndex", cp.NextBatchIndex).
		Int("completedCommunities", len(cp.CompletedCommunities)).
		Msg("Checkpoint loaded")
	return cp, nil
}

// Commit durably replaces the checkpoint. The batch index may never
// decrease and the completed set may never shrink.
func (m *CheckpointManager) Commit(cp Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cp.NextBatchIndex < m.lastIndex || len(cp.CompletedCommunities) < m.lastCount {
		return fmt.Errorf("%w: index %d->%d, completed %d->%d",
			ErrCheckpointRegression, m.lastIndex, cp.NextBatchIndex, m.lastCount, len(cp.CompletedCommunities))
	}

	cp.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing checkpoint: %w", err)
	}

	temp := m.path + ".tmp"
	f, err := os.OpenFile(temp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = os.Remove(temp)
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(temp)
		return fmt.Errorf("syncing checkpoint: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("closing checkpoint: %w", err)
	}
	if err := os.Rename(temp, m.path); err != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("publishing checkpoint: %w", err)
	}

	m.lastIndex = cp.NextBatchIndex
	m.lastCount = len(cp.CompletedCommunities)

	log.Info().
		Int("nextBatchIndex", cp.NextBatchIndex).
		Int("completedCommunities", len(cp.CompletedCommunities)).
		Msg("Checkpoint committed")
	return nil
}
