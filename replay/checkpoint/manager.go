// Package checkpoint provides a thin convenience layer over
// store.CheckpointStore: checkpoint ID assignment, a default retention
// window, and the Save/Load/Latest/Cleanup surface the engine calls.
package checkpoint

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/quartune/stellar-insights/replay"
	"github.com/quartune/stellar-insights/replay/store"
)

// DefaultRetentionDays is how long a checkpoint is kept before
// CleanupExpired removes it, absent an explicit override.
const DefaultRetentionDays = 30

// Manager wraps a store.CheckpointStore with checkpoint construction and
// a configurable retention policy. Grounded on the teacher's
// graph/checkpoint.go Manager, adapted from a per-run keyed store to the
// replay engine's per-session checkpoint history.
type Manager struct {
	backing       store.CheckpointStore
	retentionDays int
}

// NewManager returns a Manager backed by backing, retaining checkpoints
// for DefaultRetentionDays before CleanupExpired removes them.
func NewManager(backing store.CheckpointStore) *Manager {
	return &Manager{backing: backing, retentionDays: DefaultRetentionDays}
}

// WithRetentionDays overrides the cleanup window.
func (m *Manager) WithRetentionDays(days int) *Manager {
	m.retentionDays = days
	return m
}

// Save builds and persists a new checkpoint for sessionID at lastLedger,
// carrying the given processing counters and opaque state snapshot. Every
// call creates a new row; checkpoint history is never overwritten.
func (m *Manager) Save(ctx context.Context, sessionID string, lastLedger, processed, failed uint64, stateSnapshot []byte) (replay.Checkpoint, error) {
	cp := replay.NewCheckpoint(uuid.NewString(), sessionID, lastLedger, time.Now()).
		WithStats(processed, failed).
		WithStateSnapshot(stateSnapshot)
	if err := m.backing.Save(ctx, cp); err != nil {
		return replay.Checkpoint{}, &replay.StorageError{Op: "save_checkpoint", Err: err}
	}
	return cp, nil
}

// Load returns the checkpoint with the given id.
func (m *Manager) Load(ctx context.Context, id string) (*replay.Checkpoint, error) {
	cp, err := m.backing.LoadCheckpoint(ctx, id)
	if err != nil {
		return nil, &replay.StorageError{Op: "load_checkpoint", Err: err}
	}
	return cp, nil
}

// Latest returns the most recent checkpoint for sessionID, or
// store.ErrNotFound if the session has none yet.
func (m *Manager) Latest(ctx context.Context, sessionID string) (*replay.Checkpoint, error) {
	return m.backing.Latest(ctx, sessionID)
}

// CleanupExpired deletes checkpoints older than the manager's retention
// window and reports how many were removed.
func (m *Manager) CleanupExpired(ctx context.Context) (int64, error) {
	deleted, err := m.backing.CleanupOlderThan(ctx, m.retentionDays)
	if err != nil {
		return 0, &replay.StorageError{Op: "cleanup_checkpoints", Err: err}
	}
	return deleted, nil
}
