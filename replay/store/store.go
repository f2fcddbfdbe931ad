// Package store provides the persistence interfaces and relational
// backends for the replay engine's five tables: contract_events,
// replay_sessions, replay_checkpoints, replay_state, processed_events.
package store

import (
	"context"
	"errors"

	"github.com/quartune/stellar-insights/replay"
)

// ErrNotFound is returned when a requested id, session, or ledger has no
// matching row.
var ErrNotFound = errors.New("not found")

// EventStore persists and queries the append-only contract event log.
type EventStore interface {
	// Append inserts event, idempotent on its canonical dedup key
	// (ledger_sequence, transaction_hash, event_type): a repeated append
	// returns success and leaves the log unchanged.
	Append(ctx context.Context, event replay.ContractEvent) error

	// GetRange returns events with low <= ledger_sequence <= high matching
	// filter, ordered by (ledger_sequence ASC, id ASC). When limit is
	// non-nil, at most *limit events are returned from the low end.
	GetRange(ctx context.Context, low, high uint64, filter replay.EventFilter, limit *int) ([]replay.ContractEvent, error)

	// CountRange returns the number of events satisfying the same bounds
	// as GetRange, without materializing them.
	CountRange(ctx context.Context, low, high uint64, filter replay.EventFilter) (uint64, error)

	// HighWaterMark returns the greatest ledger_sequence appended so far,
	// or 0 if the log is empty. Used to resolve unbounded and Latest(n)
	// ranges to a concrete upper bound at replay start.
	HighWaterMark(ctx context.Context) (uint64, error)
}

// CheckpointStore persists replay checkpoints. Save never updates an
// existing row: checkpoint history is append-only.
type CheckpointStore interface {
	Save(ctx context.Context, cp replay.Checkpoint) error
	LoadCheckpoint(ctx context.Context, id string) (*replay.Checkpoint, error)
	// Latest returns the checkpoint with the greatest CreatedAt for
	// sessionID, breaking ties by LastLedger descending then ID
	// descending. Returns ErrNotFound if the session has none.
	Latest(ctx context.Context, sessionID string) (*replay.Checkpoint, error)
	// CleanupOlderThan deletes checkpoints older than olderThanDays and
	// returns how many were removed.
	CleanupOlderThan(ctx context.Context, olderThanDays int) (int64, error)
}

// StateStore persists and rehydrates application state snapshots keyed by
// the ledger at which they were produced.
type StateStore interface {
	Persist(ctx context.Context, ledger uint64, stateJSON []byte, hash string) error
	// Load returns the stored JSON and hash for ledger, or ErrNotFound.
	Load(ctx context.Context, ledger uint64) (stateJSON []byte, hash string, err error)
}

// SessionStore persists replay session metadata for status queries across
// process restarts.
type SessionStore interface {
	SaveMetadata(ctx context.Context, meta replay.ReplayMetadata) error
	LoadMetadata(ctx context.Context, sessionID string) (*replay.ReplayMetadata, error)
}

// ProcessedEventStore is the durable half of the idempotency index: a
// StateBuilder's in-memory set is rebuilt from this on resume.
type ProcessedEventStore interface {
	IsProcessed(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID string, ledgerSequence uint64) error
	// ProcessedIDs returns every event id marked processed, for rebuilding
	// an in-memory idempotency index after a restart.
	ProcessedIDs(ctx context.Context) ([]string, error)
	// ProcessedIDsUpTo returns every event id marked processed at or
	// before ledger, for seeding a ModeResume session's idempotency index
	// scoped to the checkpoint lineage it is continuing — unlike
	// ProcessedIDs, it never pulls in bookkeeping from an unrelated
	// session's full-range run over the same store.
	ProcessedIDsUpTo(ctx context.Context, ledger uint64) ([]string, error)
}

// Store bundles every interface a relational backend must implement to
// serve the replay engine end to end.
type Store interface {
	EventStore
	CheckpointStore
	StateStore
	SessionStore
	ProcessedEventStore
	Close() error
}
