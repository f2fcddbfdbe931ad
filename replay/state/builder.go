package state

import (
	"context"
	"fmt"

	"github.com/quartune/stellar-insights/replay"
	"github.com/quartune/stellar-insights/replay/store"
)

// Handler mutates state in response to event. A returned error rejects
// the event: neither the idempotency index nor state.Ledger advance.
// pctx distinguishes a replay pass from live ingestion (replay.ForReplay
// vs. replay.NewProcessingContext) so a handler that also has side
// effects outside state — e.g. publishing a cache invalidation — can
// suppress them while backfilling history.
type Handler func(state *ApplicationState, event replay.ContractEvent, pctx replay.ProcessingContext) error

// ApplyResult reports what ApplyEvent did, per spec.md §4.3's
// {success, skipped, error?} contract.
type ApplyResult struct {
	Success bool
	Skipped bool
}

// StateBuilder folds events into an ApplicationState with idempotent,
// deterministic semantics: apply_event first checks the idempotency
// index, then dispatches by event type, then advances the ledger
// high-water mark only on success.
//
// Not safe for concurrent ApplyEvent calls against the same instance —
// spec.md §5 states state mutation is not reentrant.
type StateBuilder struct {
	st        *ApplicationState
	processed map[string]struct{}
	handlers  map[string]Handler
	backing   store.StateStore
}

// NewStateBuilder returns a builder with no applied events, backed by
// backing for PersistState/LoadState/VerifyState. The default
// "snapshot_submitted" handler is registered; use RegisterHandler to add
// or override handlers.
func NewStateBuilder(backing store.StateStore) *StateBuilder {
	b := &StateBuilder{
		st:        NewApplicationState(),
		processed: make(map[string]struct{}),
		handlers:  make(map[string]Handler),
		backing:   backing,
	}
	b.RegisterHandler("snapshot_submitted", snapshotSubmittedHandler)
	return b
}

// RegisterHandler installs or replaces the handler for eventType.
func (b *StateBuilder) RegisterHandler(eventType string, h Handler) {
	b.handlers[eventType] = h
}

// State returns the builder's current accumulated state.
func (b *StateBuilder) State() *ApplicationState { return b.st }

// RestoreFrom replaces the builder's accumulated state with the decoded
// snapshot carried by a checkpoint, without touching the idempotency
// index. Used by ModeResume to rehydrate the pre-checkpoint application
// state — Snapshots, Tables, and Ledger — before the batch loop resumes
// folding events past the checkpoint's LastLedger. SeedProcessed must be
// called separately (scoped to the same checkpoint) to rebuild the
// matching idempotency index.
func (b *StateBuilder) RestoreFrom(snapshot []byte) error {
	st, err := decodeApplicationState(snapshot)
	if err != nil {
		return fmt.Errorf("restore state snapshot: %w", err)
	}
	b.st = st
	return nil
}

// SeedProcessed marks every id in ids as already folded, without
// replaying them. Used to rebuild the in-memory idempotency index from
// store.ProcessedEventStore after a process restart.
func (b *StateBuilder) SeedProcessed(ids []string) {
	for _, id := range ids {
		b.processed[id] = struct{}{}
	}
}

// ApplyEvent folds event into state under the live-processing context.
// Equivalent to ApplyEventContext(event, replay.NewProcessingContext()).
func (b *StateBuilder) ApplyEvent(event replay.ContractEvent) (ApplyResult, error) {
	return b.ApplyEventContext(event, replay.NewProcessingContext())
}

// ApplyEventContext folds event into state. Idempotent: a repeated event
// (by ContractEvent.ID) is skipped and leaves state untouched. Unknown
// event types are accepted silently and counted as applied without a
// state change, per spec.md §4.3's forward-compatibility rule. pctx is
// passed through to the dispatched handler unchanged.
func (b *StateBuilder) ApplyEventContext(event replay.ContractEvent, pctx replay.ProcessingContext) (ApplyResult, error) {
	if _, seen := b.processed[event.ID]; seen {
		return ApplyResult{Skipped: true}, nil
	}

	if handler, ok := b.handlers[event.EventType]; ok {
		if err := handler(b.st, event, pctx); err != nil {
			return ApplyResult{}, &replay.ProcessingError{EventID: event.ID, Reason: err.Error()}
		}
	}

	b.processed[event.ID] = struct{}{}
	if event.LedgerSequence > b.st.Ledger {
		b.st.Ledger = event.LedgerSequence
	}
	return ApplyResult{Success: true}, nil
}

// PersistState writes the current state to the backing StateStore under
// state.Ledger, alongside its canonical hash.
func (b *StateBuilder) PersistState(ctx context.Context) error {
	canonical, err := b.st.CanonicalJSON()
	if err != nil {
		return fmt.Errorf("canonicalize state: %w", err)
	}
	hash, err := b.st.ComputeHash()
	if err != nil {
		return fmt.Errorf("compute state hash: %w", err)
	}
	if err := b.backing.Persist(ctx, b.st.Ledger, canonical, hash); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	return nil
}

// LoadState replaces the builder's state with the snapshot stored at
// ledger, rejecting with *replay.StateCorruption if the recomputed hash
// disagrees with the stored one. Returns false if no snapshot exists at
// ledger.
func (b *StateBuilder) LoadState(ctx context.Context, ledger uint64) (bool, error) {
	stateJSON, storedHash, err := b.backing.Load(ctx, ledger)
	if err == store.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load state: %w", err)
	}

	loaded, err := decodeApplicationState(stateJSON)
	if err != nil {
		return false, fmt.Errorf("decode state: %w", err)
	}
	gotHash, err := loaded.ComputeHash()
	if err != nil {
		return false, fmt.Errorf("recompute state hash: %w", err)
	}
	if gotHash != storedHash {
		return false, &replay.StateCorruption{Ledger: ledger, Stored: storedHash, Got: gotHash}
	}

	b.st = loaded
	return true, nil
}

// VerifyState recomputes the hash of the snapshot stored at ledger and
// reports whether it matches the stored hash, without mutating the
// builder's current state.
func (b *StateBuilder) VerifyState(ctx context.Context, ledger uint64) (bool, error) {
	stateJSON, storedHash, err := b.backing.Load(ctx, ledger)
	if err != nil {
		return false, fmt.Errorf("load state: %w", err)
	}
	loaded, err := decodeApplicationState(stateJSON)
	if err != nil {
		return false, fmt.Errorf("decode state: %w", err)
	}
	gotHash, err := loaded.ComputeHash()
	if err != nil {
		return false, fmt.Errorf("recompute state hash: %w", err)
	}
	return gotHash == storedHash, nil
}
