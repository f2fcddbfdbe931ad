package observe

import "context"

// Emitter receives observability events from the cache and replay engine.
//
// Implementations must be non-blocking and thread-safe: Emit may be called
// concurrently from the cache's background worker, the replay engine's
// batch loop, and the checkpoint manager all at once.
type Emitter interface {
	// Emit records a single event. It must not block the caller and must
	// not panic; a backend failure is the emitter's problem to swallow or
	// log, not the caller's.
	Emit(event Event)

	// EmitBatch records multiple events in one call, preserving order.
	EmitBatch(ctx context.Context, events []Event) error

	// Flush blocks until any buffered events have been delivered, or ctx
	// is done. Safe to call multiple times.
	Flush(ctx context.Context) error
}
