package observe

import (
	"context"
	"sync"
)

// BufferedEmitter stores events in memory, grouped by SessionID, for
// post-hoc inspection in tests and debugging tools.
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event
}

// NewBufferedEmitter creates an empty BufferedEmitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{events: make(map[string][]Event)}
}

// Emit appends event to its session's history.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[event.SessionID] = append(b.events[event.SessionID], event)
}

// EmitBatch appends every event in order.
func (b *BufferedEmitter) EmitBatch(_ context.Context, events []Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range events {
		b.events[e.SessionID] = append(b.events[e.SessionID], e)
	}
	return nil
}

// Flush is a no-op: BufferedEmitter never discards events on its own.
func (b *BufferedEmitter) Flush(context.Context) error { return nil }

// History returns a copy of every event recorded for sessionID, in emission
// order. Returns an empty (non-nil) slice if none were recorded.
func (b *BufferedEmitter) History(sessionID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	events := b.events[sessionID]
	out := make([]Event, len(events))
	copy(out, events)
	return out
}

// Clear discards all recorded history for sessionID.
func (b *BufferedEmitter) Clear(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.events, sessionID)
}
