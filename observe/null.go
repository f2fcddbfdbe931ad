package observe

import "context"

// NullEmitter discards every event. Zero overhead, safe for concurrent use.
type NullEmitter struct{}

// NewNullEmitter returns an Emitter that discards all events.
func NewNullEmitter() *NullEmitter { return &NullEmitter{} }

// Emit is a no-op.
func (n *NullEmitter) Emit(Event) {}

// EmitBatch is a no-op.
func (n *NullEmitter) EmitBatch(context.Context, []Event) error { return nil }

// Flush is a no-op.
func (n *NullEmitter) Flush(context.Context) error { return nil }
