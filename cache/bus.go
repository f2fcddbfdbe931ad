package cache

import "sync"

// DefaultBusBuffer is the default bounded ring-buffer capacity for the
// invalidation event bus (spec.md §5).
const DefaultBusBuffer = 256

// Bus is a one-writer-many-reader broadcast channel with a bounded ring
// buffer. Publishers never block: when the buffer is full, the oldest
// undelivered event is overwritten and every subscriber still behind that
// slot observes a lag on its next Recv.
//
// Go's stdlib channel has no native broadcast-with-lag primitive, so this
// is implemented directly on a ring buffer plus per-subscriber cursor, per
// the design note in spec.md §9.
type Bus struct {
	mu   sync.Mutex
	cond *sync.Cond
	ring []InvalidationEvent
	// next is the absolute sequence number that will be written to
	// ring[next%len(ring)] on the next Publish.
	next uint64
	closed bool
}

// NewBus creates a Bus with the given ring buffer size. Size <= 0 uses
// DefaultBusBuffer.
func NewBus(size int) *Bus {
	if size <= 0 {
		size = DefaultBusBuffer
	}
	b := &Bus{ring: make([]InvalidationEvent, size)}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Publish appends event to the ring, never blocking. If the buffer is
// full, the oldest entry is overwritten.
func (b *Bus) Publish(event InvalidationEvent) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.ring[b.next%uint64(len(b.ring))] = event
	b.next++
	b.mu.Unlock()
	b.cond.Broadcast()
}

// Close stops the bus; subsequent Publish calls are dropped and blocked
// subscribers are woken with ok=false.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.cond.Broadcast()
}

// Subscriber reads InvalidationEvents from a Bus at its own pace, falling
// behind (and being told so via a lag count) rather than blocking the
// publisher.
type Subscriber struct {
	bus    *Bus
	cursor uint64
}

// Subscribe returns a new Subscriber starting from the current head of
// the bus; it will not see events published before this call.
func (b *Bus) Subscribe() *Subscriber {
	b.mu.Lock()
	cursor := b.next
	b.mu.Unlock()
	return &Subscriber{bus: b, cursor: cursor}
}

// Recv blocks until an event is available, the bus is closed, or the
// subscriber was lagged past the ring buffer's retention window. lag is
// the number of events the subscriber missed (0 if none); ok is false
// only when the bus has been closed and no more events remain.
func (b *Bus) recvFrom(s *Subscriber) (event InvalidationEvent, lag uint64, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s.cursor == b.next && !b.closed {
		b.cond.Wait()
	}
	if s.cursor == b.next && b.closed {
		return nil, 0, false
	}

	size := uint64(len(b.ring))
	oldest := uint64(0)
	if b.next > size {
		oldest = b.next - size
	}
	if s.cursor < oldest {
		lag = oldest - s.cursor
		s.cursor = oldest
	}

	event = b.ring[s.cursor%size]
	s.cursor++
	return event, lag, true
}

// Recv reads the next event for this subscriber, per Bus.recvFrom.
func (s *Subscriber) Recv() (InvalidationEvent, uint64, bool) {
	return s.bus.recvFrom(s)
}
