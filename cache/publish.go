package cache

// Publish sends event to every subscriber of this store's bus, including
// its own background worker (see Worker in worker.go). Non-blocking and
// lossy under subscriber lag, by design (spec.md §5).
func (s *Store[V]) Publish(event InvalidationEvent) {
	s.bus.Publish(event)
}

// Subscribe returns a new Subscriber observing this store's invalidation
// bus from the current moment forward.
func (s *Store[V]) Subscribe() *Subscriber {
	return s.bus.Subscribe()
}
