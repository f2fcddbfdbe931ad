package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// warmState deduplicates concurrent loads for the same key so a cache
// stampede on a cold or just-invalidated key runs the loader once, not
// once per waiting caller.
type warmState[V any] struct {
	group singleflight.Group
}

// Loader fetches the value for a cold key, e.g. from a database or
// upstream service.
type Loader[V any] func(ctx context.Context, key string) (V, error)

// GetOrWarm returns the cached value for key if present and live. On a
// miss, it calls load to populate the entry with ttl, collapsing
// concurrent misses for the same key into a single load call via
// singleflight; every caller waiting on that in-flight load receives its
// result, but only the call that actually ran the loader counts toward
// the warm_ups metric.
func (s *Store[V]) GetOrWarm(ctx context.Context, key string, ttl time.Duration, load Loader[V]) (V, error) {
	if v, ok := s.Get(key); ok {
		return v, nil
	}

	result, err, _ := s.warm.group.Do(key, func() (any, error) {
		v, loadErr := load(ctx, key)
		if loadErr != nil {
			return v, loadErr
		}
		s.Set(key, v, ttl)
		s.metrics.addWarmUps(1)
		return v, nil
	})

	var zero V
	if err != nil {
		return zero, err
	}
	v, ok := result.(V)
	if !ok {
		return zero, nil
	}
	return v, nil
}
