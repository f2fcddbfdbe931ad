package cache

import (
	"testing"
	"time"
)

func TestNewConfigAppliesOptionsOverDefaults(t *testing.T) {
	cfg := NewConfig(
		WithCapacity(500),
		WithDefaultTTL(30*time.Second),
		WithSweepInterval(10*time.Second),
		WithBusBuffer(64),
	)

	if cfg.Capacity != 500 || cfg.DefaultTTL != 30*time.Second || cfg.SweepInterval != 10*time.Second || cfg.BusBuffer != 64 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestNewFromConfigWiresStoreAndWorker(t *testing.T) {
	cfg := NewConfig(WithCapacity(2), WithBusBuffer(8))
	store, worker := NewFromConfig[int](cfg)

	if store.capacity != 2 {
		t.Fatalf("expected store capacity 2, got %d", store.capacity)
	}
	if worker.sweepInterval != cfg.SweepInterval {
		t.Fatalf("expected worker sweep interval to match config")
	}
}
