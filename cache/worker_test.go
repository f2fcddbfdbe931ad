package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	if !cond() {
		t.Fatalf("condition not met within %s", timeout)
	}
}

func TestWorkerAppliesPaymentDetected(t *testing.T) {
	s := New[int](0)
	s.Set("corridor:us-mx:rate", 1, time.Hour)
	s.Set("corridor:eu-uk:rate", 2, time.Hour)

	w := NewWorker[int](s)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	s.Publish(PaymentDetected{CorridorID: "us-mx"})

	waitFor(t, time.Second, func() bool {
		_, ok := s.Get("corridor:us-mx:rate")
		return !ok
	})
	if _, ok := s.Get("corridor:eu-uk:rate"); !ok {
		t.Fatalf("expected unrelated corridor to survive invalidation")
	}
}

func TestWorkerSweepsExpiredOnTimer(t *testing.T) {
	s := New[int](0)
	s.Set("stale", 1, time.Millisecond)

	w := NewWorker[int](s)
	w.SetSweepInterval(5 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	waitFor(t, time.Second, func() bool {
		_, ok := s.Get("stale")
		return !ok
	})
}

func TestWorkerAppliesMemoryPressure(t *testing.T) {
	s := New[int](0)
	for i := 0; i < 5; i++ {
		s.Set(string(rune('a'+i)), i, time.Hour)
	}

	w := NewWorker[int](s)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	s.Publish(MemoryPressure{TargetSize: 2})

	waitFor(t, time.Second, func() bool {
		return s.Metrics().CurrentSize == 2
	})
}

func TestWorkerRespawnsAfterPanic(t *testing.T) {
	s := New[int](0)
	w := NewWorker[int](s)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	var calls atomic.Int64
	go w.supervise(ctx, &wg, "test", func(ctx context.Context) {
		n := calls.Add(1)
		if n == 1 {
			panic("boom")
		}
		<-ctx.Done()
	})

	waitFor(t, time.Second, func() bool { return calls.Load() >= 2 })
}
