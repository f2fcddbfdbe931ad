package cache

import (
	"testing"
	"time"
)

func TestBusPublishSubscribeDeliversInOrder(t *testing.T) {
	b := NewBus(4)
	sub := b.Subscribe()

	b.Publish(AdminInvalidate{Pattern: "a"})
	b.Publish(AdminInvalidate{Pattern: "b"})

	e1, lag1, ok1 := sub.Recv()
	e2, lag2, ok2 := sub.Recv()
	if !ok1 || !ok2 {
		t.Fatalf("expected both receives to succeed")
	}
	if lag1 != 0 || lag2 != 0 {
		t.Fatalf("expected no lag, got %d and %d", lag1, lag2)
	}
	if e1.(AdminInvalidate).Pattern != "a" || e2.(AdminInvalidate).Pattern != "b" {
		t.Fatalf("expected events in publish order, got %v then %v", e1, e2)
	}
}

func TestBusOverwriteReportsLag(t *testing.T) {
	b := NewBus(2)
	sub := b.Subscribe()

	b.Publish(AdminInvalidate{Pattern: "1"})
	b.Publish(AdminInvalidate{Pattern: "2"})
	b.Publish(AdminInvalidate{Pattern: "3"})

	_, lag, ok := sub.Recv()
	if !ok {
		t.Fatalf("expected a receive to succeed")
	}
	if lag != 1 {
		t.Fatalf("expected lag of 1 missed event, got %d", lag)
	}
}

func TestBusCloseUnblocksSubscribers(t *testing.T) {
	b := NewBus(4)
	sub := b.Subscribe()

	done := make(chan bool, 1)
	go func() {
		_, _, ok := sub.Recv()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	b.Close()

	select {
	case ok := <-done:
		if ok {
			t.Fatalf("expected Recv to report ok=false after close")
		}
	case <-time.After(time.Second):
		t.Fatalf("Recv did not unblock after Close")
	}
}
