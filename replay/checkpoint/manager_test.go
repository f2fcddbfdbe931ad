package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/quartune/stellar-insights/replay/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveAndLatest(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newTestStore(t))

	if _, err := m.Save(ctx, "session-1", 1000, 10, 0, nil); err != nil {
		t.Fatalf("Save: %v", err)
	}
	time.Sleep(time.Millisecond)
	second, err := m.Save(ctx, "session-1", 2000, 20, 1, []byte(`{"ledger":2000}`))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	latest, err := m.Latest(ctx, "session-1")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.ID != second.ID {
		t.Fatalf("expected latest checkpoint to be %q, got %q", second.ID, latest.ID)
	}
	if latest.LastLedger != 2000 || latest.EventsProcessed != 20 {
		t.Fatalf("unexpected latest checkpoint: %+v", latest)
	}
}

func TestLoadByID(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newTestStore(t))

	cp, err := m.Save(ctx, "session-2", 500, 5, 0, nil)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := m.Load(ctx, cp.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.SessionID != "session-2" || loaded.LastLedger != 500 {
		t.Fatalf("unexpected loaded checkpoint: %+v", loaded)
	}
}

func TestCleanupExpiredRespectsRetentionOverride(t *testing.T) {
	ctx := context.Background()
	backing := newTestStore(t)
	m := NewManager(backing).WithRetentionDays(1)

	if _, err := m.Save(ctx, "session-3", 100, 1, 0, nil); err != nil {
		t.Fatalf("Save: %v", err)
	}

	deleted, err := m.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("CleanupExpired: %v", err)
	}
	if deleted != 0 {
		t.Fatalf("expected a fresh checkpoint to survive a 1-day retention window, deleted %d", deleted)
	}
}
