package replay

import (
	"testing"
	"time"
)

func TestContractEventUniqueID(t *testing.T) {
	e := ContractEvent{LedgerSequence: 1000, TransactionHash: "tx-1", EventType: "snapshot_submitted"}
	if got, want := e.UniqueID(), "1000:tx-1:snapshot_submitted"; got != want {
		t.Fatalf("UniqueID() = %q, want %q", got, want)
	}
}

func TestMatchesFilter(t *testing.T) {
	e := ContractEvent{ContractID: "contract-a", EventType: "snapshot_submitted", Network: "testnet"}

	if !e.MatchesFilter(EventFilter{}) {
		t.Fatalf("expected empty filter to match everything")
	}
	if !e.MatchesFilter(EventFilter{ContractIDs: []string{"contract-a", "contract-b"}}) {
		t.Fatalf("expected contract-a to match")
	}
	if e.MatchesFilter(EventFilter{ContractIDs: []string{"contract-b"}}) {
		t.Fatalf("expected contract-b-only filter to exclude contract-a")
	}
	if e.MatchesFilter(EventFilter{Network: "mainnet"}) {
		t.Fatalf("expected network mismatch to exclude event")
	}
}

func TestReplayRangeFromTo(t *testing.T) {
	r := FromToRange(100, 200)

	if !r.Contains(150, 1000, nil) {
		t.Fatalf("expected 150 to be contained")
	}
	if r.Contains(50, 1000, nil) {
		t.Fatalf("expected 50 to be excluded")
	}
	if r.Contains(250, 1000, nil) {
		t.Fatalf("expected 250 to be excluded")
	}

	start := r.StartLedger(1000, nil)
	if start == nil || *start != 100 {
		t.Fatalf("expected start ledger 100, got %v", start)
	}
	end := r.EndLedger(1000)
	if end == nil || *end != 200 {
		t.Fatalf("expected end ledger 200, got %v", end)
	}
}

func TestReplayRangeResumeOverridesStart(t *testing.T) {
	r := FromToRange(100, 200)
	resumeFrom := uint64(150)

	if r.Contains(120, 1000, &resumeFrom) {
		t.Fatalf("expected ledger before the resume point to be excluded")
	}
	if !r.Contains(160, 1000, &resumeFrom) {
		t.Fatalf("expected ledger after the resume point to be included")
	}
}

func TestReplayConfigValidation(t *testing.T) {
	valid := DefaultReplayConfig()
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected default config to validate, got %v", err)
	}

	invalid := NewReplayConfig(WithBatchSize(0))
	if err := invalid.Validate(); err == nil {
		t.Fatalf("expected batch_size=0 to fail validation")
	}

	badRange := NewReplayConfig(WithRange(FromToRange(200, 100)))
	if err := badRange.Validate(); err == nil {
		t.Fatalf("expected end < start to fail validation")
	}

	verifyMissingHash := NewReplayConfig(WithMode(ModeVerify))
	if err := verifyMissingHash.Validate(); err == nil {
		t.Fatalf("expected verify mode without expected_hash to fail validation")
	}

	verifyWithHash := NewReplayConfig(WithMode(ModeVerify), WithExpectedHash("deadbeef"))
	if err := verifyWithHash.Validate(); err != nil {
		t.Fatalf("expected verify mode with expected_hash to validate, got %v", err)
	}
}

func TestProcessingContext(t *testing.T) {
	ctx := NewProcessingContext()
	if ctx.IsReplay() {
		t.Fatalf("expected live context to report IsReplay() == false")
	}

	replayCtx := ForReplay("session-1", false)
	if !replayCtx.IsReplay() {
		t.Fatalf("expected replay context to report IsReplay() == true")
	}
	if replayCtx.SessionID == nil || *replayCtx.SessionID != "session-1" {
		t.Fatalf("expected session id to be session-1, got %v", replayCtx.SessionID)
	}
}

func TestCheckpointBuilders(t *testing.T) {
	cp := NewCheckpoint("cp-1", "session-1", 1000, time.Now()).
		WithStats(100, 5).
		WithMetadata("source", "test")

	if cp.EventsProcessed != 100 || cp.EventsFailed != 5 {
		t.Fatalf("expected stats to be set, got %+v", cp)
	}
	if cp.Metadata["source"] != "test" {
		t.Fatalf("expected metadata to be set, got %+v", cp.Metadata)
	}
}

func TestStatusStrings(t *testing.T) {
	cases := []struct {
		status ReplayStatus
		want   string
	}{
		{StatusPending{}, "Pending"},
		{StatusInProgress{CurrentLedger: 5, EventsProcessed: 2, EventsFailed: 1}, "In Progress (ledger: 5, processed: 2, failed: 1)"},
		{StatusPaused{LastLedger: 10, EventsProcessed: 4}, "Paused (last ledger: 10, processed: 4)"},
	}
	for _, c := range cases {
		if got := c.status.String(); got != c.want {
			t.Fatalf("String() = %q, want %q", got, c.want)
		}
	}
}
