package state

import "testing"

func TestCanonicalJSONIsStableAcrossInsertionOrder(t *testing.T) {
	a := NewApplicationState()
	a.Ledger = 42
	a.Snapshots[3] = Snapshot{Hash: "c"}
	a.Snapshots[1] = Snapshot{Hash: "a"}
	a.Snapshots[2] = Snapshot{Hash: "b"}

	b := NewApplicationState()
	b.Ledger = 42
	b.Snapshots[1] = Snapshot{Hash: "a"}
	b.Snapshots[2] = Snapshot{Hash: "b"}
	b.Snapshots[3] = Snapshot{Hash: "c"}

	jsonA, err := a.CanonicalJSON()
	if err != nil {
		t.Fatalf("CanonicalJSON a: %v", err)
	}
	jsonB, err := b.CanonicalJSON()
	if err != nil {
		t.Fatalf("CanonicalJSON b: %v", err)
	}
	if string(jsonA) != string(jsonB) {
		t.Fatalf("expected identical canonical JSON regardless of map insertion order, got:\n%s\nvs\n%s", jsonA, jsonB)
	}
}

func TestComputeHashChangesWithContent(t *testing.T) {
	a := NewApplicationState()
	a.Ledger = 1
	a.Snapshots[1] = Snapshot{Hash: "x"}

	b := a.Clone()
	b.Snapshots[1] = Snapshot{Hash: "y"}

	hashA, err := a.ComputeHash()
	if err != nil {
		t.Fatalf("ComputeHash a: %v", err)
	}
	hashB, err := b.ComputeHash()
	if err != nil {
		t.Fatalf("ComputeHash b: %v", err)
	}
	if hashA == hashB {
		t.Fatalf("expected different hashes for different snapshot content")
	}
}

func TestDecodeApplicationStateRoundTrip(t *testing.T) {
	original := NewApplicationState()
	original.Ledger = 77
	ledger := uint64(900)
	txHash := "tx-abc"
	original.Snapshots[9] = Snapshot{Hash: "deadbeef", LedgerSequence: &ledger, TransactionHash: &txHash}

	canonical, err := original.CanonicalJSON()
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}

	decoded, err := decodeApplicationState(canonical)
	if err != nil {
		t.Fatalf("decodeApplicationState: %v", err)
	}
	if decoded.Ledger != 77 {
		t.Fatalf("expected ledger 77, got %d", decoded.Ledger)
	}
	snap, ok := decoded.Snapshots[9]
	if !ok {
		t.Fatalf("expected snapshot at epoch 9")
	}
	if snap.Hash != "deadbeef" || snap.LedgerSequence == nil || *snap.LedgerSequence != 900 {
		t.Fatalf("unexpected decoded snapshot: %+v", snap)
	}
	if snap.TransactionHash == nil || *snap.TransactionHash != "tx-abc" {
		t.Fatalf("expected transaction hash to round-trip, got %+v", snap.TransactionHash)
	}

	rehash, err := decoded.ComputeHash()
	if err != nil {
		t.Fatalf("ComputeHash decoded: %v", err)
	}
	originalHash, err := original.ComputeHash()
	if err != nil {
		t.Fatalf("ComputeHash original: %v", err)
	}
	if rehash != originalHash {
		t.Fatalf("expected decode-then-hash to match original hash, got %s vs %s", rehash, originalHash)
	}
}
