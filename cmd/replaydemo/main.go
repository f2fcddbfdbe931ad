// Package main demonstrates the deterministic replay engine: seeding a
// SQLite-backed event log with a run of oracle snapshot events, replaying
// them Fresh, printing status transitions, and verifying the final state
// hash against itself.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/quartune/stellar-insights/observe"
	"github.com/quartune/stellar-insights/replay"
	"github.com/quartune/stellar-insights/replay/engine"
	"github.com/quartune/stellar-insights/replay/store"
)

func main() {
	log.Println("Opening SQLite-backed event log...")
	backing, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer backing.Close()

	ctx := context.Background()
	seedEvents(ctx, backing)

	en := engine.New(backing, engine.WithEmitter(observe.NewLogEmitter(os.Stdout, false)))

	cfg := replay.NewReplayConfig(
		replay.WithMode(replay.ModeFresh),
		replay.WithRange(replay.FullRange()),
		replay.WithBatchSize(2),
		replay.WithCheckpointEvery(3),
	)

	log.Println("Starting replay session...")
	sessionID, err := en.Start(ctx, cfg)
	if err != nil {
		log.Fatalf("start: %v", err)
	}
	fmt.Printf("session: %s\n", sessionID)

	for {
		status, err := en.Status(sessionID)
		if err != nil {
			log.Fatalf("status: %v", err)
		}
		fmt.Printf("status: %s\n", status)

		switch status.(type) {
		case replay.StatusCompleted, replay.StatusFailed:
			goto done
		}
		time.Sleep(20 * time.Millisecond)
	}
done:

	st, err := en.State(sessionID)
	if err != nil {
		log.Fatalf("state: %v", err)
	}
	hash, err := st.ComputeHash()
	if err != nil {
		log.Fatalf("compute hash: %v", err)
	}
	fmt.Printf("final ledger: %d, snapshots: %d, hash: %s\n", st.Ledger, len(st.Snapshots), hash)

	ok, err := en.Verify(sessionID, hash)
	if err != nil {
		log.Fatalf("verify: %v", err)
	}
	fmt.Printf("self-verify: %v\n", ok)
}

func seedEvents(ctx context.Context, backing store.EventStore) {
	log.Println("Seeding ten snapshot_submitted events at ledgers 2000-2009...")
	for i := 0; i < 10; i++ {
		ledger := uint64(2000 + i)
		event := replay.ContractEvent{
			ID:              fmt.Sprintf("demo-event-%d", ledger),
			LedgerSequence:  ledger,
			TransactionHash: fmt.Sprintf("demo-tx-%d", ledger),
			ContractID:      "oracle-demo",
			EventType:       "snapshot_submitted",
			Data:            map[string]any{"epoch": ledger, "hash": fmt.Sprintf("demo-hash-%d", i)},
			Timestamp:       time.Now(),
			Network:         "testnet",
		}
		if err := backing.Append(ctx, event); err != nil {
			log.Fatalf("seed append: %v", err)
		}
	}
}
