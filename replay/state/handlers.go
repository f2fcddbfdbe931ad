package state

import (
	"fmt"

	"github.com/quartune/stellar-insights/replay"
)

// snapshotSubmittedHandler folds a "snapshot_submitted" contract event into
// state.Snapshots, keyed by the epoch carried in event.Data. Rejects
// events missing a well-formed epoch or hash rather than silently
// dropping them. Takes no action based on pctx: folding state is
// identical whether the event arrives live or from a replay session,
// unlike a handler with external side effects (e.g. cache invalidation)
// that would check pctx.IsReplay() to suppress them during backfill.
func snapshotSubmittedHandler(st *ApplicationState, event replay.ContractEvent, pctx replay.ProcessingContext) error {
	epoch, ok := toUint64(event.Data["epoch"])
	if !ok {
		return fmt.Errorf("snapshot_submitted event %s missing numeric epoch", event.ID)
	}
	hash, ok := event.Data["hash"].(string)
	if !ok || hash == "" {
		return fmt.Errorf("snapshot_submitted event %s missing hash", event.ID)
	}

	snap := Snapshot{Hash: hash}
	ledger := event.LedgerSequence
	snap.LedgerSequence = &ledger
	if event.TransactionHash != "" {
		txHash := event.TransactionHash
		snap.TransactionHash = &txHash
	}
	st.Snapshots[epoch] = snap
	return nil
}

// toUint64 converts the decoded-JSON numeric forms (float64 from
// encoding/json, plus plain Go integers as tests construct events
// directly) into a uint64 epoch.
func toUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case float64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case uint64:
		return n, true
	case int64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	default:
		return 0, false
	}
}
