package state

import (
	"fmt"

	"github.com/quartune/stellar-insights/cache"
	"github.com/quartune/stellar-insights/replay"
)

// CacheInvalidator is the minimal surface a handler needs to publish a
// cache invalidation event. Satisfied by *cache.Store[V] for any V — the
// handler never touches cached values directly, only the bus.
type CacheInvalidator interface {
	Publish(cache.InvalidationEvent)
}

// NewPaymentDetectedHandler returns a Handler for "payment_detected"
// contract events. It records the corridor's most recent payment ledger
// in state.Tables and, for live ingestion only, publishes a
// cache.PaymentDetected invalidation so the corridor's cached rate entry
// (e.g. "corridor:<id>:rates") is dropped once the cache's background
// worker consumes the event from the bus.
//
// Per SPEC_FULL.md §12, a replay pass (pctx.IsReplay()) never publishes:
// a historical Fresh/Resume/Verify run reconstructing past state must not
// perturb the live cache with invalidations for events the cache already
// settled long ago.
func NewPaymentDetectedHandler(invalidator CacheInvalidator) Handler {
	return func(st *ApplicationState, event replay.ContractEvent, pctx replay.ProcessingContext) error {
		corridorID, ok := event.Data["corridor_id"].(string)
		if !ok || corridorID == "" {
			return fmt.Errorf("payment_detected event %s missing corridor_id", event.ID)
		}

		if st.Tables == nil {
			st.Tables = make(map[string]any)
		}
		payments, _ := st.Tables["payments"].(map[string]uint64)
		if payments == nil {
			payments = make(map[string]uint64)
			st.Tables["payments"] = payments
		}
		payments[corridorID] = event.LedgerSequence

		if !pctx.IsReplay() {
			invalidator.Publish(cache.PaymentDetected{CorridorID: corridorID})
		}
		return nil
	}
}
