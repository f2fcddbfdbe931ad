// Package replay implements the deterministic event replay engine: an
// append-only contract event log, idempotent state folding, checkpointing,
// and canonical state-hash verification.
package replay

import (
	"fmt"
	"time"
)

// ContractEvent is the fundamental unit of the event log. Two events
// sharing (LedgerSequence, TransactionHash, EventType) are considered the
// same event; events are immutable once appended.
type ContractEvent struct {
	ID               string
	LedgerSequence   uint64
	TransactionHash  string
	ContractID       string
	EventType        string
	Data             map[string]any
	Timestamp        time.Time
	Network          string
}

// UniqueID returns the canonical deduplication key for this event.
func (e ContractEvent) UniqueID() string {
	return fmt.Sprintf("%d:%s:%s", e.LedgerSequence, e.TransactionHash, e.EventType)
}

// MatchesFilter reports whether e satisfies every dimension filter sets. A
// nil or empty dimension on filter means "accept any".
func (e ContractEvent) MatchesFilter(filter EventFilter) bool {
	if len(filter.ContractIDs) > 0 && !containsString(filter.ContractIDs, e.ContractID) {
		return false
	}
	if len(filter.EventTypes) > 0 && !containsString(filter.EventTypes, e.EventType) {
		return false
	}
	if filter.Network != "" && filter.Network != e.Network {
		return false
	}
	return true
}

// EventFilter narrows a range query to events matching every non-nil/
// non-empty dimension.
type EventFilter struct {
	ContractIDs []string
	EventTypes  []string
	Network     string
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
