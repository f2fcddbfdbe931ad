package replay

import "time"

// Checkpoint captures a session's resumable progress: the inclusive
// high-water mark of successful processing, running counters, an opaque
// serialized state snapshot, and a free-form metadata map.
//
// Grounded on the teacher's Checkpoint[S] (graph/checkpoint.go), adapted
// from a generic per-run execution snapshot to the replay domain's
// per-session ledger snapshot.
type Checkpoint struct {
	ID              string
	SessionID       string
	LastLedger      uint64
	EventsProcessed uint64
	EventsFailed    uint64
	StateSnapshot   []byte
	Metadata        map[string]string
	CreatedAt       time.Time
}

// NewCheckpoint builds a bare checkpoint for sessionID at lastLedger. Use
// WithStats/WithMetadata to fill in the rest before Manager.Save.
func NewCheckpoint(id, sessionID string, lastLedger uint64, createdAt time.Time) Checkpoint {
	return Checkpoint{
		ID:         id,
		SessionID:  sessionID,
		LastLedger: lastLedger,
		Metadata:   make(map[string]string),
		CreatedAt:  createdAt,
	}
}

// WithStats returns a copy of c with its processing counters set.
func (c Checkpoint) WithStats(processed, failed uint64) Checkpoint {
	c.EventsProcessed = processed
	c.EventsFailed = failed
	return c
}

// WithMetadata returns a copy of c with key=value merged into its
// metadata map.
func (c Checkpoint) WithMetadata(key, value string) Checkpoint {
	merged := make(map[string]string, len(c.Metadata)+1)
	for k, v := range c.Metadata {
		merged[k] = v
	}
	merged[key] = value
	c.Metadata = merged
	return c
}

// WithStateSnapshot returns a copy of c carrying the given serialized
// state snapshot.
func (c Checkpoint) WithStateSnapshot(snapshot []byte) Checkpoint {
	c.StateSnapshot = snapshot
	return c
}
