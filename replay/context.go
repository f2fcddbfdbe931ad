package replay

// ProcessingContext accompanies an event through its handler, letting
// shared processing logic distinguish a replay pass from live ingestion
// without threading a separate flag through every handler signature.
type ProcessingContext struct {
	SessionID    *string
	Backfilling  bool
}

// NewProcessingContext returns the context used for live (non-replay)
// event processing.
func NewProcessingContext() ProcessingContext {
	return ProcessingContext{}
}

// ForReplay returns a context marking events as arriving from session
// sessionID. backfilling distinguishes a historical catch-up pass (Fresh
// and Verify sessions, where side effects like notifications are commonly
// suppressed) from a Resume pass over already-seen history.
func ForReplay(sessionID string, backfilling bool) ProcessingContext {
	return ProcessingContext{SessionID: &sessionID, Backfilling: backfilling}
}

// IsReplay reports whether this context originates from a replay session.
func (c ProcessingContext) IsReplay() bool { return c.SessionID != nil }
