package engine

import "fmt"

// SessionNotFound indicates a session id wasn't found in this engine's
// registry — either never started, or started against a different
// process instance.
type SessionNotFound struct {
	SessionID string
}

func (e *SessionNotFound) Error() string {
	return fmt.Sprintf("replay session not found: %s", e.SessionID)
}
