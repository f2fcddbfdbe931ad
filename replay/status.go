package replay

import (
	"encoding/json"
	"fmt"
	"time"
)

// ReplayStatus is the closed set of states a session can be in. Go
// interface + concrete structs stand in for the Rust tagged enum; the
// unexported method seals the set.
type ReplayStatus interface {
	replayStatus()
	fmt.Stringer
}

// StatusPending is the initial state before the first batch runs.
type StatusPending struct{}

func (StatusPending) replayStatus() {}
func (StatusPending) String() string { return "Pending" }

// StatusInProgress tracks the session's live progress.
type StatusInProgress struct {
	CurrentLedger   uint64
	EventsProcessed uint64
	EventsFailed    uint64
}

func (StatusInProgress) replayStatus() {}
func (s StatusInProgress) String() string {
	return fmt.Sprintf("In Progress (ledger: %d, processed: %d, failed: %d)", s.CurrentLedger, s.EventsProcessed, s.EventsFailed)
}

// StatusCompleted is the terminal success state.
type StatusCompleted struct {
	EventsProcessed uint64
	EventsFailed    uint64
	Duration        time.Duration
}

func (StatusCompleted) replayStatus() {}
func (s StatusCompleted) String() string {
	return fmt.Sprintf("Completed (processed: %d, failed: %d, duration: %s)", s.EventsProcessed, s.EventsFailed, s.Duration)
}

// StatusFailed is the terminal failure state.
type StatusFailed struct {
	Err        error
	LastLedger *uint64
}

func (StatusFailed) replayStatus() {}
func (s StatusFailed) String() string {
	return fmt.Sprintf("Failed: %v (last ledger: %v)", s.Err, s.LastLedger)
}

// StatusPaused is a resumable suspension point.
type StatusPaused struct {
	LastLedger      uint64
	EventsProcessed uint64
}

func (StatusPaused) replayStatus() {}
func (s StatusPaused) String() string {
	return fmt.Sprintf("Paused (last ledger: %d, processed: %d)", s.LastLedger, s.EventsProcessed)
}

type statusDTO struct {
	Kind            string     `json:"kind"`
	CurrentLedger   uint64     `json:"current_ledger,omitempty"`
	EventsProcessed uint64     `json:"events_processed,omitempty"`
	EventsFailed    uint64     `json:"events_failed,omitempty"`
	DurationMS      int64      `json:"duration_ms,omitempty"`
	Error           string     `json:"error,omitempty"`
	LastLedger      *uint64    `json:"last_ledger,omitempty"`
}

// EncodeStatus serializes a ReplayStatus for storage in replay_sessions.status.
func EncodeStatus(s ReplayStatus) ([]byte, error) {
	var dto statusDTO
	switch v := s.(type) {
	case StatusPending:
		dto.Kind = "pending"
	case StatusInProgress:
		dto.Kind = "in_progress"
		dto.CurrentLedger, dto.EventsProcessed, dto.EventsFailed = v.CurrentLedger, v.EventsProcessed, v.EventsFailed
	case StatusCompleted:
		dto.Kind = "completed"
		dto.EventsProcessed, dto.EventsFailed = v.EventsProcessed, v.EventsFailed
		dto.DurationMS = v.Duration.Milliseconds()
	case StatusFailed:
		dto.Kind = "failed"
		dto.Error = v.Err.Error()
		dto.LastLedger = v.LastLedger
	case StatusPaused:
		dto.Kind = "paused"
		dto.LastLedger = &v.LastLedger
		dto.EventsProcessed = v.EventsProcessed
	default:
		return nil, fmt.Errorf("unknown ReplayStatus variant %T", s)
	}
	return json.Marshal(dto)
}

// DecodeStatus restores a ReplayStatus from EncodeStatus's wire form. A
// decoded StatusFailed carries a generic error (the original error type
// is not preserved across the wire).
func DecodeStatus(data []byte) (ReplayStatus, error) {
	var dto statusDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, err
	}
	switch dto.Kind {
	case "pending":
		return StatusPending{}, nil
	case "in_progress":
		return StatusInProgress{CurrentLedger: dto.CurrentLedger, EventsProcessed: dto.EventsProcessed, EventsFailed: dto.EventsFailed}, nil
	case "completed":
		return StatusCompleted{EventsProcessed: dto.EventsProcessed, EventsFailed: dto.EventsFailed, Duration: time.Duration(dto.DurationMS) * time.Millisecond}, nil
	case "failed":
		return StatusFailed{Err: fmt.Errorf("%s", dto.Error), LastLedger: dto.LastLedger}, nil
	case "paused":
		last := uint64(0)
		if dto.LastLedger != nil {
			last = *dto.LastLedger
		}
		return StatusPaused{LastLedger: last, EventsProcessed: dto.EventsProcessed}, nil
	default:
		return nil, fmt.Errorf("unknown status kind %q", dto.Kind)
	}
}

// ReplaySession is the mutable record of one replay run.
type ReplaySession struct {
	SessionID string
	Config    ReplayConfig
	Status    ReplayStatus
	StartedAt time.Time
	EndedAt   *time.Time
}

// ReplayMetadata is the persisted view of a session, including its most
// recent checkpoint.
type ReplayMetadata struct {
	SessionID  string
	Config     ReplayConfig
	Status     ReplayStatus
	StartedAt  time.Time
	EndedAt    *time.Time
	Checkpoint *Checkpoint
}
