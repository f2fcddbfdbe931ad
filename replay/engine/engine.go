// Package engine drives replay sessions end to end: resolving the
// effective start ledger, batching reads against the event log,
// folding each event through a state builder, checkpointing, and
// transitioning sessions through their status machine.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/quartune/stellar-insights/observe"
	"github.com/quartune/stellar-insights/replay"
	"github.com/quartune/stellar-insights/replay/checkpoint"
	"github.com/quartune/stellar-insights/replay/state"
	"github.com/quartune/stellar-insights/replay/store"
)

// Engine owns a registry of in-flight and completed sessions, each with
// its own state builder, backed by a shared relational Store.
//
// Grounded on the teacher's Engine[S] (graph/engine.go): one dispatcher
// type fronting many independent runs, sessions keyed by id in a
// mutex-guarded map, cooperative cancellation via context.
type Engine struct {
	backing    store.Store
	checkpoint *checkpoint.Manager
	emitter    observe.Emitter
	tracer     trace.Tracer
	metrics    *Metrics

	mu       sync.Mutex
	sessions map[string]*session
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithEmitter attaches an observability emitter; defaults to a NullEmitter.
func WithEmitter(e observe.Emitter) Option { return func(en *Engine) { en.emitter = e } }

// WithTracer attaches an OpenTelemetry tracer; defaults to
// otel.Tracer("stellar-insights/replay").
func WithTracer(t trace.Tracer) Option { return func(en *Engine) { en.tracer = t } }

// WithMetrics attaches a Prometheus-backed Metrics instance.
func WithMetrics(m *Metrics) Option { return func(en *Engine) { en.metrics = m } }

// New builds an Engine over backing, ready to Start sessions.
func New(backing store.Store, opts ...Option) *Engine {
	en := &Engine{
		backing:    backing,
		checkpoint: checkpoint.NewManager(backing),
		emitter:    observe.NewNullEmitter(),
		tracer:     otel.Tracer("stellar-insights/replay"),
		sessions:   make(map[string]*session),
	}
	for _, opt := range opts {
		opt(en)
	}
	return en
}

// session is the engine's private bookkeeping for one replay run.
type session struct {
	id      string
	config  replay.ReplayConfig
	builder *state.StateBuilder

	mu         sync.Mutex
	status     replay.ReplayStatus
	startedAt  time.Time
	endedAt    *time.Time
	lastLedger uint64

	pauseRequested  bool
	cancelRequested bool
	resumeSignal    chan struct{}
}

func (s *session) setStatus(st replay.ReplayStatus) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

func (s *session) getStatus() replay.ReplayStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Start validates config, registers a new session in Pending status, and
// launches its batch loop in the background. Returns the session id
// immediately; use Status to observe progress.
func (en *Engine) Start(ctx context.Context, config replay.ReplayConfig) (string, error) {
	if err := config.Validate(); err != nil {
		return "", err
	}

	sessionID := uuid.NewString()
	if config.Mode == replay.ModeResume && config.ResumeSessionID != "" {
		sessionID = config.ResumeSessionID
		if err := en.checkNotActive(sessionID); err != nil {
			return "", err
		}
	}
	sess := &session{
		id:           sessionID,
		config:       config,
		builder:      state.NewStateBuilder(en.backing),
		status:       replay.StatusPending{},
		startedAt:    time.Now(),
		resumeSignal: make(chan struct{}, 1),
	}

	en.mu.Lock()
	en.sessions[sessionID] = sess
	en.mu.Unlock()

	go en.run(context.Background(), sess)

	return sessionID, nil
}

// checkNotActive rejects Start when sessionID already names a session
// that is still running, per the ErrAlreadyInProgress taxonomy entry
// (spec §7): a caller resuming a prior session id must not collide with
// a live run of the same id.
func (en *Engine) checkNotActive(sessionID string) error {
	en.mu.Lock()
	existing, ok := en.sessions[sessionID]
	en.mu.Unlock()
	if !ok {
		return nil
	}
	switch existing.getStatus().(type) {
	case replay.StatusPending, replay.StatusInProgress, replay.StatusPaused:
		return replay.ErrAlreadyInProgress
	default:
		return nil
	}
}

// Status returns the current status of sessionID.
func (en *Engine) Status(sessionID string) (replay.ReplayStatus, error) {
	sess, err := en.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.getStatus(), nil
}

// Pause requests that the session suspend at its next batch boundary. A
// Pending session pauses once its batch loop starts; a session that has
// already finished is unaffected.
func (en *Engine) Pause(sessionID string) error {
	sess, err := en.lookup(sessionID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	sess.pauseRequested = true
	sess.mu.Unlock()
	return nil
}

// Resume continues a Paused session's batch loop from the in-memory cursor
// at which it paused.
// Returns an error if the session is not currently Paused.
func (en *Engine) Resume(sessionID string) error {
	sess, err := en.lookup(sessionID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	if _, paused := sess.status.(replay.StatusPaused); !paused {
		sess.mu.Unlock()
		return fmt.Errorf("session %s is not paused", sessionID)
	}
	sess.pauseRequested = false
	sess.mu.Unlock()

	select {
	case sess.resumeSignal <- struct{}{}:
	default:
	}
	return nil
}

// Cancel requests that the running session stop as soon as possible and
// transition to Failed. Idempotent.
func (en *Engine) Cancel(sessionID string) error {
	sess, err := en.lookup(sessionID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	sess.cancelRequested = true
	sess.mu.Unlock()

	select {
	case sess.resumeSignal <- struct{}{}:
	default:
	}
	return nil
}

// Verify reports whether sessionID's current folded state hashes to
// expectedHash, without starting a new replay. Used to spot-check a
// completed session against an externally supplied reference hash.
func (en *Engine) Verify(sessionID string, expectedHash string) (bool, error) {
	sess, err := en.lookup(sessionID)
	if err != nil {
		return false, err
	}
	gotHash, err := sess.builder.State().ComputeHash()
	if err != nil {
		return false, fmt.Errorf("compute state hash: %w", err)
	}
	return gotHash == expectedHash, nil
}

// State returns the current folded application state for sessionID, for
// introspection and testing. Production callers should prefer Status and
// Verify, which don't expose the mutable builder directly.
func (en *Engine) State(sessionID string) (*state.ApplicationState, error) {
	sess, err := en.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.builder.State(), nil
}

func (en *Engine) lookup(sessionID string) (*session, error) {
	en.mu.Lock()
	defer en.mu.Unlock()
	sess, ok := en.sessions[sessionID]
	if !ok {
		return nil, &SessionNotFound{SessionID: sessionID}
	}
	return sess, nil
}
