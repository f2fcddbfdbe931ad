package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/quartune/stellar-insights/observe"
	"github.com/quartune/stellar-insights/replay"
	"github.com/quartune/stellar-insights/replay/store"
)

// run drives sess from Pending through its batch loop to a terminal
// status (Completed, Failed) or a suspension point (Paused, resumable
// via Resume). It owns the session's sole goroutine: state mutation on
// sess.builder is never concurrent.
func (en *Engine) run(ctx context.Context, sess *session) {
	spanCtx, span := en.tracer.Start(ctx, "replay.session",
		trace.WithAttributes(attribute.String("session.id", sess.id)))
	defer span.End()

	sess.setStatus(replay.StatusInProgress{})
	en.emit(sess.id, 0, "session_started", nil)
	if en.metrics != nil {
		en.metrics.sessionsStarted.Inc()
	}

	highWaterMark, err := en.backing.HighWaterMark(spanCtx)
	if err != nil {
		en.fail(spanCtx, span, sess, &replay.StorageError{Op: "high_water_mark", Err: err})
		return
	}

	cursor, err := en.resolveStart(spanCtx, sess, highWaterMark)
	if err != nil {
		en.fail(spanCtx, span, sess, err)
		return
	}

	rangeEnd := sess.config.Range.EndLedger(highWaterMark)
	var processed, failed uint64
	eventsSinceCheckpoint := 0

	for {
		sess.mu.Lock()
		cancelled := sess.cancelRequested
		paused := sess.pauseRequested
		sess.mu.Unlock()

		if cancelled {
			en.cancelToFailed(spanCtx, span, sess, cursor)
			return
		}
		if paused {
			if !en.suspendForPause(spanCtx, span, sess, cursor, processed, failed) {
				return
			}
			continue
		}

		end := highWaterMark
		if rangeEnd != nil {
			end = *rangeEnd
		}
		if cursor > end {
			break
		}

		limit := sess.config.BatchSize
		batch, err := store.GetRangeWithRetry(spanCtx, en.backing, cursor, end, sess.config.Filter, &limit, sess.config.MaxRetries)
		if err != nil {
			en.fail(spanCtx, span, sess, err)
			return
		}
		if len(batch) == 0 {
			break
		}

		pctx := replay.ForReplay(sess.id, sess.config.Mode != replay.ModeResume)
		for _, event := range batch {
			result, applyErr := sess.builder.ApplyEventContext(event, pctx)
			if applyErr != nil {
				failed++
				en.emit(sess.id, event.LedgerSequence, "event_failed", map[string]any{"event_id": event.ID, "error": applyErr.Error()})
				if sess.config.ErrorPolicy == replay.PolicyStrict {
					en.fail(spanCtx, span, sess, applyErr)
					return
				}
			} else {
				// A duplicate (skipped) event still counts as processed,
				// per spec's tie-break rule.
				processed++
				if !result.Skipped {
					if err := en.backing.MarkProcessed(spanCtx, event.ID, event.LedgerSequence); err != nil {
						en.fail(spanCtx, span, sess, &replay.StorageError{Op: "mark_processed", Err: err})
						return
					}
				}
			}
			cursor = event.LedgerSequence + 1
			eventsSinceCheckpoint++
			sess.setStatus(replay.StatusInProgress{CurrentLedger: event.LedgerSequence, EventsProcessed: processed, EventsFailed: failed})

			if eventsSinceCheckpoint >= sess.config.CheckpointEvery {
				if err := en.saveCheckpoint(spanCtx, sess, processed, failed); err != nil {
					en.fail(spanCtx, span, sess, err)
					return
				}
				eventsSinceCheckpoint = 0
			}
		}
	}

	if err := sess.builder.PersistState(spanCtx); err != nil {
		en.fail(spanCtx, span, sess, err)
		return
	}
	if _, err := en.saveCheckpointForced(spanCtx, sess, processed, failed); err != nil {
		en.fail(spanCtx, span, sess, err)
		return
	}

	if sess.config.Mode == replay.ModeVerify {
		gotHash, err := sess.builder.State().ComputeHash()
		if err != nil {
			en.fail(spanCtx, span, sess, err)
			return
		}
		if gotHash != sess.config.ExpectedHash {
			en.fail(spanCtx, span, sess, &replay.StateCorruption{
				Ledger: sess.builder.State().Ledger,
				Stored: sess.config.ExpectedHash,
				Got:    gotHash,
			})
			return
		}
	}

	en.complete(spanCtx, span, sess, processed, failed)
}

// resolveStart implements the engine protocol's step 1: resolving the
// effective start ledger by mode. Under ModeResume, a found checkpoint
// also rehydrates the builder's application state and scopes the
// in-memory idempotency index to events folded at or before that
// checkpoint's ledger, so a session resumed against a brand-new Engine
// instance (e.g. after a process restart) continues from the same
// Snapshots/Tables its prior run had accumulated instead of an empty
// state. A missing or structurally invalid checkpoint degrades to Fresh's
// start ledger, per spec.md §7's InvalidCheckpoint handling.
func (en *Engine) resolveStart(ctx context.Context, sess *session, highWaterMark uint64) (uint64, error) {
	freshStart := func() (uint64, error) {
		start := sess.config.Range.StartLedger(highWaterMark, nil)
		if start == nil {
			return 0, nil
		}
		return *start, nil
	}

	if sess.config.Mode != replay.ModeResume {
		return freshStart()
	}

	latest, err := en.checkpoint.Latest(ctx, sess.id)
	if err == store.ErrNotFound {
		return freshStart()
	}
	if err != nil {
		return 0, &replay.StorageError{Op: "resolve_resume_checkpoint", Err: err}
	}

	if err := sess.builder.RestoreFrom(latest.StateSnapshot); err != nil {
		invalid := &replay.InvalidCheckpoint{Reason: err.Error()}
		en.emit(sess.id, latest.LastLedger, "checkpoint_invalid", map[string]any{"error": invalid.Error()})
		return freshStart()
	}

	ids, err := en.backing.ProcessedIDsUpTo(ctx, latest.LastLedger)
	if err != nil {
		return 0, &replay.StorageError{Op: "seed_resume_idempotency_index", Err: err}
	}
	sess.builder.SeedProcessed(ids)

	resumeFrom := latest.LastLedger + 1
	start := sess.config.Range.StartLedger(highWaterMark, &resumeFrom)
	if start == nil {
		return resumeFrom, nil
	}
	if *start > resumeFrom {
		return *start, nil
	}
	return resumeFrom, nil
}

func (en *Engine) saveCheckpoint(ctx context.Context, sess *session, processed, failed uint64) error {
	_, err := en.saveCheckpointForced(ctx, sess, processed, failed)
	return err
}

func (en *Engine) saveCheckpointForced(ctx context.Context, sess *session, processed, failed uint64) (replay.Checkpoint, error) {
	snapshot, err := sess.builder.State().CanonicalJSON()
	if err != nil {
		return replay.Checkpoint{}, err
	}
	cp, err := en.checkpoint.Save(ctx, sess.id, sess.builder.State().Ledger, processed, failed, snapshot)
	if err != nil {
		return replay.Checkpoint{}, err
	}
	if en.metrics != nil {
		en.metrics.checkpointsSaved.Inc()
	}
	return cp, nil
}

// suspendForPause transitions sess to Paused and blocks until Resume or
// Cancel signals it, or ctx is cancelled. Returns true if the caller
// should continue the batch loop (resumed), false if run should return.
func (en *Engine) suspendForPause(ctx context.Context, span trace.Span, sess *session, cursor uint64, processed, failed uint64) bool {
	if err := en.saveCheckpoint(ctx, sess, processed, failed); err != nil {
		en.fail(ctx, span, sess, err)
		return false
	}
	sess.setStatus(replay.StatusPaused{LastLedger: sess.builder.State().Ledger, EventsProcessed: processed})
	en.emit(sess.id, cursor, "session_paused", nil)

	select {
	case <-sess.resumeSignal:
	case <-ctx.Done():
		return false
	}

	sess.mu.Lock()
	cancelled := sess.cancelRequested
	sess.mu.Unlock()
	if cancelled {
		en.cancelToFailed(ctx, span, sess, cursor)
		return false
	}

	sess.setStatus(replay.StatusInProgress{CurrentLedger: cursor, EventsProcessed: processed, EventsFailed: failed})
	en.emit(sess.id, cursor, "session_resumed", nil)
	return true
}

func (en *Engine) cancelToFailed(ctx context.Context, span trace.Span, sess *session, lastLedger uint64) {
	en.fail(ctx, span, sess, &cancelledError{LastLedger: lastLedger})
}

func (en *Engine) fail(ctx context.Context, span trace.Span, sess *session, err error) {
	last := sess.builder.State().Ledger
	sess.setStatus(replay.StatusFailed{Err: err, LastLedger: &last})
	now := time.Now()
	sess.mu.Lock()
	sess.endedAt = &now
	sess.mu.Unlock()

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	en.emit(sess.id, last, "session_failed", map[string]any{"error": err.Error()})
	if en.metrics != nil {
		en.metrics.sessionsFailed.Inc()
	}
	en.persistMetadata(ctx, sess)
}

func (en *Engine) complete(ctx context.Context, span trace.Span, sess *session, processed, failed uint64) {
	now := time.Now()
	sess.mu.Lock()
	sess.endedAt = &now
	duration := now.Sub(sess.startedAt)
	sess.mu.Unlock()

	sess.setStatus(replay.StatusCompleted{EventsProcessed: processed, EventsFailed: failed, Duration: duration})
	en.emit(sess.id, sess.builder.State().Ledger, "session_completed", map[string]any{"events_processed": processed, "events_failed": failed})
	if en.metrics != nil {
		en.metrics.sessionsCompleted.Inc()
	}
	en.persistMetadata(ctx, sess)
}

func (en *Engine) persistMetadata(ctx context.Context, sess *session) {
	meta := replay.ReplayMetadata{
		SessionID: sess.id,
		Config:    sess.config,
		Status:    sess.getStatus(),
		StartedAt: sess.startedAt,
		EndedAt:   sess.endedAt,
	}
	if err := en.backing.SaveMetadata(ctx, meta); err != nil {
		en.emit(sess.id, 0, "metadata_persist_failed", map[string]any{"error": err.Error()})
	}
}

func (en *Engine) emit(sessionID string, ledger uint64, msg string, meta map[string]any) {
	en.emitter.Emit(observe.Event{
		Component: "replay.engine",
		SessionID: sessionID,
		Ledger:    ledger,
		Msg:       msg,
		Meta:      meta,
		Time:      time.Now(),
	})
}

// cancelledError reports that a session was cancelled before reaching a
// natural terminal state.
type cancelledError struct {
	LastLedger uint64
}

func (e *cancelledError) Error() string { return "replay session cancelled" }
