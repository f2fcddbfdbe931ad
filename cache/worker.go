package cache

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/quartune/stellar-insights/observe"
)

// DefaultSweepInterval is how often the background sweep timer fires a
// synthetic TtlSweep event, absent CACHE_SWEEP_INTERVAL_SECS override.
const DefaultSweepInterval = 60 * time.Second

// Worker owns the background invalidation task for a Store: a dedicated
// sweep-timer goroutine plus a bus-consumer goroutine, run as two
// separate loops per spec.md §9's fairness note (a single select loop
// risks starving the sweep under heavy bus load).
//
// A crashed worker goroutine is respawned by Run's supervisor loop; the
// background worker crashing must never silently disable invalidation.
type Worker[V any] struct {
	store         *Store[V]
	sweepInterval time.Duration
	rules         []Rule
	rulesMu       sync.RWMutex
	emitter       observe.Emitter
}

// NewWorker creates a Worker over store using DefaultRules and
// DefaultSweepInterval. Use SetRules/SetSweepInterval to override before
// calling Run.
func NewWorker[V any](store *Store[V]) *Worker[V] {
	return &Worker[V]{
		store:         store,
		sweepInterval: DefaultSweepInterval,
		rules:         DefaultRules(),
		emitter:       observe.NewNullEmitter(),
	}
}

// SetEmitter attaches an observability emitter; defaults to a NullEmitter.
func (w *Worker[V]) SetEmitter(e observe.Emitter) { w.emitter = e }

// SetSweepInterval overrides the TTL sweep period.
func (w *Worker[V]) SetSweepInterval(d time.Duration) {
	if d > 0 {
		w.sweepInterval = d
	}
}

// SetRules replaces the rule table wholesale; rule tables are data and may
// be swapped at any time (spec.md §4.1).
func (w *Worker[V]) SetRules(rules []Rule) {
	w.rulesMu.Lock()
	w.rules = rules
	w.rulesMu.Unlock()
}

func (w *Worker[V]) ruleFor(trigger EventTrigger) (Rule, bool) {
	w.rulesMu.RLock()
	defer w.rulesMu.RUnlock()
	var found Rule
	ok := false
	for _, r := range w.rules {
		if r.Trigger != trigger {
			continue
		}
		if r.Strategy == StrategyPattern {
			return r, true
		}
		if !ok {
			found, ok = r, true
		}
	}
	return found, ok
}

// Run starts the worker's two goroutines and blocks until ctx is done. It
// respawns either loop if it panics, logging the recovery, so a single
// bad event can never permanently disable invalidation.
func (w *Worker[V]) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go w.supervise(ctx, &wg, "sweep", w.sweepLoop)
	go w.supervise(ctx, &wg, "bus", w.busLoop)
	wg.Wait()
}

func (w *Worker[V]) supervise(ctx context.Context, wg *sync.WaitGroup, name string, loop func(context.Context)) {
	defer wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		if w.runOnce(ctx, name, loop) {
			return
		}
		log.Printf("cache worker: %s loop crashed, respawning", name)
	}
}

// runOnce runs loop to completion, recovering a panic. Returns true if the
// loop exited because ctx is done (no respawn needed).
func (w *Worker[V]) runOnce(ctx context.Context, name string, loop func(context.Context)) (done bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("cache worker: %s loop panic: %v", name, r)
			done = false
		}
	}()
	loop(ctx)
	return ctx.Err() != nil
}

func (w *Worker[V]) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.applyTtlSweep()
		}
	}
}

func (w *Worker[V]) busLoop(ctx context.Context) {
	sub := w.store.Subscribe()
	for {
		if ctx.Err() != nil {
			return
		}
		event, lag, ok := w.recvWithCancel(ctx, sub)
		if !ok {
			return
		}
		if lag > 0 {
			log.Printf("cache worker: subscriber lagged by %d events", lag)
			w.emitter.Emit(observe.Event{Component: "cache", Msg: "bus_lag", Time: time.Now(), Meta: map[string]any{"lag": lag}})
		}
		if event != nil {
			w.apply(event)
		}
	}
}

// recvWithCancel adapts the blocking Subscriber.Recv to ctx cancellation.
// The bus is condition-variable based, not channel based, so there is no
// native select-based receive; on cancellation the spawned goroutine is
// abandoned and exits on the bus's next Publish or Close, never sooner.
func (w *Worker[V]) recvWithCancel(ctx context.Context, sub *Subscriber) (InvalidationEvent, uint64, bool) {
	type result struct {
		event InvalidationEvent
		lag   uint64
		ok    bool
	}
	done := make(chan result, 1)
	go func() {
		e, lag, ok := sub.Recv()
		done <- result{e, lag, ok}
	}()
	select {
	case <-ctx.Done():
		return nil, 0, false
	case r := <-done:
		return r.event, r.lag, r.ok
	}
}

// apply resolves event against the current rule table and dispatches the
// matching strategy. TtlSweep and MemoryPressure always run their fixed
// behavior regardless of the table, since no other strategy makes sense
// for a synthetic timer/pressure event; every other trigger's strategy
// comes from ruleFor, so an operator can retune Pattern vs. Prefix per
// trigger via Worker.SetRules without a code change. Per the precedence
// resolution in DESIGN.md, a Pattern (substring) rule always takes
// priority over Prefix when both could apply to the same event.
func (w *Worker[V]) apply(event InvalidationEvent) {
	switch e := event.(type) {
	case TtlSweep:
		w.applyTtlSweep()
		return
	case MemoryPressure:
		w.applyMemoryPressure(e.TargetSize)
		return
	}

	rule, ok := w.ruleFor(event.Trigger())
	if !ok {
		return
	}

	switch e := event.(type) {
	case PaymentDetected:
		w.dispatchKeyed(rule, "corridor:"+e.CorridorID)
	case AnchorStatusChanged:
		w.dispatchKeyed(rule, "anchor:"+e.AnchorID)
	case AdminInvalidate:
		w.dispatchKeyed(rule, e.Pattern)
	}
}

func (w *Worker[V]) dispatchKeyed(rule Rule, key string) {
	switch rule.Strategy {
	case StrategyExact:
		w.store.Invalidate(key)
	case StrategyPrefix:
		removed := w.store.InvalidatePrefix(key)
		if removed > 0 {
			w.emitter.Emit(observe.Event{Component: "cache", Msg: "prefix_invalidated", Time: time.Now(),
				Meta: map[string]any{"prefix": key, "removed": removed}})
		}
	case StrategyFlushAll:
		w.store.Flush()
		w.emitter.Emit(observe.Event{Component: "cache", Msg: "flushed", Time: time.Now()})
	default: // StrategyPattern
		w.applyPattern(key)
	}
}

func (w *Worker[V]) applyPattern(pattern string) {
	removed := w.store.removeWherePattern(pattern)
	if removed > 0 {
		w.emitter.Emit(observe.Event{Component: "cache", Msg: "pattern_invalidated", Time: time.Now(),
			Meta: map[string]any{"pattern": pattern, "removed": removed}})
	}
}

func (w *Worker[V]) applyTtlSweep() {
	removed := w.store.sweepExpired()
	if removed > 0 {
		w.emitter.Emit(observe.Event{Component: "cache", Msg: "ttl_swept", Time: time.Now(),
			Meta: map[string]any{"removed": removed}})
	}
}

func (w *Worker[V]) applyMemoryPressure(targetSize int) {
	removed := w.store.evictLRUTo(targetSize)
	w.emitter.Emit(observe.Event{Component: "cache", Msg: "memory_pressure_evicted", Time: time.Now(),
		Meta: map[string]any{"removed": removed, "target_size": targetSize}})
}
