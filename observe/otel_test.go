package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func attributeMap(attrs []attribute.KeyValue) map[string]any {
	m := make(map[string]any)
	for _, kv := range attrs {
		m[string(kv.Key)] = kv.Value.AsInterface()
	}
	return m
}

func TestOTelEmitterEmitCreatesSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	emitter := NewOTelEmitter(tp.Tracer("test"))
	emitter.Emit(Event{
		Component: "cache",
		SessionID: "sess-1",
		Ledger:    1004,
		Msg:       "lru_evicted",
		Meta:      map[string]any{"removed": 3},
		Time:      time.Now(),
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != "lru_evicted" {
		t.Errorf("span name = %q, want %q", span.Name, "lru_evicted")
	}
	attrs := attributeMap(span.Attributes)
	if attrs["component"] != "cache" {
		t.Errorf("component = %v, want %q", attrs["component"], "cache")
	}
	if attrs["session_id"] != "sess-1" {
		t.Errorf("session_id = %v, want %q", attrs["session_id"], "sess-1")
	}
	if attrs["ledger"] != int64(1004) {
		t.Errorf("ledger = %v, want %d", attrs["ledger"], 1004)
	}
}

func TestOTelEmitterEmitSetsErrorStatus(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	emitter := NewOTelEmitter(tp.Tracer("test"))
	emitter.Emit(Event{Msg: "session_failed", Meta: map[string]any{"error": "boom"}, Time: time.Now()})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("status = %v, want Error", spans[0].Status.Code)
	}
}

func TestOTelEmitterBatchRecordsEventsOnActiveSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	tracer := tp.Tracer("test")
	ctx, span := tracer.Start(context.Background(), "replay.session")
	emitter := NewOTelEmitter(tracer)

	err := emitter.EmitBatch(ctx, []Event{
		{Msg: "session_started", Time: time.Now()},
		{Msg: "session_completed", Meta: map[string]any{"events_processed": uint64(5)}, Time: time.Now()},
	})
	if err != nil {
		t.Fatalf("EmitBatch: %v", err)
	}
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected the parent span alone, got %d", len(spans))
	}
	events := spans[0].Events
	if len(events) != 2 {
		t.Fatalf("expected 2 span events, got %d", len(events))
	}
	if events[0].Name != "session_started" || events[1].Name != "session_completed" {
		t.Fatalf("unexpected event names: %q, %q", events[0].Name, events[1].Name)
	}
}
