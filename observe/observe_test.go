package observe

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func TestNullEmitter(t *testing.T) {
	n := NewNullEmitter()
	n.Emit(Event{Msg: "x"})
	if err := n.EmitBatch(context.Background(), []Event{{Msg: "y"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := n.Flush(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLogEmitterText(t *testing.T) {
	var buf bytes.Buffer
	e := NewLogEmitter(&buf, false)
	e.Emit(Event{Component: "cache", Msg: "evicted", SessionID: "ns1", Time: time.Now(), Meta: map[string]any{"key": "k1"}})
	out := buf.String()
	if !strings.Contains(out, "evicted") || !strings.Contains(out, "ns1") {
		t.Fatalf("unexpected log line: %q", out)
	}
}

func TestLogEmitterJSON(t *testing.T) {
	var buf bytes.Buffer
	e := NewLogEmitter(&buf, true)
	e.Emit(Event{Component: "replay", Msg: "batch_committed", Ledger: 42})
	if !strings.Contains(buf.String(), `"ledger":42`) {
		t.Fatalf("expected ledger field in JSON output, got %q", buf.String())
	}
}

func TestBufferedEmitterHistory(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(Event{SessionID: "s1", Msg: "a"})
	b.Emit(Event{SessionID: "s1", Msg: "b"})
	b.Emit(Event{SessionID: "s2", Msg: "c"})

	h := b.History("s1")
	if len(h) != 2 || h[0].Msg != "a" || h[1].Msg != "b" {
		t.Fatalf("unexpected history: %+v", h)
	}
	if len(b.History("missing")) != 0 {
		t.Fatalf("expected empty history for unknown session")
	}

	b.Clear("s1")
	if len(b.History("s1")) != 0 {
		t.Fatalf("expected history cleared")
	}
}

func TestBufferedEmitterBatch(t *testing.T) {
	b := NewBufferedEmitter()
	events := []Event{{SessionID: "s1", Msg: "a"}, {SessionID: "s1", Msg: "b"}}
	if err := b.EmitBatch(context.Background(), events); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(b.History("s1")) != 2 {
		t.Fatalf("expected 2 events")
	}
}
