package observe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
)

// LogEmitter writes events to an io.Writer, one line per event.
//
// In text mode it prints a human-readable line with a relative timestamp
// (via humanize.Time); in JSON mode it writes one JSON object per line
// (JSONL), suitable for ingestion by a log pipeline.
type LogEmitter struct {
	writer   io.Writer
	jsonMode bool
}

// NewLogEmitter creates a LogEmitter writing to w. A nil w defaults to
// os.Stdout.
func NewLogEmitter(w io.Writer, jsonMode bool) *LogEmitter {
	if w == nil {
		w = os.Stdout
	}
	return &LogEmitter{writer: w, jsonMode: jsonMode}
}

// Emit writes a single event line.
func (l *LogEmitter) Emit(event Event) {
	if l.jsonMode {
		l.emitJSON(event)
		return
	}
	l.emitText(event)
}

func (l *LogEmitter) emitJSON(event Event) {
	data, err := json.Marshal(struct {
		Component string         `json:"component"`
		SessionID string         `json:"session_id,omitempty"`
		Ledger    uint64         `json:"ledger,omitempty"`
		Msg       string         `json:"msg"`
		Meta      map[string]any `json:"meta,omitempty"`
	}{
		Component: event.Component,
		SessionID: event.SessionID,
		Ledger:    event.Ledger,
		Msg:       event.Msg,
		Meta:      event.Meta,
	})
	if err != nil {
		_, _ = fmt.Fprintf(l.writer, "{\"error\":\"failed to marshal event: %v\"}\n", err)
		return
	}
	_, _ = fmt.Fprintf(l.writer, "%s\n", data)
}

func (l *LogEmitter) emitText(event Event) {
	_, _ = fmt.Fprintf(l.writer, "[%s] %s session=%s ledger=%d (%s)",
		event.Component, event.Msg, event.SessionID, event.Ledger, humanize.Time(event.Time))
	if len(event.Meta) > 0 {
		if metaJSON, err := json.Marshal(event.Meta); err == nil {
			_, _ = fmt.Fprintf(l.writer, " meta=%s", metaJSON)
		}
	}
	_, _ = fmt.Fprint(l.writer, "\n")
}

// EmitBatch writes each event in order.
func (l *LogEmitter) EmitBatch(_ context.Context, events []Event) error {
	for _, e := range events {
		l.Emit(e)
	}
	return nil
}

// Flush is a no-op: LogEmitter writes synchronously with no internal buffer.
func (l *LogEmitter) Flush(context.Context) error { return nil }
