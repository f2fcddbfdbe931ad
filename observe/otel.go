package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter turns events into zero-duration OpenTelemetry span events on
// the span found in the context passed to EmitBatch, or into a short span
// of its own when Emit is called without a context-carried span.
//
// Each event becomes a span event named Msg, with Component/SessionID/
// Ledger and every Meta field recorded as attributes. If Meta contains an
// "error" key, the span's status is set to Error.
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter creates an OTelEmitter that records onto spans obtained
// from tracer.
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

// Emit starts and immediately ends a span carrying event as attributes.
// Prefer EmitBatch with a context carrying an active span when one exists,
// so events nest under the operation that produced them.
func (o *OTelEmitter) Emit(event Event) {
	_, span := o.tracer.Start(context.Background(), event.Msg)
	o.annotate(span, event)
	span.End()
}

// EmitBatch records each event as a span event on the span active in ctx,
// if any, else as its own short span.
func (o *OTelEmitter) EmitBatch(ctx context.Context, events []Event) error {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		for _, e := range events {
			o.Emit(e)
		}
		return nil
	}
	for _, e := range events {
		span.AddEvent(e.Msg, trace.WithAttributes(o.attributes(e)...))
		if _, ok := e.Meta["error"]; ok {
			span.SetStatus(codes.Error, e.Msg)
		}
	}
	return nil
}

// Flush is a no-op: span export is the tracer provider's responsibility.
func (o *OTelEmitter) Flush(context.Context) error { return nil }

func (o *OTelEmitter) annotate(span trace.Span, event Event) {
	span.SetAttributes(o.attributes(event)...)
	if _, ok := event.Meta["error"]; ok {
		span.SetStatus(codes.Error, event.Msg)
	}
}

func (o *OTelEmitter) attributes(event Event) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("component", event.Component),
		attribute.String("session_id", event.SessionID),
		attribute.Int64("ledger", int64(event.Ledger)),
	}
	for k, v := range event.Meta {
		switch val := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case uint64:
			attrs = append(attrs, attribute.Int64(k, int64(val)))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		default:
			attrs = append(attrs, attribute.String(k, fmtAny(val)))
		}
	}
	return attrs
}
