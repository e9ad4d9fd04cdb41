// Package telemetry wraps go.opentelemetry.io/otel behind the small
// StartSpan/End convention the teacher's websocket_executor.go uses
// against its internal telemetry adapter
// ("communication.Tracer().StartSpan(ctx, stage, kv...)"), so call-path
// code never touches the otel API directly.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/rapidaai/voicecore"

// KV is a single span attribute, named after the teacher's
// internal_adapter_telemetry.KV helper.
type KV struct {
	K string
	V attribute.Value
}

func StringValue(s string) attribute.Value { return attribute.StringValue(s) }
func IntValue(i int) attribute.Value       { return attribute.IntValue(i) }
func Int64Value(i int64) attribute.Value   { return attribute.Int64Value(i) }
func Float64Value(f float64) attribute.Value { return attribute.Float64Value(f) }
func BoolValue(b bool) attribute.Value     { return attribute.BoolValue(b) }

// Span is the handle returned by StartSpan. Call End when the traced
// operation finishes; pass the operation's error, if any.
type Span struct {
	otelSpan trace.Span
}

// End finalizes the span, recording err as an exception and setting the
// span status, mirroring span.record_exception / span.set_status in the
// Python original (gpt_flow.py).
func (s *Span) End(err error) {
	if s == nil || s.otelSpan == nil {
		return
	}
	if err != nil {
		s.otelSpan.RecordError(err)
		s.otelSpan.SetStatus(codes.Error, err.Error())
	}
	s.otelSpan.End()
}

// SetAttributes attaches additional key/value pairs to the span, used for
// the rate-limit fields spec.md §4.4 requires be "attached as span
// attributes".
func (s *Span) SetAttributes(kvs ...KV) {
	if s == nil || s.otelSpan == nil {
		return
	}
	attrs := make([]attribute.KeyValue, 0, len(kvs))
	for _, kv := range kvs {
		attrs = append(attrs, attribute.KeyValue{Key: attribute.Key(kv.K), Value: kv.V})
	}
	s.otelSpan.SetAttributes(attrs...)
}

// Tracer starts spans for one call's operations.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer returns a Tracer backed by the global otel TracerProvider.
// Call engines that don't configure a real exporter still get a
// functioning (no-op) tracer, matching otel's documented zero-value
// behavior.
func NewTracer() *Tracer {
	return &Tracer{tracer: otel.Tracer(instrumentationName)}
}

// StartSpan starts a span named stage with the given attributes and
// returns the derived context plus a handle to End it.
func (t *Tracer) StartSpan(ctx context.Context, stage string, kvs ...KV) (context.Context, *Span) {
	attrs := make([]attribute.KeyValue, 0, len(kvs))
	for _, kv := range kvs {
		attrs = append(attrs, attribute.KeyValue{Key: attribute.Key(kv.K), Value: kv.V})
	}
	ctx, span := t.tracer.Start(ctx, stage, trace.WithAttributes(attrs...))
	return ctx, &Span{otelSpan: span}
}
