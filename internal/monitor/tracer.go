package monitor

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "cpp-snippet-runner"

// Tracer wraps OpenTelemetry tracing for the snippet pipeline.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new Tracer using the global TracerProvider.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// StartSpan creates a new span and returns the updated context.
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, fmt.Sprintf("pipeline.%s", name),
		trace.WithAttributes(attrs...),
	)
	return ctx, span
}

// SpanFromContext returns the current span from the context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// Common attribute keys for pipeline tracing.
var (
	AttrRunID       = attribute.Key("run.id")
	AttrStatus      = attribute.Key("run.status")
	AttrExitCode    = attribute.Key("run.exit_code")
	AttrDurationMS  = attribute.Key("run.duration_ms")
	AttrSourceBytes = attribute.Key("run.source_bytes")
)
