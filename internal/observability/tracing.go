package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "dockctl"

// StartCommandSpan starts a span for one runtime command. It uses the global
// TracerProvider, which is a noop unless the binary installs one.
// Callers must call span.End().
func StartCommandSpan(ctx context.Context, command string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "gateway."+command,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("dockctl.command", command)),
	)
}

// RecordSpanError records err on span and marks the span failed. A nil err is
// a no-op.
func RecordSpanError(span trace.Span, err error, kind string) {
	if err == nil {
		return
	}
	span.SetAttributes(attribute.String("dockctl.failure_kind", kind))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
