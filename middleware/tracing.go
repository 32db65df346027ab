package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for waypoint tracing.
const tracerName = "github.com/xraph/waypoint"

// Tracing returns middleware that wraps node execution in an OpenTelemetry
// span using the global TracerProvider.
//
// Span attributes: waypoint.thread.id, waypoint.node, waypoint.sequence.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer returns tracing middleware using the provided tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, c *Call, next Handler) error {
		ctx, span := tracer.Start(ctx, "waypoint.node.execute",
			trace.WithAttributes(
				attribute.String("waypoint.thread.id", c.ThreadID.String()),
				attribute.String("waypoint.node", c.Node),
				attribute.Int64("waypoint.sequence", c.Sequence),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
