package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zhengren252/ntn-sub004/protocol"
)

// tracerName is the instrumentation scope name for compute tracing.
const tracerName = "github.com/zhengren252/ntn-sub004"

// Tracing returns middleware that wraps handler execution in an
// OpenTelemetry span. Without a configured TracerProvider the noop tracer
// is used.
//
// Span attributes: compute.request.id, compute.method, compute.param_count.
// On error, the span status is set to codes.Error with the error message.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer returns tracing middleware using the provided tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, req *protocol.ServiceRequest, next Handler) (map[string]any, error) {
		ctx, span := tracer.Start(ctx, "compute.handler.execute",
			trace.WithAttributes(
				attribute.String("compute.request.id", req.RequestID),
				attribute.String("compute.method", string(req.Method)),
				attribute.Int("compute.param_count", len(req.Params)),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		data, err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return data, err
	}
}
