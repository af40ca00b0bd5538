package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/zhengren252/ntn-sub004/protocol"
)

// meterName is the instrumentation scope name for compute metrics.
const meterName = "github.com/zhengren252/ntn-sub004"

// Metrics returns middleware that records per-method handler metrics using
// the global OTel MeterProvider. Without a configured provider the
// instruments are noops.
//
// Instruments:
//   - compute.handler.duration (Float64Histogram): execution time in seconds,
//     with attributes: method, status ("ok" or "error")
//   - compute.handler.executions (Int64Counter): total executions,
//     with attributes: method, status ("ok" or "error")
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter returns metrics middleware using the provided meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	duration, dErr := meter.Float64Histogram(
		"compute.handler.duration",
		metric.WithDescription("Duration of method handler execution in seconds"),
		metric.WithUnit("s"),
	)
	_ = dErr // noop fallback guaranteed by OTel API contract

	executions, eErr := meter.Int64Counter(
		"compute.handler.executions",
		metric.WithDescription("Total number of method handler executions"),
		metric.WithUnit("{execution}"),
	)
	_ = eErr // noop fallback guaranteed by OTel API contract

	return func(ctx context.Context, req *protocol.ServiceRequest, next Handler) (map[string]any, error) {
		start := time.Now()
		data, err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		if err != nil {
			status = "error"
		}

		attrs := metric.WithAttributes(
			attribute.String("method", string(req.Method)),
			attribute.String("status", status),
		)
		duration.Record(ctx, elapsed, attrs)
		executions.Add(ctx, 1, attrs)

		return data, err
	}
}
