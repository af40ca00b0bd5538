package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	compute "github.com/zhengren252/ntn-sub004"
	"github.com/zhengren252/ntn-sub004/ext"
)

const meterName = "github.com/zhengren252/ntn-sub004/observability"

// Compile-time interface checks.
var (
	_ ext.Extension         = (*MetricsExtension)(nil)
	_ ext.WorkerRegistered  = (*MetricsExtension)(nil)
	_ ext.WorkerEvicted     = (*MetricsExtension)(nil)
	_ ext.RequestQueued     = (*MetricsExtension)(nil)
	_ ext.RequestRejected   = (*MetricsExtension)(nil)
	_ ext.RequestDispatched = (*MetricsExtension)(nil)
	_ ext.RequestCompleted  = (*MetricsExtension)(nil)
	_ ext.RequestFailed     = (*MetricsExtension)(nil)
)

// MetricsExtension records lifecycle counters through an OTel meter.
// Register it with the extension registry shared by the broker and the
// workers.
type MetricsExtension struct {
	WorkerRegistered metric.Int64Counter
	WorkerEvicted    metric.Int64Counter

	RequestQueued     metric.Int64Counter
	RequestRejected   metric.Int64Counter
	RequestDispatched metric.Int64Counter
	RequestRetried    metric.Int64Counter
	RequestCompleted  metric.Int64Counter
	RequestFailed     metric.Int64Counter
	RequestDuration   metric.Float64Histogram
}

// NewMetricsExtension creates a MetricsExtension on the global
// MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the
// provided meter. Instrument creation errors fall back to noops.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	counter := func(name, desc string) metric.Int64Counter {
		c, _ := meter.Int64Counter(name, metric.WithDescription(desc))
		return c
	}
	duration, _ := meter.Float64Histogram("compute.request.duration",
		metric.WithDescription("Handler time of completed requests in seconds"),
		metric.WithUnit("s"),
	)
	return &MetricsExtension{
		WorkerRegistered:  counter("compute.worker.registered", "Workers registered with the broker"),
		WorkerEvicted:     counter("compute.worker.evicted", "Workers evicted from rotation"),
		RequestQueued:     counter("compute.request.queued", "Requests queued while no worker was ready"),
		RequestRejected:   counter("compute.request.rejected", "Requests answered without dispatch"),
		RequestDispatched: counter("compute.request.dispatched", "Requests handed to a worker"),
		RequestRetried:    counter("compute.request.retried", "Dispatches after the first"),
		RequestCompleted:  counter("compute.request.completed", "Requests completed with data"),
		RequestFailed:     counter("compute.request.failed", "Requests ended with an error response"),
		RequestDuration:   duration,
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Worker lifecycle hooks ──────────────────────────

// OnWorkerRegistered implements ext.WorkerRegistered.
func (m *MetricsExtension) OnWorkerRegistered(ctx context.Context, _ string) error {
	m.WorkerRegistered.Add(ctx, 1)
	return nil
}

// OnWorkerEvicted implements ext.WorkerEvicted.
func (m *MetricsExtension) OnWorkerEvicted(ctx context.Context, _ string, reason error) error {
	m.WorkerEvicted.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", evictReason(reason))))
	return nil
}

// ── Request lifecycle hooks ─────────────────────────

// OnRequestQueued implements ext.RequestQueued.
func (m *MetricsExtension) OnRequestQueued(ctx context.Context, _ ext.Request, _ int) error {
	m.RequestQueued.Add(ctx, 1)
	return nil
}

// OnRequestRejected implements ext.RequestRejected.
func (m *MetricsExtension) OnRequestRejected(ctx context.Context, _ ext.Request, reason error) error {
	m.RequestRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", rejectReason(reason))))
	return nil
}

// OnRequestDispatched implements ext.RequestDispatched.
func (m *MetricsExtension) OnRequestDispatched(ctx context.Context, _ ext.Request, attempt int) error {
	m.RequestDispatched.Add(ctx, 1)
	if attempt > 1 {
		m.RequestRetried.Add(ctx, 1)
	}
	return nil
}

// OnRequestCompleted implements ext.RequestCompleted.
func (m *MetricsExtension) OnRequestCompleted(ctx context.Context, r ext.Request, elapsed time.Duration) error {
	attrs := metric.WithAttributes(attribute.String("method", r.Method))
	m.RequestCompleted.Add(ctx, 1, attrs)
	m.RequestDuration.Record(ctx, elapsed.Seconds(), attrs)
	return nil
}

// OnRequestFailed implements ext.RequestFailed.
func (m *MetricsExtension) OnRequestFailed(ctx context.Context, r ext.Request, err error) error {
	m.RequestFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", r.Method),
		attribute.String("kind", failureKind(err)),
	))
	return nil
}

func evictReason(err error) string {
	if errors.Is(err, compute.ErrWorkerTimeout) {
		return "timeout"
	}
	return "disconnect"
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, compute.ErrQueueFull):
		return "queue_full"
	case errors.Is(err, compute.ErrRateLimited):
		return "rate_limited"
	default:
		return "other"
	}
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, compute.ErrValidation):
		return "validation"
	case errors.Is(err, compute.ErrHandlerExecution):
		return "handler"
	case errors.Is(err, compute.ErrWorkerTimeout):
		return "timeout"
	case errors.Is(err, compute.ErrShuttingDown):
		return "shutdown"
	default:
		return "other"
	}
}
