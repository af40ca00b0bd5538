package observability_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	compute "github.com/zhengren252/ntn-sub004"
	"github.com/zhengren252/ntn-sub004/ext"
	"github.com/zhengren252/ntn-sub004/observability"
)

func newTestExtension() (*observability.MetricsExtension, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return observability.NewMetricsExtensionWithMeter(mp.Meter("test")), reader
}

func newTestRequest() ext.Request {
	return ext.Request{
		RequestID: "req_test",
		Method:    "health.check",
		ClientID:  "cli_test",
		WorkerID:  "wkr_test",
	}
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return rm
}

// counterSum returns the sum of all data points of an Int64 counter, and
// the attribute set of the first point.
func counterSum(t *testing.T, rm metricdata.ResourceMetrics, name string) (int64, attribute.Set) {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s: expected Sum[int64], got %T", name, m.Data)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			var attrs attribute.Set
			if len(sum.DataPoints) > 0 {
				attrs = sum.DataPoints[0].Attributes
			}
			return total, attrs
		}
	}
	return 0, attribute.Set{}
}

func TestMetricsExtension_Name(t *testing.T) {
	e, _ := newTestExtension()
	if e.Name() != "observability-metrics" {
		t.Errorf("expected name %q, got %q", "observability-metrics", e.Name())
	}
}

func TestMetricsExtension_Hooks(t *testing.T) {
	ctx := context.Background()
	r := newTestRequest()

	tests := []struct {
		name     string
		fire     func(e *observability.MetricsExtension) error
		metric   string
		attrKey  string
		attrWant string
	}{
		{
			name:   "worker registered",
			fire:   func(e *observability.MetricsExtension) error { return e.OnWorkerRegistered(ctx, "wkr_1") },
			metric: "compute.worker.registered",
		},
		{
			name: "worker evicted on timeout",
			fire: func(e *observability.MetricsExtension) error {
				return e.OnWorkerEvicted(ctx, "wkr_1", &compute.WorkerTimeoutError{WorkerID: "wkr_1", Timeout: time.Second})
			},
			metric: "compute.worker.evicted", attrKey: "reason", attrWant: "timeout",
		},
		{
			name: "worker evicted on disconnect",
			fire: func(e *observability.MetricsExtension) error {
				return e.OnWorkerEvicted(ctx, "wkr_1", errors.New("closed"))
			},
			metric: "compute.worker.evicted", attrKey: "reason", attrWant: "disconnect",
		},
		{
			name:   "request queued",
			fire:   func(e *observability.MetricsExtension) error { return e.OnRequestQueued(ctx, r, 3) },
			metric: "compute.request.queued",
		},
		{
			name: "request rejected queue full",
			fire: func(e *observability.MetricsExtension) error {
				return e.OnRequestRejected(ctx, r, compute.ErrQueueFull)
			},
			metric: "compute.request.rejected", attrKey: "reason", attrWant: "queue_full",
		},
		{
			name: "request rejected rate limited",
			fire: func(e *observability.MetricsExtension) error {
				return e.OnRequestRejected(ctx, r, compute.ErrRateLimited)
			},
			metric: "compute.request.rejected", attrKey: "reason", attrWant: "rate_limited",
		},
		{
			name:   "request dispatched",
			fire:   func(e *observability.MetricsExtension) error { return e.OnRequestDispatched(ctx, r, 1) },
			metric: "compute.request.dispatched",
		},
		{
			name:   "request retried",
			fire:   func(e *observability.MetricsExtension) error { return e.OnRequestDispatched(ctx, r, 2) },
			metric: "compute.request.retried",
		},
		{
			name:   "request completed",
			fire:   func(e *observability.MetricsExtension) error { return e.OnRequestCompleted(ctx, r, 5*time.Millisecond) },
			metric: "compute.request.completed", attrKey: "method", attrWant: "health.check",
		},
		{
			name: "request failed in handler",
			fire: func(e *observability.MetricsExtension) error {
				return e.OnRequestFailed(ctx, r, &compute.HandlerExecutionError{Method: "health.check", Kind: "error", Err: errors.New("boom")})
			},
			metric: "compute.request.failed", attrKey: "kind", attrWant: "handler",
		},
		{
			name: "request failed validation",
			fire: func(e *observability.MetricsExtension) error {
				return e.OnRequestFailed(ctx, r, compute.NewValidationError("bad"))
			},
			metric: "compute.request.failed", attrKey: "kind", attrWant: "validation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, reader := newTestExtension()
			if err := tt.fire(e); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			got, attrs := counterSum(t, collect(t, reader), tt.metric)
			if got != 1 {
				t.Fatalf("%s: want 1, got %d", tt.metric, got)
			}
			if tt.attrKey == "" {
				return
			}
			v, ok := attrs.Value(attribute.Key(tt.attrKey))
			if !ok || v.AsString() != tt.attrWant {
				t.Errorf("%s attribute %s = %q, want %q", tt.metric, tt.attrKey, v.AsString(), tt.attrWant)
			}
		})
	}
}

func TestMetricsExtension_FirstDispatchIsNotRetry(t *testing.T) {
	e, reader := newTestExtension()
	_ = e.OnRequestDispatched(context.Background(), newTestRequest(), 1)

	if got, _ := counterSum(t, collect(t, reader), "compute.request.retried"); got != 0 {
		t.Errorf("compute.request.retried: want 0, got %d", got)
	}
}

func TestMetricsExtension_RecordsDuration(t *testing.T) {
	e, reader := newTestExtension()
	_ = e.OnRequestCompleted(context.Background(), newTestRequest(), 250*time.Millisecond)

	rm := collect(t, reader)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "compute.request.duration" {
				continue
			}
			hist, ok := m.Data.(metricdata.Histogram[float64])
			if !ok || len(hist.DataPoints) != 1 {
				t.Fatalf("unexpected duration data: %T", m.Data)
			}
			if hist.DataPoints[0].Sum != 0.25 {
				t.Errorf("duration sum = %v, want 0.25", hist.DataPoints[0].Sum)
			}
			return
		}
	}
	t.Fatal("compute.request.duration not recorded")
}

func TestMetricsExtension_ViaRegistry(t *testing.T) {
	e, reader := newTestExtension()
	reg := ext.NewRegistry(slog.Default())
	reg.Register(e)

	ctx := context.Background()
	reg.EmitWorkerRegistered(ctx, "wkr_1")
	reg.EmitRequestDispatched(ctx, newTestRequest(), 1)
	reg.EmitRequestCompleted(ctx, newTestRequest(), time.Millisecond)

	rm := collect(t, reader)
	for _, name := range []string{"compute.worker.registered", "compute.request.dispatched", "compute.request.completed"} {
		if got, _ := counterSum(t, rm, name); got != 1 {
			t.Errorf("%s: want 1, got %d", name, got)
		}
	}
}
