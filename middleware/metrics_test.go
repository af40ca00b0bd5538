package middleware_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	mw "github.com/zhengren252/ntn-sub004/middleware"
)

func setupTestMeter() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return reader, mp
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func hasAttr(attrs []attribute.KeyValue, key, value string) bool {
	for _, a := range attrs {
		if string(a.Key) == key && a.Value.AsString() == value {
			return true
		}
	}
	return false
}

func TestMetrics_RecordsDuration(t *testing.T) {
	reader, mp := setupTestMeter()
	m := mw.MetricsWithMeter(mp.Meter("test"))

	_, _ = m(context.Background(), newTestRequest(), okHandler)

	rm := collectMetrics(t, reader)
	metric := findMetric(rm, "compute.handler.duration")
	if metric == nil {
		t.Fatal("compute.handler.duration metric not found")
	}
	hist, ok := metric.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("expected Histogram[float64] data type")
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("no data points recorded for duration")
	}
	if hist.DataPoints[0].Count != 1 {
		t.Errorf("expected count=1, got %d", hist.DataPoints[0].Count)
	}
}

func TestMetrics_RecordsExecutions(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus string
	}{
		{"success", nil, "ok"},
		{"error", errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader, mp := setupTestMeter()
			m := mw.MetricsWithMeter(mp.Meter("test"))

			_, _ = m(context.Background(), newTestRequest(), func(_ context.Context) (map[string]any, error) {
				return nil, tt.err
			})

			rm := collectMetrics(t, reader)
			metric := findMetric(rm, "compute.handler.executions")
			if metric == nil {
				t.Fatal("compute.handler.executions metric not found")
			}
			sum, ok := metric.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatal("expected Sum[int64] data type")
			}
			if len(sum.DataPoints) == 0 {
				t.Fatal("no data points recorded")
			}
			if sum.DataPoints[0].Value != 1 {
				t.Errorf("expected value=1, got %d", sum.DataPoints[0].Value)
			}
			attrs := sum.DataPoints[0].Attributes.ToSlice()
			if !hasAttr(attrs, "status", tt.wantStatus) {
				t.Errorf("expected status=%s attribute", tt.wantStatus)
			}
			if !hasAttr(attrs, "method", "execute.order") {
				t.Error("expected method=execute.order attribute")
			}
		})
	}
}

func TestMetrics_DefaultNoopSafe(t *testing.T) {
	m := mw.Metrics()
	called := false
	_, err := m(context.Background(), newTestRequest(), func(_ context.Context) (map[string]any, error) {
		called = true
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("handler was not called")
	}
}
