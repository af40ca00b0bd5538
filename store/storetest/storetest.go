// Package storetest is a conformance suite run against every store.Store
// backend.
package storetest

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	compute "github.com/zhengren252/ntn-sub004"
	"github.com/zhengren252/ntn-sub004/cluster"
	"github.com/zhengren252/ntn-sub004/metrics"
	"github.com/zhengren252/ntn-sub004/requestlog"
	"github.com/zhengren252/ntn-sub004/store"
)

// Factory returns a fresh, migrated, empty store.
type Factory func(t *testing.T) store.Store

// Run executes the full suite. Each subtest gets its own store.
func Run(t *testing.T, newStore Factory) {
	t.Helper()
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"Lifecycle", testLifecycle},
		{"LogRequestThenResponse", testLogRequestThenResponse},
		{"LogRequestIsUpsert", testLogRequestIsUpsert},
		{"LogResponseWithoutRequest", testLogResponseWithoutRequest},
		{"ListRequestLogs", testListRequestLogs},
		{"ServiceStats", testServiceStats},
		{"MethodStatistics", testMethodStatistics},
		{"WorkerStatusUpsert", testWorkerStatusUpsert},
		{"SetWorkerState", testSetWorkerState},
		{"Metrics", testMetrics},
		{"CleanupOldData", testCleanupOldData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func logPair(t *testing.T, s store.Store, reqID, method string, status requestlog.Status, ms float64, at time.Time) {
	t.Helper()
	ctx := context.Background()
	if err := s.LogRequest(ctx, &requestlog.Entry{
		RequestID:   reqID,
		Method:      method,
		ClientID:    "client-1",
		WorkerID:    "worker-1",
		RequestData: map[string]any{"method": method},
		CreatedAt:   at,
	}); err != nil {
		t.Fatalf("LogRequest(%s): %v", reqID, err)
	}
	if status == requestlog.StatusPending {
		return
	}
	if err := s.LogResponse(ctx, reqID, map[string]any{"status": string(status)}, ms, status); err != nil {
		t.Fatalf("LogResponse(%s): %v", reqID, err)
	}
}

func testLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate (idempotent): %v", err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func testLogRequestThenResponse(t *testing.T, s store.Store) {
	ctx := context.Background()
	if err := s.LogRequest(ctx, &requestlog.Entry{
		RequestID:   "req-1",
		Method:      "analyze.stock",
		ClientID:    "cli-a",
		WorkerID:    "wkr-a",
		RequestData: map[string]any{"symbol": "AAPL"},
	}); err != nil {
		t.Fatalf("LogRequest: %v", err)
	}

	e, err := s.GetRequestLog(ctx, "req-1")
	if err != nil {
		t.Fatalf("GetRequestLog: %v", err)
	}
	if e.Status != requestlog.StatusPending || e.ResponseData != nil {
		t.Fatalf("fresh row = %+v", e)
	}

	resp := map[string]any{"request_id": "req-1", "status": "success", "data": map[string]any{"score": 0.8}}
	if err := s.LogResponse(ctx, "req-1", resp, 12.5, requestlog.StatusSuccess); err != nil {
		t.Fatalf("LogResponse: %v", err)
	}

	logs, err := s.ListRequestLogs(ctx, 100)
	if err != nil {
		t.Fatalf("ListRequestLogs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("rows = %d, want exactly 1", len(logs))
	}
	got := logs[0]
	if got.RequestID != "req-1" || got.Method != "analyze.stock" || got.ClientID != "cli-a" || got.WorkerID != "wkr-a" {
		t.Errorf("identity columns = %+v", got)
	}
	if got.RequestData["symbol"] != "AAPL" {
		t.Errorf("request_data = %#v", got.RequestData)
	}
	if got.ResponseData["status"] != "success" {
		t.Errorf("response_data = %#v", got.ResponseData)
	}
	if got.Status != requestlog.StatusSuccess || !approx(got.ProcessingTimeMs, 12.5) {
		t.Errorf("status=%s ms=%v", got.Status, got.ProcessingTimeMs)
	}
	if got.CreatedAt.IsZero() {
		t.Error("created_at not set")
	}
}

func testLogRequestIsUpsert(t *testing.T, s store.Store) {
	ctx := context.Background()
	logPair(t, s, "req-dup", "scan.market", requestlog.StatusError, 3, time.Time{})
	if err := s.LogRequest(ctx, &requestlog.Entry{RequestID: "req-dup", Method: "scan.market", WorkerID: "worker-2"}); err != nil {
		t.Fatalf("second LogRequest: %v", err)
	}
	logs, err := s.ListRequestLogs(ctx, 0)
	if err != nil {
		t.Fatalf("ListRequestLogs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("rows = %d, want 1", len(logs))
	}
	if logs[0].WorkerID != "worker-2" || logs[0].Status != requestlog.StatusPending {
		t.Fatalf("row not reset: %+v", logs[0])
	}
}

func testLogResponseWithoutRequest(t *testing.T, s store.Store) {
	err := s.LogResponse(context.Background(), "ghost", map[string]any{}, 1, requestlog.StatusSuccess)
	if !errors.Is(err, compute.ErrRequestNotFound) {
		t.Fatalf("err = %v, want ErrRequestNotFound", err)
	}
	logs, _ := s.ListRequestLogs(context.Background(), 0)
	if len(logs) != 0 {
		t.Fatalf("LogResponse inserted a row: %+v", logs)
	}
}

func testListRequestLogs(t *testing.T, s store.Store) {
	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)
	for i, id := range []string{"a", "b", "c"} {
		logPair(t, s, id, "health.check", requestlog.StatusSuccess, 1, base.Add(time.Duration(i)*time.Minute))
	}
	logs, err := s.ListRequestLogs(context.Background(), 2)
	if err != nil {
		t.Fatalf("ListRequestLogs: %v", err)
	}
	if len(logs) != 2 || logs[0].RequestID != "c" || logs[1].RequestID != "b" {
		ids := make([]string, len(logs))
		for i, l := range logs {
			ids[i] = l.RequestID
		}
		t.Fatalf("got %v, want [c b]", ids)
	}
}

func testServiceStats(t *testing.T, s store.Store) {
	logPair(t, s, "s1", "health.check", requestlog.StatusSuccess, 10, time.Time{})
	logPair(t, s, "s2", "health.check", requestlog.StatusSuccess, 20, time.Time{})
	logPair(t, s, "s3", "execute.order", requestlog.StatusError, 30, time.Time{})
	logPair(t, s, "s4", "execute.order", requestlog.StatusTimeout, 40, time.Time{})
	logPair(t, s, "s5", "scan.market", requestlog.StatusPending, 0, time.Time{})

	st, err := s.ServiceStats(context.Background())
	if err != nil {
		t.Fatalf("ServiceStats: %v", err)
	}
	if st.TotalRequests != 5 || st.SuccessfulRequests != 2 || st.FailedRequests != 2 {
		t.Fatalf("stats = %+v", st)
	}
	if !approx(st.AvgResponseTimeMs, 25) {
		t.Fatalf("avg = %v, want 25", st.AvgResponseTimeMs)
	}
}

func testMethodStatistics(t *testing.T, s store.Store) {
	logPair(t, s, "m1", "analyze.stock", requestlog.StatusSuccess, 10, time.Time{})
	logPair(t, s, "m2", "analyze.stock", requestlog.StatusError, 30, time.Time{})
	logPair(t, s, "m3", "health.check", requestlog.StatusSuccess, 2, time.Time{})

	stats, err := s.MethodStatistics(context.Background())
	if err != nil {
		t.Fatalf("MethodStatistics: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("methods = %d, want 2", len(stats))
	}
	a, h := stats[0], stats[1]
	if a.Method != "analyze.stock" || a.CallCount != 2 || !approx(a.AvgLatencyMs, 20) || !approx(a.SuccessRate, 0.5) {
		t.Errorf("analyze.stock = %+v", a)
	}
	if h.Method != "health.check" || h.CallCount != 1 || !approx(h.AvgLatencyMs, 2) || !approx(h.SuccessRate, 1) {
		t.Errorf("health.check = %+v", h)
	}
}

func testWorkerStatusUpsert(t *testing.T, s store.Store) {
	ctx := context.Background()
	ws := &cluster.WorkerStatus{WorkerID: "w1", Status: cluster.StateIdle, ProcessedRequests: 0}
	if err := s.UpdateWorkerStatus(ctx, ws); err != nil {
		t.Fatalf("UpdateWorkerStatus: %v", err)
	}
	ws2 := &cluster.WorkerStatus{WorkerID: "w1", Status: cluster.StateIdle, ProcessedRequests: 3, CPUUsage: 12.5, MemoryUsage: 42}
	if err := s.UpdateWorkerStatus(ctx, ws2); err != nil {
		t.Fatalf("UpdateWorkerStatus: %v", err)
	}
	if err := s.UpdateWorkerStatus(ctx, &cluster.WorkerStatus{WorkerID: "w0", Status: cluster.StateBusy}); err != nil {
		t.Fatalf("UpdateWorkerStatus: %v", err)
	}

	all, err := s.ListWorkerStatus(ctx)
	if err != nil {
		t.Fatalf("ListWorkerStatus: %v", err)
	}
	if len(all) != 2 || all[0].WorkerID != "w0" || all[1].WorkerID != "w1" {
		t.Fatalf("workers = %+v", all)
	}
	got := all[1]
	if got.ProcessedRequests != 3 || !approx(got.CPUUsage, 12.5) || !approx(got.MemoryUsage, 42) {
		t.Fatalf("w1 = %+v", got)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("updated_at not set")
	}

	if _, err := s.GetWorkerStatus(ctx, "nobody"); !errors.Is(err, compute.ErrWorkerNotFound) {
		t.Fatalf("GetWorkerStatus(nobody) err = %v", err)
	}
}

func testSetWorkerState(t *testing.T, s store.Store) {
	ctx := context.Background()
	if err := s.UpdateWorkerStatus(ctx, &cluster.WorkerStatus{WorkerID: "w1", Status: cluster.StateBusy, ProcessedRequests: 7}); err != nil {
		t.Fatalf("UpdateWorkerStatus: %v", err)
	}
	if err := s.SetWorkerState(ctx, "w1", cluster.StateOffline); err != nil {
		t.Fatalf("SetWorkerState: %v", err)
	}
	got, err := s.GetWorkerStatus(ctx, "w1")
	if err != nil {
		t.Fatalf("GetWorkerStatus: %v", err)
	}
	if got.Status != cluster.StateOffline || got.ProcessedRequests != 7 {
		t.Fatalf("w1 = %+v", got)
	}

	if err := s.SetWorkerState(ctx, "never-reported", cluster.StateOffline); err != nil {
		t.Fatalf("SetWorkerState(new): %v", err)
	}
	got, err = s.GetWorkerStatus(ctx, "never-reported")
	if err != nil {
		t.Fatalf("GetWorkerStatus(new): %v", err)
	}
	if got.Status != cluster.StateOffline {
		t.Fatalf("new worker = %+v", got)
	}
}

func testMetrics(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)
	for i := range 3 {
		if err := s.RecordMetric(ctx, &metrics.Metric{
			Name:      metrics.NameRequestsTotal,
			Value:     float64(i),
			Data:      map[string]any{"i": float64(i)},
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatalf("RecordMetric: %v", err)
		}
	}
	if err := s.RecordMetric(ctx, &metrics.Metric{Name: metrics.NameLatencyAvgMs, Value: 9}); err != nil {
		t.Fatalf("RecordMetric: %v", err)
	}

	got, err := s.ListMetrics(ctx, metrics.NameRequestsTotal, 2)
	if err != nil {
		t.Fatalf("ListMetrics: %v", err)
	}
	if len(got) != 2 || !approx(got[0].Value, 2) || !approx(got[1].Value, 1) {
		t.Fatalf("metrics = %+v", got)
	}
	if v, _ := got[0].Data["i"].(float64); !approx(v, 2) {
		t.Errorf("metric_data = %#v", got[0].Data)
	}

	all, err := s.ListMetrics(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListMetrics(all): %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("all metrics = %d", len(all))
	}
}

func testCleanupOldData(t *testing.T, s store.Store) {
	ctx := context.Background()
	old := time.Now().UTC().Add(-40 * 24 * time.Hour)
	logPair(t, s, "old", "health.check", requestlog.StatusSuccess, 1, old)
	logPair(t, s, "new", "health.check", requestlog.StatusSuccess, 1, time.Time{})
	if err := s.RecordMetric(ctx, &metrics.Metric{Name: "x", Value: 1, CreatedAt: old}); err != nil {
		t.Fatalf("RecordMetric: %v", err)
	}
	if err := s.RecordMetric(ctx, &metrics.Metric{Name: "x", Value: 2}); err != nil {
		t.Fatalf("RecordMetric: %v", err)
	}

	res, err := s.CleanupOldData(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("CleanupOldData: %v", err)
	}
	if res.RequestLogs != 1 || res.Metrics != 1 || res.Total() != 2 {
		t.Fatalf("cleanup = %+v", res)
	}
	if _, err := s.GetRequestLog(ctx, "old"); !errors.Is(err, compute.ErrRequestNotFound) {
		t.Fatalf("old row survived: %v", err)
	}
	if _, err := s.GetRequestLog(ctx, "new"); err != nil {
		t.Fatalf("new row removed: %v", err)
	}
}
