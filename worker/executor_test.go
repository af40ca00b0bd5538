package worker_test

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"sync/atomic"
	"testing"

	compute "github.com/zhengren252/ntn-sub004"
	"github.com/zhengren252/ntn-sub004/cache"
	"github.com/zhengren252/ntn-sub004/handler"
	"github.com/zhengren252/ntn-sub004/middleware"
	"github.com/zhengren252/ntn-sub004/protocol"
	"github.com/zhengren252/ntn-sub004/requestlog"
	"github.com/zhengren252/ntn-sub004/store/memory"
	"github.com/zhengren252/ntn-sub004/worker"
)

type executorFixture struct {
	exec    *worker.Executor
	store   *memory.Store
	backend *cache.MemoryBackend
	cache   *cache.Store
	reg     *handler.Registry
}

func setupExecutor(t *testing.T) *executorFixture {
	t.Helper()
	logger := slog.Default()
	f := &executorFixture{
		store:   memory.New(),
		backend: cache.NewMemoryBackend(),
		reg:     handler.NewRegistry(),
	}
	f.cache = cache.New(f.backend, cache.WithLogger(logger))
	f.exec = worker.NewExecutor(f.reg, nil, f.store, f.cache, nil, logger,
		middleware.Recover(logger),
	)
	return f
}

func TestExecutor_HealthCheck(t *testing.T) {
	f := setupExecutor(t)
	res := f.exec.Execute(context.Background(), "wkr_a", "cli_a", []byte(`{"method":"health.check","request_id":"req-1"}`))

	if !res.Response.OK() {
		t.Fatalf("status = %s, error = %s", res.Response.Status, res.Response.ErrorMessage())
	}
	if res.Response.Data["status"] != "healthy" {
		t.Errorf("data = %v", res.Response.Data)
	}
	if res.Response.ProcessingTimeMs <= 0 {
		t.Errorf("processing_time_ms = %v, want > 0", res.Response.ProcessingTimeMs)
	}
	if !res.Counted {
		t.Error("health check should count as processed")
	}

	e, err := f.store.GetRequestLog(context.Background(), "req-1")
	if err != nil {
		t.Fatalf("GetRequestLog: %v", err)
	}
	if e.Status != requestlog.StatusSuccess || e.WorkerID != "wkr_a" || e.ClientID != "cli_a" {
		t.Errorf("entry = %+v", e)
	}
	if e.RequestData["method"] != "health.check" || e.ResponseData["status"] != "success" {
		t.Errorf("payloads = %v / %v", e.RequestData, e.ResponseData)
	}
}

func TestExecutor_ValidationNeverReachesHandler(t *testing.T) {
	f := setupExecutor(t)
	var calls atomic.Int32
	f.reg.MustRegister(protocol.MethodExecuteOrder, func(context.Context, protocol.Params) (map[string]any, error) {
		calls.Add(1)
		return map[string]any{}, nil
	})

	res := f.exec.Execute(context.Background(), "wkr_a", "cli_a",
		[]byte(`{"method":"execute.order","params":{"symbol":"AAPL","action":"hold","quantity":100},"request_id":"req-hold"}`))

	if res.Response.OK() {
		t.Fatal("expected error response")
	}
	if !strings.Contains(res.Response.ErrorMessage(), "action") {
		t.Errorf("error = %q", res.Response.ErrorMessage())
	}
	if res.Counted {
		t.Error("validation failure must not count as processed")
	}
	if calls.Load() != 0 {
		t.Error("handler was called for invalid params")
	}

	e, err := f.store.GetRequestLog(context.Background(), "req-hold")
	if err != nil {
		t.Fatalf("GetRequestLog: %v", err)
	}
	if e.Status != requestlog.StatusError {
		t.Errorf("status = %s, want error", e.Status)
	}
}

func TestExecutor_ParseFailures(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"garbage", `not json`, "invalid encoding"},
		{"missing method", `{"params":{}}`, "method"},
		{"unsupported", `{"method":"cancel.order","request_id":"r"}`, "unsupported"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupExecutor(t)
			res := f.exec.Execute(context.Background(), "wkr_a", "cli_a", []byte(tt.payload))
			if res.Response.OK() || !strings.Contains(res.Response.ErrorMessage(), tt.want) {
				t.Fatalf("response = %+v (%s)", res.Response, res.Response.ErrorMessage())
			}
			if res.Counted {
				t.Error("parse failure must not count as processed")
			}
		})
	}
}

func TestExecutor_HandlerErrorAndPanic(t *testing.T) {
	tests := []struct {
		name     string
		fn       handler.Func
		wantText string
	}{
		{
			name: "error",
			fn: func(context.Context, protocol.Params) (map[string]any, error) {
				return nil, errors.New("exchange unreachable")
			},
			wantText: "error: exchange unreachable",
		},
		{
			name: "panic",
			fn: func(context.Context, protocol.Params) (map[string]any, error) {
				panic("nil portfolio")
			},
			wantText: "panic: nil portfolio",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupExecutor(t)
			f.reg.MustRegister(protocol.MethodEvaluateRisk, tt.fn)

			res := f.exec.Execute(context.Background(), "wkr_a", "cli_a",
				[]byte(`{"method":"evaluate.risk","params":{"portfolio":{},"proposed_trade":{}},"request_id":"req-r"}`))
			if res.Response.OK() {
				t.Fatal("expected error response")
			}
			if got := res.Response.ErrorMessage(); got != tt.wantText {
				t.Errorf("error = %q, want %q", got, tt.wantText)
			}
			if !res.Counted {
				t.Error("handler failures count as processed")
			}
		})
	}
}

func TestExecutor_MarketDataCacheAside(t *testing.T) {
	f := setupExecutor(t)
	var calls atomic.Int32
	f.reg.MustRegister(protocol.MethodGetMarketData, func(_ context.Context, p protocol.Params) (map[string]any, error) {
		calls.Add(1)
		return map[string]any{"AAPL": map[string]any{"price": 190.5}}, nil
	})

	payload := []byte(`{"method":"get.market_data","params":{"symbols":["AAPL"]}}`)
	for i := 0; i < 2; i++ {
		res := f.exec.Execute(context.Background(), "wkr_a", "cli_a", payload)
		if !res.Response.OK() {
			t.Fatalf("call %d: %s", i, res.Response.ErrorMessage())
		}
	}
	if calls.Load() != 1 {
		t.Errorf("handler calls = %d, want 1", calls.Load())
	}
	if st := f.cache.Stats(context.Background()); st.Hits < 1 {
		t.Errorf("stats = %+v, want at least one hit", st)
	}
}

func TestExecutor_CacheDownRecomputes(t *testing.T) {
	f := setupExecutor(t)
	f.backend.SetUnavailable(true)
	var calls atomic.Int32
	f.reg.MustRegister(protocol.MethodAnalyzeStock, func(context.Context, protocol.Params) (map[string]any, error) {
		calls.Add(1)
		return map[string]any{"trend": "up"}, nil
	})

	payload := []byte(`{"method":"analyze.stock","params":{"symbol":"MSFT"}}`)
	for i := 0; i < 2; i++ {
		res := f.exec.Execute(context.Background(), "wkr_a", "cli_a", payload)
		if !res.Response.OK() {
			t.Fatalf("call %d: %s", i, res.Response.ErrorMessage())
		}
	}
	if calls.Load() != 2 {
		t.Errorf("handler calls = %d, want 2 with cache down", calls.Load())
	}
}

func TestExecutor_NoHandler(t *testing.T) {
	f := setupExecutor(t)
	res := f.exec.Execute(context.Background(), "wkr_a", "cli_a",
		[]byte(`{"method":"scan.market","params":{"market_type":"crypto"}}`))
	if res.Response.OK() || !strings.Contains(res.Response.ErrorMessage(), "no handler") {
		t.Fatalf("response = %s", res.Response.ErrorMessage())
	}
}

const riskPayload = `{"method":"evaluate.risk","params":{"portfolio":{},"proposed_trade":{}},"request_id":"req-r"}`

func TestExecutor_PanicWithoutRecoverMiddleware(t *testing.T) {
	reg := handler.NewRegistry()
	reg.MustRegister(protocol.MethodEvaluateRisk, func(context.Context, protocol.Params) (map[string]any, error) {
		panic("nil portfolio")
	})
	st := memory.New()
	exec := worker.NewExecutor(reg, nil, st, nil, nil, slog.Default())

	res := exec.Execute(context.Background(), "wkr_a", "cli_a", []byte(riskPayload))
	if res.Response.OK() {
		t.Fatal("expected error response")
	}
	if got := res.Response.ErrorMessage(); got != "panic: nil portfolio" {
		t.Errorf("error = %q, want panic: nil portfolio", got)
	}
	var he *compute.HandlerExecutionError
	if !errors.As(res.Err, &he) || he.Kind != "panic" {
		t.Errorf("Err = %v, want HandlerExecutionError of kind panic", res.Err)
	}
	if len(res.Payload) == 0 {
		t.Error("expected an encoded payload")
	}

	e, err := st.GetRequestLog(context.Background(), "req-r")
	if err != nil {
		t.Fatalf("GetRequestLog: %v", err)
	}
	if e.Status != requestlog.StatusError {
		t.Errorf("log status = %s, want error", e.Status)
	}
}

func TestExecutor_UnencodableResult(t *testing.T) {
	f := setupExecutor(t)
	f.reg.MustRegister(protocol.MethodEvaluateRisk, func(context.Context, protocol.Params) (map[string]any, error) {
		return map[string]any{"var": math.NaN()}, nil
	})

	res := f.exec.Execute(context.Background(), "wkr_a", "cli_a", []byte(riskPayload))
	if res.Response.OK() {
		t.Fatal("expected error response for a NaN result")
	}
	var he *compute.HandlerExecutionError
	if !errors.As(res.Err, &he) || he.Kind != "encode" {
		t.Fatalf("Err = %v, want HandlerExecutionError of kind encode", res.Err)
	}

	resp, err := protocol.ParseResponse(res.Payload)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if resp.RequestID != "req-r" || resp.OK() || !strings.HasPrefix(resp.ErrorMessage(), "encode: ") {
		t.Errorf("decoded response = %+v", resp)
	}

	e, err := f.store.GetRequestLog(context.Background(), "req-r")
	if err != nil {
		t.Fatalf("GetRequestLog: %v", err)
	}
	if e.Status != requestlog.StatusError {
		t.Errorf("log status = %s, want error", e.Status)
	}
}
