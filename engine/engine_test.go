package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	compute "github.com/zhengren252/ntn-sub004"
	"github.com/zhengren252/ntn-sub004/cache"
	"github.com/zhengren252/ntn-sub004/client"
	"github.com/zhengren252/ntn-sub004/engine"
	"github.com/zhengren252/ntn-sub004/ext"
	"github.com/zhengren252/ntn-sub004/handler"
	"github.com/zhengren252/ntn-sub004/protocol"
	"github.com/zhengren252/ntn-sub004/requestlog"
	"github.com/zhengren252/ntn-sub004/store/memory"
)

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testConfig binds the broker on ephemeral ports.
func testConfig() compute.Config {
	cfg := compute.DefaultConfig()
	cfg.FrontendPort = 0
	cfg.BackendPort = 0
	cfg.PollInterval = 20 * time.Millisecond
	cfg.WorkerCount = 2
	cfg.WorkerPollInterval = 50 * time.Millisecond
	cfg.ReconnectInitial = 10 * time.Millisecond
	cfg.ReconnectMax = 100 * time.Millisecond
	return cfg
}

func newService(t *testing.T, st *memory.Store, cfg compute.Config) *compute.Service {
	t.Helper()
	svc, err := compute.New(
		compute.WithConfig(cfg),
		compute.WithLogger(testLogger()),
		compute.WithStore(st),
		compute.WithCache(cache.New(cache.NewMemoryBackend())),
	)
	if err != nil {
		t.Fatalf("compute.New: %v", err)
	}
	return svc
}

func startEngine(t *testing.T, eng *engine.Engine) {
	t.Helper()
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = eng.Stop(ctx)
	})
}

func dialFrontend(t *testing.T, url string) *client.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := client.Dial(ctx, url, client.WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("client.Dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func call(t *testing.T, c *client.Client, method protocol.Method, params protocol.Params) *protocol.ServiceResponse {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := c.Call(ctx, method, params)
	if err != nil {
		t.Fatalf("Call %s: %v", method, err)
	}
	return resp
}

type analyzeParams struct {
	Symbol     string   `json:"symbol"`
	Indicators []string `json:"indicators"`
}

// ──────────────────────────────────────────────────
// End-to-end: Build → Register → Call
// ──────────────────────────────────────────────────

func TestEngine_EndToEnd(t *testing.T) {
	st := memory.New()
	eng, err := engine.Build(newService(t, st, testConfig()))
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}

	var got analyzeParams
	err = engine.Register(eng, handler.NewDefinition(protocol.MethodAnalyzeStock,
		func(_ context.Context, p analyzeParams) (map[string]any, error) {
			got = p
			return map[string]any{"symbol": p.Symbol, "signal": "hold"}, nil
		}))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	startEngine(t, eng)
	c := dialFrontend(t, eng.FrontendURL())

	resp := call(t, c, protocol.MethodAnalyzeStock, protocol.Params{
		"symbol":     "AAPL",
		"indicators": []string{"rsi", "macd"},
	})
	if !resp.OK() {
		t.Fatalf("expected success, got %q", resp.ErrorMessage())
	}
	if resp.Data["signal"] != "hold" || resp.Data["symbol"] != "AAPL" {
		t.Errorf("unexpected data %v", resp.Data)
	}
	if got.Symbol != "AAPL" || len(got.Indicators) != 2 {
		t.Errorf("handler params = %+v", got)
	}

	entry, err := st.GetRequestLog(context.Background(), resp.RequestID)
	if err != nil {
		t.Fatalf("GetRequestLog: %v", err)
	}
	if entry.Status != requestlog.StatusSuccess {
		t.Errorf("logged status = %q, want success", entry.Status)
	}
	if entry.ClientID != c.Identity() {
		t.Errorf("logged client_id = %q, want %q", entry.ClientID, c.Identity())
	}
	if !strings.HasPrefix(entry.WorkerID, "wkr_") {
		t.Errorf("logged worker_id = %q, want wkr_ prefix", entry.WorkerID)
	}

	stats, err := eng.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Completed != 1 {
		t.Errorf("Completed = %d, want 1", stats.Completed)
	}
}

func TestEngine_HealthCheckAlwaysRegistered(t *testing.T) {
	eng, err := engine.Build(newService(t, memory.New(), testConfig()))
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}
	startEngine(t, eng)
	c := dialFrontend(t, eng.FrontendURL())

	resp := call(t, c, protocol.MethodHealthCheck, nil)
	if !resp.OK() || resp.Data["status"] != "healthy" {
		t.Fatalf("unexpected health response %+v", resp)
	}
}

func TestEngine_HandlerErrorBecomesErrorResponse(t *testing.T) {
	st := memory.New()
	eng, err := engine.Build(newService(t, st, testConfig()))
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}
	err = eng.Handle(protocol.MethodScanMarket, func(context.Context, protocol.Params) (map[string]any, error) {
		return nil, errors.New("exchange offline")
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	startEngine(t, eng)
	c := dialFrontend(t, eng.FrontendURL())

	resp := call(t, c, protocol.MethodScanMarket, protocol.Params{"market_type": "equity"})
	if resp.OK() {
		t.Fatal("expected error response")
	}
	if !strings.Contains(resp.ErrorMessage(), "exchange offline") {
		t.Errorf("error = %q, want handler message", resp.ErrorMessage())
	}

	entry, err := st.GetRequestLog(context.Background(), resp.RequestID)
	if err != nil {
		t.Fatalf("GetRequestLog: %v", err)
	}
	if entry.Status != requestlog.StatusError {
		t.Errorf("logged status = %q, want error", entry.Status)
	}
}

func TestEngine_ValidationError(t *testing.T) {
	eng, err := engine.Build(newService(t, memory.New(), testConfig()))
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}
	startEngine(t, eng)
	c := dialFrontend(t, eng.FrontendURL())

	resp := call(t, c, protocol.MethodExecuteOrder, protocol.Params{"symbol": "AAPL", "action": "hold", "quantity": 1})
	if resp.OK() {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(resp.ErrorMessage(), "action") {
		t.Errorf("error = %q, want mention of action", resp.ErrorMessage())
	}
}

// ──────────────────────────────────────────────────
// Extension lifecycle events
// ──────────────────────────────────────────────────

type lifecycleTracker struct {
	registered atomic.Int32
	dispatched atomic.Int32
	completed  atomic.Int32
	failed     atomic.Int32
	shutdown   atomic.Bool
}

func (e *lifecycleTracker) Name() string { return "lifecycle-tracker" }

func (e *lifecycleTracker) OnWorkerRegistered(_ context.Context, _ string) error {
	e.registered.Add(1)
	return nil
}

func (e *lifecycleTracker) OnRequestDispatched(_ context.Context, _ ext.Request, _ int) error {
	e.dispatched.Add(1)
	return nil
}

func (e *lifecycleTracker) OnRequestCompleted(_ context.Context, _ ext.Request, _ time.Duration) error {
	e.completed.Add(1)
	return nil
}

func (e *lifecycleTracker) OnRequestFailed(_ context.Context, _ ext.Request, _ error) error {
	e.failed.Add(1)
	return nil
}

func (e *lifecycleTracker) OnShutdown(_ context.Context) error {
	e.shutdown.Store(true)
	return nil
}

func TestEngine_ExtensionLifecycleEvents(t *testing.T) {
	tracker := &lifecycleTracker{}
	eng, err := engine.Build(newService(t, memory.New(), testConfig()), engine.WithExtension(tracker))
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	c := dialFrontend(t, eng.FrontendURL())

	call(t, c, protocol.MethodHealthCheck, nil)
	call(t, c, protocol.MethodGetMarketData, protocol.Params{"symbols": []string{}})

	if got := tracker.registered.Load(); got < 1 {
		t.Errorf("OnWorkerRegistered fired %d times, want >= 1", got)
	}
	if got := tracker.dispatched.Load(); got != 2 {
		t.Errorf("OnRequestDispatched fired %d times, want 2", got)
	}
	if got := tracker.completed.Load(); got != 1 {
		t.Errorf("OnRequestCompleted fired %d times, want 1", got)
	}
	if got := tracker.failed.Load(); got != 1 {
		t.Errorf("OnRequestFailed fired %d times, want 1", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := eng.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !tracker.shutdown.Load() {
		t.Error("expected OnShutdown to fire on stop")
	}
}

func TestEngine_MeterProvider(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	eng, err := engine.Build(newService(t, memory.New(), testConfig()), engine.WithMeterProvider(mp))
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}
	startEngine(t, eng)
	c := dialFrontend(t, eng.FrontendURL())
	call(t, c, protocol.MethodHealthCheck, nil)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	found := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			found[m.Name] = true
		}
	}
	for _, name := range []string{"compute.request.dispatched", "compute.request.completed", "compute.request.duration"} {
		if !found[name] {
			t.Errorf("metric %s not recorded", name)
		}
	}
}

// ──────────────────────────────────────────────────
// Build errors and roles
// ──────────────────────────────────────────────────

func TestEngine_BuildNoStore(t *testing.T) {
	svc, err := compute.New()
	if err != nil {
		t.Fatalf("compute.New: %v", err)
	}

	_, err = engine.Build(svc)
	if !errors.Is(err, compute.ErrNoStore) {
		t.Fatalf("expected ErrNoStore, got: %v", err)
	}
}

// badStore only implements Storer but not store.Store.
type badStore struct{}

func (badStore) Migrate(_ context.Context) error { return nil }
func (badStore) Ping(_ context.Context) error    { return nil }
func (badStore) Close() error                    { return nil }

func TestEngine_BuildBadStore(t *testing.T) {
	svc, err := compute.New(compute.WithStore(badStore{}))
	if err != nil {
		t.Fatalf("compute.New: %v", err)
	}

	_, err = engine.Build(svc)
	if err == nil {
		t.Fatal("expected error for store that doesn't implement store.Store")
	}
}

func TestEngine_WorkersNeedBroker(t *testing.T) {
	_, err := engine.Build(newService(t, memory.New(), testConfig()), engine.WithRoles(engine.RoleWorkers))
	if err == nil {
		t.Fatal("expected error for workers without a broker")
	}
}

func TestEngine_InvalidMaintenanceSchedule(t *testing.T) {
	cfg := testConfig()
	cfg.Maintenance.SnapshotSchedule = "every so often"
	_, err := engine.Build(newService(t, memory.New(), cfg))
	if err == nil {
		t.Fatal("expected schedule parse error")
	}
}

func TestEngine_Roles(t *testing.T) {
	tests := []struct {
		name           string
		roles          engine.Role
		wantBroker     bool
		wantScheduler  bool
		wantStatsError bool
	}{
		{name: "all", roles: engine.RoleAll, wantBroker: true, wantScheduler: true},
		{name: "broker only", roles: engine.RoleBroker, wantBroker: true},
		{name: "maintenance only", roles: engine.RoleMaintenance, wantScheduler: true, wantStatsError: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng, err := engine.Build(newService(t, memory.New(), testConfig()), engine.WithRoles(tt.roles))
			if err != nil {
				t.Fatalf("engine.Build: %v", err)
			}
			if (eng.Broker() != nil) != tt.wantBroker {
				t.Errorf("Broker() set = %v, want %v", eng.Broker() != nil, tt.wantBroker)
			}
			if (eng.Scheduler() != nil) != tt.wantScheduler {
				t.Errorf("Scheduler() set = %v, want %v", eng.Scheduler() != nil, tt.wantScheduler)
			}

			startEngine(t, eng)
			_, err = eng.Stats(context.Background())
			if (err != nil) != tt.wantStatsError {
				t.Errorf("Stats error = %v, want error %v", err, tt.wantStatsError)
			}
		})
	}
}

func TestEngine_SplitBrokerAndWorkers(t *testing.T) {
	brokerEng, err := engine.Build(newService(t, memory.New(), testConfig()), engine.WithRoles(engine.RoleBroker))
	if err != nil {
		t.Fatalf("engine.Build broker: %v", err)
	}
	startEngine(t, brokerEng)

	workerStore := memory.New()
	workerEng, err := engine.Build(newService(t, workerStore, testConfig()),
		engine.WithRoles(engine.RoleWorkers),
		engine.WithBrokerURL(brokerEng.Broker().BackendURL()),
	)
	if err != nil {
		t.Fatalf("engine.Build workers: %v", err)
	}
	startEngine(t, workerEng)

	c := dialFrontend(t, brokerEng.FrontendURL())
	resp := call(t, c, protocol.MethodHealthCheck, nil)
	if !resp.OK() {
		t.Fatalf("expected success, got %q", resp.ErrorMessage())
	}
	if len(workerEng.Pool().Workers()) != 2 {
		t.Errorf("pool size = %d, want 2", len(workerEng.Pool().Workers()))
	}
	if _, err := workerStore.GetRequestLog(context.Background(), resp.RequestID); err != nil {
		t.Errorf("worker process did not log the request: %v", err)
	}
}

func TestEngine_StartTwice(t *testing.T) {
	eng, err := engine.Build(newService(t, memory.New(), testConfig()))
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}
	startEngine(t, eng)
	if err := eng.Start(context.Background()); !errors.Is(err, compute.ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

// ──────────────────────────────────────────────────
// Backends
// ──────────────────────────────────────────────────

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		cfg     compute.PersistenceConfig
		wantErr bool
	}{
		{name: "default", cfg: compute.PersistenceConfig{}},
		{name: "memory", cfg: compute.PersistenceConfig{Driver: engine.DriverMemory}},
		{name: "sqlite", cfg: compute.PersistenceConfig{Driver: engine.DriverSQLite, DSN: filepath.Join(t.TempDir(), "compute.db")}},
		{name: "unknown", cfg: compute.PersistenceConfig{Driver: "cassandra"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := engine.OpenStore(ctx, tt.cfg, testLogger())
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("OpenStore: %v", err)
			}
			defer st.Close()
			if err := st.Ping(ctx); err != nil {
				t.Errorf("Ping: %v", err)
			}
		})
	}
}

func TestOpenCache_TTLOverride(t *testing.T) {
	cs := engine.OpenCache(compute.CacheConfig{
		Service: "scanner",
		TTLs:    map[string]time.Duration{"market_data": 5 * time.Second},
	}, testLogger())
	defer cs.Close()

	if got := cs.TTL(cache.CategoryMarketData); got != 5*time.Second {
		t.Errorf("TTL(market_data) = %v, want 5s", got)
	}
	if got := cs.Key(cache.CategoryMarketData, "AAPL"); !strings.HasPrefix(got, "scanner:") {
		t.Errorf("Key = %q, want scanner: prefix", got)
	}
}

func TestOpenBackends(t *testing.T) {
	opts, err := engine.OpenBackends(context.Background(), testConfig(), testLogger())
	if err != nil {
		t.Fatalf("OpenBackends: %v", err)
	}
	svc, err := compute.New(opts...)
	if err != nil {
		t.Fatalf("compute.New: %v", err)
	}
	if svc.Store() == nil || svc.Cache() == nil {
		t.Fatal("expected store and cache to be set")
	}
	if err := svc.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
