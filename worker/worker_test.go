package worker_test

import (
	"context"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/zhengren252/ntn-sub004/backoff"
	"github.com/zhengren252/ntn-sub004/cluster"
	"github.com/zhengren252/ntn-sub004/handler"
	"github.com/zhengren252/ntn-sub004/protocol"
	"github.com/zhengren252/ntn-sub004/store/memory"
	"github.com/zhengren252/ntn-sub004/transport"
	"github.com/zhengren252/ntn-sub004/worker"
)

// setupBackend starts a router standing in for the broker backend.
func setupBackend(t *testing.T) *transport.Router {
	t.Helper()
	r := transport.NewRouter("backend", "127.0.0.1:0")
	if err := r.Listen(context.Background()); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func startWorker(t *testing.T, url string, exec *worker.Executor, opts ...worker.Option) *worker.Worker {
	t.Helper()
	opts = append([]worker.Option{
		worker.WithPollInterval(50 * time.Millisecond),
		worker.WithBackoff(backoff.NewConstant(20 * time.Millisecond)),
	}, opts...)
	w := worker.New(url, exec, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return w
}

func nextInbound(t *testing.T, r *transport.Router) transport.Message {
	t.Helper()
	select {
	case msg := <-r.Inbound():
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for worker message")
		return nil
	}
}

func expectReady(t *testing.T, r *transport.Router, workerID string) {
	t.Helper()
	msg := nextInbound(t, r)
	if msg.Identity() != workerID || len(msg) != 2 || !protocol.IsReady(msg[1]) {
		t.Fatalf("expected READY from %s, got %q", workerID, msg)
	}
}

func TestWorker_ReadyPrecedesEachResponse(t *testing.T) {
	r := setupBackend(t)
	exec := worker.NewExecutor(nil, nil, nil, nil, nil, slog.Default())
	w := startWorker(t, r.URL(), exec, worker.WithID("wkr_test"))

	const n = 5
	readies := 0
	for i := 0; i < n; i++ {
		expectReady(t, r, w.ID())
		readies++

		err := r.Send(transport.Message{[]byte(w.ID()), []byte("cli_x"), []byte(`{"method":"health.check"}`)})
		if err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}

		reply := nextInbound(t, r)
		if len(reply) != 3 || string(reply[1]) != "cli_x" {
			t.Fatalf("reply %d = %q", i, reply)
		}
		resp, err := protocol.ParseResponse(reply[2])
		if err != nil {
			t.Fatalf("ParseResponse: %v", err)
		}
		if !resp.OK() || resp.Data["status"] != "healthy" {
			t.Fatalf("response %d = %+v", i, resp)
		}
		if readies != i+1 {
			t.Fatalf("readies = %d before response %d", readies, i)
		}
	}
	if w.Processed() != n {
		t.Errorf("Processed() = %d, want %d", w.Processed(), n)
	}
}

func TestWorker_StatusReporting(t *testing.T) {
	r := setupBackend(t)
	s := memory.New()
	exec := worker.NewExecutor(nil, nil, s, nil, nil, slog.Default())
	w := startWorker(t, r.URL(), exec)
	ctx := context.Background()

	dispatch := func(payload string) *protocol.ServiceResponse {
		t.Helper()
		expectReady(t, r, w.ID())
		if err := r.Send(transport.Message{[]byte(w.ID()), []byte("cli_x"), []byte(payload)}); err != nil {
			t.Fatalf("dispatch: %v", err)
		}
		reply := nextInbound(t, r)
		resp, err := protocol.ParseResponse(reply[len(reply)-1])
		if err != nil {
			t.Fatalf("ParseResponse: %v", err)
		}
		return resp
	}

	resp := dispatch(`{"method":"execute.order","params":{"symbol":"AAPL","action":"hold","quantity":100}}`)
	if resp.OK() {
		t.Fatal("expected validation error response")
	}
	ws, err := s.GetWorkerStatus(ctx, w.ID())
	if err != nil {
		t.Fatalf("GetWorkerStatus: %v", err)
	}
	if ws.ProcessedRequests != 0 {
		t.Errorf("processed_requests = %d after invalid request, want 0", ws.ProcessedRequests)
	}

	if resp := dispatch(`{"method":"health.check"}`); !resp.OK() {
		t.Fatalf("health.check failed: %s", resp.ErrorMessage())
	}
	ws, err = s.GetWorkerStatus(ctx, w.ID())
	if err != nil {
		t.Fatalf("GetWorkerStatus: %v", err)
	}
	if ws.ProcessedRequests != 1 || ws.Status != cluster.StateIdle {
		t.Errorf("status = %+v", ws)
	}
	if ws.MemoryUsage <= 0 {
		t.Errorf("memory_usage = %v, want > 0", ws.MemoryUsage)
	}
}

func TestWorker_ReconnectsAfterBrokerRestart(t *testing.T) {
	r := setupBackend(t)
	addr := r.Addr()
	exec := worker.NewExecutor(nil, nil, nil, nil, nil, slog.Default())
	w := startWorker(t, r.URL(), exec)
	expectReady(t, r, w.ID())

	_ = r.Close()

	r2 := transport.NewRouter("backend", addr)
	deadline := time.Now().Add(5 * time.Second)
	for {
		err := r2.Listen(context.Background())
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("relisten on %s: %v", addr, err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Cleanup(func() { _ = r2.Close() })

	expectReady(t, r2, w.ID())
}

func TestPool_StartStop(t *testing.T) {
	r := setupBackend(t)
	s := memory.New()
	exec := worker.NewExecutor(nil, nil, s, nil, nil, slog.Default())
	pool := worker.NewPool(r.URL(), exec, slog.Default(),
		worker.WithPoolSize(3),
		worker.WithWorkerOptions(worker.WithPollInterval(50*time.Millisecond)),
	)
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	seen := map[string]bool{}
	for len(seen) < 3 {
		msg := nextInbound(t, r)
		seen[msg.Identity()] = true
	}
	for _, w := range pool.Workers() {
		if !seen[w.ID()] {
			t.Errorf("worker %s never registered", w.ID())
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	statuses, err := s.ListWorkerStatus(context.Background())
	if err != nil {
		t.Fatalf("ListWorkerStatus: %v", err)
	}
	if len(statuses) != 3 {
		t.Fatalf("statuses = %d, want 3", len(statuses))
	}
	for _, ws := range statuses {
		if ws.Status != cluster.StateOffline {
			t.Errorf("worker %s status = %s, want offline", ws.WorkerID, ws.Status)
		}
	}
}

func TestPool_FixedWorkerIDs(t *testing.T) {
	r := setupBackend(t)
	exec := worker.NewExecutor(nil, nil, nil, nil, nil, slog.Default())
	pool := worker.NewPool(r.URL(), exec, slog.Default(),
		worker.WithPoolSize(5),
		worker.WithWorkerIDs("wkr_scan", "wkr_risk"),
		worker.WithWorkerOptions(worker.WithPollInterval(50*time.Millisecond)),
	)
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = pool.Stop(context.Background()) })

	if n := len(pool.Workers()); n != 2 {
		t.Fatalf("workers = %d, want 2", n)
	}
	seen := map[string]bool{}
	for len(seen) < 2 {
		seen[nextInbound(t, r).Identity()] = true
	}
	if !seen["wkr_scan"] || !seen["wkr_risk"] {
		t.Errorf("registered identities = %v", seen)
	}
}

func TestWorker_UnencodableResultStillRepliesAndReady(t *testing.T) {
	r := setupBackend(t)
	reg := handler.NewRegistry()
	reg.MustRegister(protocol.MethodEvaluateRisk, func(context.Context, protocol.Params) (map[string]any, error) {
		return map[string]any{"var": math.Inf(1)}, nil
	})
	exec := worker.NewExecutor(reg, nil, nil, nil, nil, slog.Default())
	w := startWorker(t, r.URL(), exec, worker.WithID("wkr_nan"))

	expectReady(t, r, w.ID())
	err := r.Send(transport.Message{[]byte(w.ID()), []byte("cli_x"),
		[]byte(`{"method":"evaluate.risk","params":{"portfolio":{},"proposed_trade":{}},"request_id":"req-nan"}`)})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	reply := nextInbound(t, r)
	if len(reply) != 3 || string(reply[1]) != "cli_x" {
		t.Fatalf("reply = %q", reply)
	}
	resp, err := protocol.ParseResponse(reply[2])
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if resp.OK() || resp.RequestID != "req-nan" {
		t.Fatalf("response = %+v, want error for req-nan", resp)
	}
	expectReady(t, r, w.ID())
}
