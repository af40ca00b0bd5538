package ext_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/zhengren252/ntn-sub004/ext"
)

// ──────────────────────────────────────────────────
// Test extensions
// ──────────────────────────────────────────────────

// allHooksExt implements every lifecycle hook.
type allHooksExt struct {
	mu    sync.Mutex
	calls []string
}

func (e *allHooksExt) record(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, name)
	return nil
}

func (e *allHooksExt) Name() string { return "all-hooks" }

func (e *allHooksExt) OnWorkerRegistered(_ context.Context, _ string) error {
	return e.record("OnWorkerRegistered")
}

func (e *allHooksExt) OnWorkerEvicted(_ context.Context, _ string, _ error) error {
	return e.record("OnWorkerEvicted")
}

func (e *allHooksExt) OnRequestQueued(_ context.Context, _ ext.Request, _ int) error {
	return e.record("OnRequestQueued")
}

func (e *allHooksExt) OnRequestRejected(_ context.Context, _ ext.Request, _ error) error {
	return e.record("OnRequestRejected")
}

func (e *allHooksExt) OnRequestDispatched(_ context.Context, _ ext.Request, _ int) error {
	return e.record("OnRequestDispatched")
}

func (e *allHooksExt) OnRequestCompleted(_ context.Context, _ ext.Request, _ time.Duration) error {
	return e.record("OnRequestCompleted")
}

func (e *allHooksExt) OnRequestFailed(_ context.Context, _ ext.Request, _ error) error {
	return e.record("OnRequestFailed")
}

func (e *allHooksExt) OnShutdown(_ context.Context) error {
	return e.record("OnShutdown")
}

// completedOnlyExt implements only RequestCompleted.
type completedOnlyExt struct {
	got []ext.Request
}

func (e *completedOnlyExt) Name() string { return "completed-only" }

func (e *completedOnlyExt) OnRequestCompleted(_ context.Context, r ext.Request, _ time.Duration) error {
	e.got = append(e.got, r)
	return nil
}

// failingExt returns errors from its hooks.
type failingExt struct{ called int }

func (e *failingExt) Name() string { return "failing" }

func (e *failingExt) OnRequestQueued(_ context.Context, _ ext.Request, _ int) error {
	e.called++
	return errors.New("queued hook failed")
}

// ──────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────

func TestRegistry_AllHooksFire(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}
	r.Register(all)

	ctx := context.Background()
	req := ext.Request{RequestID: "req_1", WorkerID: "wkr_1"}
	r.EmitWorkerRegistered(ctx, "wkr_1")
	r.EmitRequestQueued(ctx, req, 1)
	r.EmitRequestDispatched(ctx, req, 1)
	r.EmitRequestCompleted(ctx, req, time.Millisecond)
	r.EmitRequestFailed(ctx, req, errors.New("x"))
	r.EmitRequestRejected(ctx, req, errors.New("x"))
	r.EmitWorkerEvicted(ctx, "wkr_1", errors.New("x"))
	r.EmitShutdown(ctx)

	want := []string{
		"OnWorkerRegistered", "OnRequestQueued", "OnRequestDispatched",
		"OnRequestCompleted", "OnRequestFailed", "OnRequestRejected",
		"OnWorkerEvicted", "OnShutdown",
	}
	if len(all.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", all.calls, want)
	}
	for i := range want {
		if all.calls[i] != want[i] {
			t.Errorf("calls[%d] = %q, want %q", i, all.calls[i], want[i])
		}
	}
}

func TestRegistry_EmitFiresOnlyImplementors(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	only := &completedOnlyExt{}
	r.Register(only)

	ctx := context.Background()
	r.EmitRequestQueued(ctx, ext.Request{RequestID: "req_1"}, 1)
	r.EmitRequestCompleted(ctx, ext.Request{RequestID: "req_2", Method: "health.check"}, time.Millisecond)

	if len(only.got) != 1 || only.got[0].RequestID != "req_2" {
		t.Fatalf("got = %+v", only.got)
	}
	if exts := r.Extensions(); len(exts) != 1 || exts[0].Name() != "completed-only" {
		t.Errorf("Extensions() = %v", exts)
	}
}

func TestRegistry_HookErrorsLoggedNotPropagated(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	failing := &failingExt{}
	after := &allHooksExt{}
	r.Register(failing)
	r.Register(after)

	r.EmitRequestQueued(context.Background(), ext.Request{}, 3)

	if failing.called != 1 {
		t.Errorf("failing hook called %d times, want 1", failing.called)
	}
	if len(after.calls) != 1 {
		t.Error("extension after a failing one was not notified")
	}
}

func TestRegistry_NilAndEmptyNoOp(_ *testing.T) {
	var nilReg *ext.Registry
	nilReg.EmitShutdown(context.Background())

	r := ext.NewRegistry(nil)
	r.EmitWorkerRegistered(context.Background(), "wkr_1")
	r.EmitShutdown(context.Background())
}
