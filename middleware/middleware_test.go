package middleware_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	compute "github.com/zhengren252/ntn-sub004"
	"github.com/zhengren252/ntn-sub004/id"
	"github.com/zhengren252/ntn-sub004/middleware"
	"github.com/zhengren252/ntn-sub004/protocol"
)

func newTestRequest() *protocol.ServiceRequest {
	return &protocol.ServiceRequest{
		Method:    protocol.MethodExecuteOrder,
		Params:    protocol.Params{"symbol": "AAPL", "action": "buy", "quantity": 100.0},
		RequestID: id.NewRequestID().String(),
		Timestamp: protocol.Now(),
	}
}

func okHandler(_ context.Context) (map[string]any, error) {
	return map[string]any{"ok": true}, nil
}

func TestChain_ExecutionOrder(t *testing.T) {
	var order []string

	mw1 := func(ctx context.Context, _ *protocol.ServiceRequest, next middleware.Handler) (map[string]any, error) {
		order = append(order, "mw1-before")
		data, err := next(ctx)
		order = append(order, "mw1-after")
		return data, err
	}

	mw2 := func(ctx context.Context, _ *protocol.ServiceRequest, next middleware.Handler) (map[string]any, error) {
		order = append(order, "mw2-before")
		data, err := next(ctx)
		order = append(order, "mw2-after")
		return data, err
	}

	chain := middleware.Chain(mw1, mw2)
	data, err := chain(context.Background(), newTestRequest(), func(_ context.Context) (map[string]any, error) {
		order = append(order, "handler")
		return map[string]any{"n": 1}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data["n"] != 1 {
		t.Errorf("data = %v", data)
	}

	expected := []string{"mw1-before", "mw2-before", "handler", "mw2-after", "mw1-after"}
	if len(order) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(order), order)
	}
	for i, want := range expected {
		if order[i] != want {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want)
		}
	}
}

func TestChain_Empty(t *testing.T) {
	chain := middleware.Chain()
	called := false
	_, err := chain(context.Background(), newTestRequest(), func(_ context.Context) (map[string]any, error) {
		called = true
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called with empty chain")
	}
}

func TestChain_PropagatesError(t *testing.T) {
	pass := func(ctx context.Context, _ *protocol.ServiceRequest, next middleware.Handler) (map[string]any, error) {
		return next(ctx)
	}
	want := errors.New("handler error")
	_, err := middleware.Chain(pass)(context.Background(), newTestRequest(), func(_ context.Context) (map[string]any, error) {
		return nil, want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestRecover_CatchesPanic(t *testing.T) {
	mw := middleware.Recover(slog.Default())
	req := newTestRequest()

	data, err := mw(context.Background(), req, func(_ context.Context) (map[string]any, error) {
		panic("test panic")
	})
	if data != nil {
		t.Errorf("data = %v, want nil", data)
	}

	var he *compute.HandlerExecutionError
	if !errors.As(err, &he) {
		t.Fatalf("expected *HandlerExecutionError, got %v", err)
	}
	if he.Kind != "panic" {
		t.Errorf("Kind = %q, want panic", he.Kind)
	}
	if he.Method != string(protocol.MethodExecuteOrder) {
		t.Errorf("Method = %q", he.Method)
	}
	if got := err.Error(); got != "panic: test panic" {
		t.Errorf("unexpected error message: %q", got)
	}
}

func TestRecover_PassesThrough(t *testing.T) {
	mw := middleware.Recover(slog.Default())
	data, err := mw(context.Background(), newTestRequest(), okHandler)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data["ok"] != true {
		t.Errorf("data = %v", data)
	}
}

func TestLogging_Success(t *testing.T) {
	mw := middleware.Logging(slog.Default())
	data, err := mw(context.Background(), newTestRequest(), okHandler)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data["ok"] != true {
		t.Errorf("data = %v", data)
	}
}

func TestLogging_Error(t *testing.T) {
	mw := middleware.Logging(slog.Default())
	want := errors.New("fail")
	_, err := mw(context.Background(), newTestRequest(), func(_ context.Context) (map[string]any, error) {
		return nil, want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestTimeout_SetsDeadline(t *testing.T) {
	mw := middleware.Timeout(20*time.Millisecond, slog.Default())
	_, err := mw(context.Background(), newTestRequest(), func(ctx context.Context) (map[string]any, error) {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("expected deadline on context")
		}
		<-ctx.Done()
		return nil, ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestTimeout_ZeroIsUnbounded(t *testing.T) {
	mw := middleware.Timeout(0, slog.Default())
	_, err := mw(context.Background(), newTestRequest(), func(ctx context.Context) (map[string]any, error) {
		if _, ok := ctx.Deadline(); ok {
			t.Error("unexpected deadline on context")
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
