package handler_test

import (
	"context"
	"errors"
	"testing"

	compute "github.com/zhengren252/ntn-sub004"
	"github.com/zhengren252/ntn-sub004/handler"
	"github.com/zhengren252/ntn-sub004/protocol"
)

type rejectedError struct{}

func (rejectedError) Error() string { return "order rejected by venue" }
func (rejectedError) Kind() string  { return "OrderRejected" }

func TestRegistry_HealthBuiltin(t *testing.T) {
	r := handler.NewRegistry()
	data, err := r.Call(context.Background(), protocol.MethodHealthCheck, protocol.Params{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", data["status"])
	}
	if _, ok := data["uptime_seconds"]; ok {
		t.Error("uptime_seconds present without detailed=true")
	}

	data, err = r.Call(context.Background(), protocol.MethodHealthCheck, protocol.Params{"detailed": true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := data["uptime_seconds"]; !ok {
		t.Error("detailed health missing uptime_seconds")
	}
}

func TestRegistry_RegisterDefinition(t *testing.T) {
	r := handler.NewRegistry()

	var got handler.ExecuteOrderParams
	err := handler.RegisterDefinition(r, handler.NewDefinition(protocol.MethodExecuteOrder,
		func(_ context.Context, p handler.ExecuteOrderParams) (map[string]any, error) {
			got = p
			return map[string]any{"order_id": "o-1"}, nil
		}))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	data, err := r.Call(context.Background(), protocol.MethodExecuteOrder, protocol.Params{
		"symbol": "AAPL", "action": "buy", "quantity": 100.0,
	})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if data["order_id"] != "o-1" {
		t.Errorf("data = %v", data)
	}
	if got.Symbol != "AAPL" || got.Action != "buy" || got.Quantity != 100 {
		t.Errorf("params = %+v", got)
	}
}

func TestRegistry_RegisterUnsupported(t *testing.T) {
	r := handler.NewRegistry()
	err := r.Register("cancel.order", func(context.Context, protocol.Params) (map[string]any, error) {
		return nil, nil
	})
	if !errors.Is(err, compute.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestRegistry_NoHandler(t *testing.T) {
	r := handler.NewRegistry()
	_, err := r.Call(context.Background(), protocol.MethodScanMarket, protocol.Params{"market_type": "crypto"})
	if !errors.Is(err, compute.ErrNoHandler) {
		t.Fatalf("err = %v, want ErrNoHandler", err)
	}
}

func TestRegistry_ExecutionErrorKinds(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind string
	}{
		{"plain", errors.New("boom"), "error"},
		{"kinder", rejectedError{}, "OrderRejected"},
		{"deadline", context.DeadlineExceeded, "timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := handler.NewRegistry()
			r.MustRegister(protocol.MethodEvaluateRisk, func(context.Context, protocol.Params) (map[string]any, error) {
				return nil, tt.err
			})
			_, err := r.Call(context.Background(), protocol.MethodEvaluateRisk, protocol.Params{})

			var he *compute.HandlerExecutionError
			if !errors.As(err, &he) {
				t.Fatalf("err = %v, want *HandlerExecutionError", err)
			}
			if he.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", he.Kind, tt.wantKind)
			}
			if he.Method != string(protocol.MethodEvaluateRisk) {
				t.Errorf("Method = %q", he.Method)
			}
			if !errors.Is(err, compute.ErrHandlerExecution) || !errors.Is(err, tt.err) {
				t.Errorf("error chain incomplete: %v", err)
			}
		})
	}
}

func TestRegistry_Methods(t *testing.T) {
	r := handler.NewRegistry()
	r.MustRegister(protocol.MethodScanMarket, func(context.Context, protocol.Params) (map[string]any, error) {
		return nil, nil
	})
	got := r.Methods()
	want := []protocol.Method{protocol.MethodHealthCheck, protocol.MethodScanMarket}
	if len(got) != len(want) {
		t.Fatalf("Methods() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Methods()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
