package handler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/bytedance/sonic"

	compute "github.com/zhengren252/ntn-sub004"
	"github.com/zhengren252/ntn-sub004/protocol"
)

// Func executes one method. Params have already passed the method schema.
type Func func(ctx context.Context, params protocol.Params) (map[string]any, error)

// Registry maps methods to handler functions. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[protocol.Method]Func
}

// NewRegistry creates a registry with the built-in health.check handler.
func NewRegistry() *Registry {
	r := &Registry{
		handlers: make(map[protocol.Method]Func),
	}
	r.handlers[protocol.MethodHealthCheck] = Health()
	return r
}

// Register binds fn to method, replacing any previous handler.
func (r *Registry) Register(method protocol.Method, fn Func) error {
	if !method.Valid() {
		return compute.NewValidationError("unsupported method: %s", method)
	}
	if fn == nil {
		return fmt.Errorf("compute/handler: nil handler for %s", method)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[method] = fn
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(method protocol.Method, fn Func) {
	if err := r.Register(method, fn); err != nil {
		panic(err)
	}
}

// Get returns the handler for method.
func (r *Registry) Get(method protocol.Method) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.handlers[method]
	return fn, ok
}

// Methods returns the registered methods sorted by name.
func (r *Registry) Methods() []protocol.Method {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.Method, 0, len(r.handlers))
	for m := range r.handlers {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Call runs the handler for method. A missing handler yields ErrNoHandler;
// any handler failure is returned as *compute.HandlerExecutionError.
func (r *Registry) Call(ctx context.Context, method protocol.Method, params protocol.Params) (map[string]any, error) {
	fn, ok := r.Get(method)
	if !ok {
		return nil, fmt.Errorf("%w: %s", compute.ErrNoHandler, method)
	}
	data, err := fn(ctx, params)
	if err != nil {
		return nil, AsExecutionError(method, err)
	}
	return data, nil
}

// Kinder lets handler errors name their own kind in error responses.
type Kinder interface {
	Kind() string
}

// AsExecutionError converts err into a *compute.HandlerExecutionError,
// keeping one that is already present in the chain.
func AsExecutionError(method protocol.Method, err error) *compute.HandlerExecutionError {
	var he *compute.HandlerExecutionError
	if errors.As(err, &he) {
		return he
	}
	return &compute.HandlerExecutionError{
		Method: string(method),
		Kind:   kindOf(err),
		Err:    err,
	}
}

func kindOf(err error) string {
	var k Kinder
	switch {
	case errors.As(err, &k):
		return k.Kind()
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}

// Definition is a handler whose params are decoded into T before the call.
type Definition[T any] struct {
	Method  protocol.Method
	Handler func(ctx context.Context, params T) (map[string]any, error)
}

// NewDefinition creates a typed handler definition.
func NewDefinition[T any](method protocol.Method, fn func(ctx context.Context, params T) (map[string]any, error)) *Definition[T] {
	return &Definition[T]{Method: method, Handler: fn}
}

// RegisterDefinition registers a typed definition. It is a package-level
// function because Go does not allow generic methods.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) error {
	return r.Register(def.Method, func(ctx context.Context, params protocol.Params) (map[string]any, error) {
		var p T
		if err := Decode(params, &p); err != nil {
			return nil, fmt.Errorf("decode params for %s: %w", def.Method, err)
		}
		return def.Handler(ctx, p)
	})
}

// Decode copies params into dst through their JSON form.
func Decode(params protocol.Params, dst any) error {
	if len(params) == 0 {
		return nil
	}
	b, err := sonic.ConfigStd.Marshal(params)
	if err != nil {
		return err
	}
	return sonic.ConfigStd.Unmarshal(b, dst)
}
