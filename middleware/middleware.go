package middleware

import (
	"context"

	"github.com/zhengren252/ntn-sub004/protocol"
)

// Handler is the terminal function that runs the method handler.
type Handler func(ctx context.Context) (map[string]any, error)

// Middleware wraps a Handler with cross-cutting logic. It receives the
// request being executed and the next handler to call.
type Middleware func(ctx context.Context, req *protocol.ServiceRequest, next Handler) (map[string]any, error)

// Chain composes multiple middleware into a single Middleware.
//
// Example: Chain(logging, recover, timeout) executes as:
//
//	logging → recover → timeout → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, req *protocol.ServiceRequest, next Handler) (map[string]any, error) {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) (map[string]any, error) {
				return mw(ctx, req, prev)
			}
		}
		return h(ctx)
	}
}
