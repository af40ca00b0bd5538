package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	compute "github.com/zhengren252/ntn-sub004"
	"github.com/zhengren252/ntn-sub004/protocol"
)

// Recover returns middleware that recovers from panics in the handler chain.
// A panic becomes a *compute.HandlerExecutionError with Kind "panic" and is
// logged with a stack trace; the worker keeps running.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, req *protocol.ServiceRequest, next Handler) (data map[string]any, retErr error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("handler panicked",
					slog.String("method", string(req.Method)),
					slog.String("request_id", req.RequestID),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				data = nil
				retErr = &compute.HandlerExecutionError{
					Method: string(req.Method),
					Kind:   "panic",
					Err:    fmt.Errorf("%v", r),
				}
			}
		}()
		return next(ctx)
	}
}
