package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/zhengren252/ntn-sub004/protocol"
)

// Timeout returns middleware that enforces a per-call execution deadline.
// When d is zero the handler runs unbounded. Handlers are expected to
// observe ctx and return context.DeadlineExceeded.
func Timeout(d time.Duration, logger *slog.Logger) Middleware {
	return func(ctx context.Context, req *protocol.ServiceRequest, next Handler) (map[string]any, error) {
		if d > 0 {
			logger.Debug("handler timeout set",
				slog.String("request_id", req.RequestID),
				slog.Duration("timeout", d),
			)
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
