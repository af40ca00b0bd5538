package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/zhengren252/ntn-sub004/protocol"
)

// Logging returns middleware that logs handler start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, req *protocol.ServiceRequest, next Handler) (map[string]any, error) {
		logger.Debug("handler started",
			slog.String("method", string(req.Method)),
			slog.String("request_id", req.RequestID),
		)

		start := time.Now()
		data, err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("handler failed",
				slog.String("method", string(req.Method)),
				slog.String("request_id", req.RequestID),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("handler completed",
				slog.String("method", string(req.Method)),
				slog.String("request_id", req.RequestID),
				slog.Duration("elapsed", elapsed),
			)
		}

		return data, err
	}
}
