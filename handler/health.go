package handler

import (
	"context"
	"runtime"
	"time"

	"github.com/zhengren252/ntn-sub004/protocol"
)

// Health returns the built-in health.check handler. With detailed=true it
// adds process details.
func Health() Func {
	started := time.Now()
	return func(_ context.Context, params protocol.Params) (map[string]any, error) {
		data := map[string]any{"status": "healthy"}
		if detailed, _ := params.Bool("detailed"); detailed {
			data["uptime_seconds"] = time.Since(started).Seconds()
			data["goroutines"] = runtime.NumGoroutine()
			data["go_version"] = runtime.Version()
			data["timestamp"] = protocol.Now()
		}
		return data, nil
	}
}
