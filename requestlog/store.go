package requestlog

import "context"

// Store defines the persistence contract for request_logs.
//
// Failed requests are those with status error or timeout. Averages are
// taken over completed (non-pending) requests only.
type Store interface {
	// LogRequest writes the dispatch-time row. Logging the same
	// request_id again resets the row instead of adding a second one.
	LogRequest(ctx context.Context, e *Entry) error

	// LogResponse completes the row for requestID. It never inserts and
	// returns compute.ErrRequestNotFound when no row exists.
	LogResponse(ctx context.Context, requestID string, response map[string]any, processingTimeMs float64, status Status) error

	// GetRequestLog returns one entry by request_id.
	GetRequestLog(ctx context.Context, requestID string) (*Entry, error)

	// ListRequestLogs returns up to limit entries, newest first.
	ListRequestLogs(ctx context.Context, limit int) ([]*Entry, error)

	// ServiceStats returns totals across all entries.
	ServiceStats(ctx context.Context) (*ServiceStats, error)

	// MethodStatistics returns per-method aggregates ordered by method.
	MethodStatistics(ctx context.Context) ([]*MethodStats, error)
}
