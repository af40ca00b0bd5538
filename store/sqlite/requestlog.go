package sqlite

import (
	"context"
	"fmt"
	"time"

	compute "github.com/zhengren252/ntn-sub004"
	"github.com/zhengren252/ntn-sub004/requestlog"
)

// LogRequest inserts or resets the row for e.RequestID.
func (s *Store) LogRequest(ctx context.Context, e *requestlog.Entry) error {
	reqData, err := toJSON(e.RequestData)
	if err != nil {
		return fmt.Errorf("compute/sqlite: encode request_data: %w", err)
	}
	status := e.Status
	if status == "" {
		status = requestlog.StatusPending
	}
	now := time.Now().UnixNano()
	m := &requestLogModel{
		RequestID:   e.RequestID,
		Method:      e.Method,
		ClientID:    e.ClientID,
		WorkerID:    e.WorkerID,
		RequestData: reqData,
		Status:      string(status),
		CreatedAt:   toNanos(e.CreatedAt),
		UpdatedAt:   now,
	}

	err = upsert(
		func() (int64, error) {
			return rowsAffected(s.sdb.NewUpdate((*requestLogModel)(nil)).
				Set("method = ?", m.Method).
				Set("client_id = ?", m.ClientID).
				Set("worker_id = ?", m.WorkerID).
				Set("request_data = ?", m.RequestData).
				Set("response_data = NULL").
				Set("processing_time_ms = 0").
				Set("status = ?", m.Status).
				Set("updated_at = ?", m.UpdatedAt).
				Where("request_id = ?", m.RequestID).
				Exec(ctx))
		},
		func() error {
			_, insErr := s.sdb.NewInsert(m).Exec(ctx)
			return insErr
		},
	)
	if err != nil {
		return fmt.Errorf("compute/sqlite: log request: %w", err)
	}
	return nil
}

// LogResponse completes the row for requestID.
func (s *Store) LogResponse(ctx context.Context, requestID string, response map[string]any, processingTimeMs float64, status requestlog.Status) error {
	respData, err := toJSON(response)
	if err != nil {
		return fmt.Errorf("compute/sqlite: encode response_data: %w", err)
	}
	n, err := rowsAffected(s.sdb.NewUpdate((*requestLogModel)(nil)).
		Set("response_data = ?", respData).
		Set("processing_time_ms = ?", processingTimeMs).
		Set("status = ?", string(status)).
		Set("updated_at = ?", time.Now().UnixNano()).
		Where("request_id = ?", requestID).
		Exec(ctx))
	if err != nil {
		return fmt.Errorf("compute/sqlite: log response: %w", err)
	}
	if n == 0 {
		return compute.ErrRequestNotFound
	}
	return nil
}

// GetRequestLog returns one entry by request_id.
func (s *Store) GetRequestLog(ctx context.Context, requestID string) (*requestlog.Entry, error) {
	m := new(requestLogModel)
	err := s.sdb.NewSelect(m).Where("request_id = ?", requestID).Limit(1).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, compute.ErrRequestNotFound
		}
		return nil, fmt.Errorf("compute/sqlite: get request log: %w", err)
	}
	return fromRequestLogModel(m)
}

// ListRequestLogs returns up to limit entries, newest first.
func (s *Store) ListRequestLogs(ctx context.Context, limit int) ([]*requestlog.Entry, error) {
	var models []requestLogModel
	q := s.sdb.NewSelect(&models).OrderExpr("created_at DESC, request_id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("compute/sqlite: list request logs: %w", err)
	}

	out := make([]*requestlog.Entry, 0, len(models))
	for i := range models {
		e, err := fromRequestLogModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// ServiceStats returns totals across all entries.
func (s *Store) ServiceStats(ctx context.Context) (*requestlog.ServiceStats, error) {
	var rows []serviceStatsRow
	err := s.sdb.NewRaw(`
		SELECT
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0) AS successful,
			COALESCE(SUM(CASE WHEN status IN ('error', 'timeout') THEN 1 ELSE 0 END), 0) AS failed,
			COALESCE(AVG(CASE WHEN status <> 'pending' THEN processing_time_ms END), 0) AS avg_ms
		FROM request_logs`).Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("compute/sqlite: service stats: %w", err)
	}
	st := &requestlog.ServiceStats{}
	if len(rows) > 0 {
		st.TotalRequests = rows[0].Total
		st.SuccessfulRequests = rows[0].Successful
		st.FailedRequests = rows[0].Failed
		st.AvgResponseTimeMs = rows[0].AvgMs
	}
	return st, nil
}

// MethodStatistics returns per-method aggregates ordered by method.
func (s *Store) MethodStatistics(ctx context.Context) ([]*requestlog.MethodStats, error) {
	var rows []methodStatsRow
	err := s.sdb.NewRaw(`
		SELECT
			method,
			COUNT(*) AS call_count,
			COALESCE(AVG(CASE WHEN status <> 'pending' THEN processing_time_ms END), 0) AS avg_ms,
			CAST(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END) AS REAL) / COUNT(*) AS success_rate
		FROM request_logs
		GROUP BY method
		ORDER BY method`).Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("compute/sqlite: method statistics: %w", err)
	}

	out := make([]*requestlog.MethodStats, 0, len(rows))
	for _, r := range rows {
		out = append(out, &requestlog.MethodStats{
			Method:       r.Method,
			CallCount:    r.CallCount,
			AvgLatencyMs: r.AvgMs,
			SuccessRate:  r.SuccessRate,
		})
	}
	return out, nil
}
