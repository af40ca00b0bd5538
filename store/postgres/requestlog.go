package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	compute "github.com/zhengren252/ntn-sub004"
	"github.com/zhengren252/ntn-sub004/requestlog"
)

const requestLogColumns = `request_id, method, client_id, worker_id, request_data,
	response_data, processing_time_ms, status, created_at, updated_at`

// LogRequest inserts or resets the row for e.RequestID.
func (s *Store) LogRequest(ctx context.Context, e *requestlog.Entry) error {
	reqData, err := toJSONB(e.RequestData)
	if err != nil {
		return fmt.Errorf("compute/postgres: encode request_data: %w", err)
	}
	status := e.Status
	if status == "" {
		status = requestlog.StatusPending
	}
	now := time.Now().UTC()

	_, err = s.pool.Exec(ctx, `
		INSERT INTO request_logs (`+requestLogColumns+`)
		VALUES ($1, $2, $3, $4, $5, NULL, 0, $6, $7, $8)
		ON CONFLICT (request_id) DO UPDATE SET
			method = EXCLUDED.method,
			client_id = EXCLUDED.client_id,
			worker_id = EXCLUDED.worker_id,
			request_data = EXCLUDED.request_data,
			response_data = NULL,
			processing_time_ms = 0,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`,
		e.RequestID, e.Method, e.ClientID, e.WorkerID, reqData,
		string(status), orNow(e.CreatedAt), now,
	)
	if err != nil {
		return fmt.Errorf("compute/postgres: log request: %w", err)
	}
	return nil
}

// LogResponse completes the row for requestID.
func (s *Store) LogResponse(ctx context.Context, requestID string, response map[string]any, processingTimeMs float64, status requestlog.Status) error {
	respData, err := toJSONB(response)
	if err != nil {
		return fmt.Errorf("compute/postgres: encode response_data: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE request_logs SET
			response_data = $2,
			processing_time_ms = $3,
			status = $4,
			updated_at = NOW()
		WHERE request_id = $1`,
		requestID, respData, processingTimeMs, string(status),
	)
	if err != nil {
		return fmt.Errorf("compute/postgres: log response: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return compute.ErrRequestNotFound
	}
	return nil
}

// GetRequestLog returns one entry by request_id.
func (s *Store) GetRequestLog(ctx context.Context, requestID string) (*requestlog.Entry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+requestLogColumns+` FROM request_logs WHERE request_id = $1`,
		requestID,
	)
	e, err := scanEntry(row)
	if err != nil {
		if isNoRows(err) {
			return nil, compute.ErrRequestNotFound
		}
		return nil, fmt.Errorf("compute/postgres: get request log: %w", err)
	}
	return e, nil
}

// ListRequestLogs returns up to limit entries, newest first.
func (s *Store) ListRequestLogs(ctx context.Context, limit int) ([]*requestlog.Entry, error) {
	query := `SELECT ` + requestLogColumns + ` FROM request_logs ORDER BY created_at DESC, request_id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("compute/postgres: list request logs: %w", err)
	}
	defer rows.Close()

	var out []*requestlog.Entry
	for rows.Next() {
		e, scanErr := scanEntry(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("compute/postgres: scan request log: %w", scanErr)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("compute/postgres: iterate request logs: %w", err)
	}
	return out, nil
}

// ServiceStats returns totals across all entries.
func (s *Store) ServiceStats(ctx context.Context) (*requestlog.ServiceStats, error) {
	st := &requestlog.ServiceStats{}
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'success'),
			COUNT(*) FILTER (WHERE status IN ('error', 'timeout')),
			COALESCE(AVG(processing_time_ms) FILTER (WHERE status <> 'pending'), 0)
		FROM request_logs`,
	).Scan(&st.TotalRequests, &st.SuccessfulRequests, &st.FailedRequests, &st.AvgResponseTimeMs)
	if err != nil {
		return nil, fmt.Errorf("compute/postgres: service stats: %w", err)
	}
	return st, nil
}

// MethodStatistics returns per-method aggregates ordered by method.
func (s *Store) MethodStatistics(ctx context.Context) ([]*requestlog.MethodStats, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT
			method,
			COUNT(*),
			COALESCE(AVG(processing_time_ms) FILTER (WHERE status <> 'pending'), 0),
			(COUNT(*) FILTER (WHERE status = 'success'))::float8 / COUNT(*)
		FROM request_logs
		GROUP BY method
		ORDER BY method`,
	)
	if err != nil {
		return nil, fmt.Errorf("compute/postgres: method statistics: %w", err)
	}
	defer rows.Close()

	var out []*requestlog.MethodStats
	for rows.Next() {
		ms := &requestlog.MethodStats{}
		if scanErr := rows.Scan(&ms.Method, &ms.CallCount, &ms.AvgLatencyMs, &ms.SuccessRate); scanErr != nil {
			return nil, fmt.Errorf("compute/postgres: scan method statistics: %w", scanErr)
		}
		out = append(out, ms)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("compute/postgres: iterate method statistics: %w", err)
	}
	return out, nil
}

func scanEntry(row pgx.Row) (*requestlog.Entry, error) {
	var (
		e                 requestlog.Entry
		status            string
		reqData, respData []byte
	)
	if err := row.Scan(
		&e.RequestID, &e.Method, &e.ClientID, &e.WorkerID, &reqData,
		&respData, &e.ProcessingTimeMs, &status, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	e.Status = requestlog.Status(status)
	var err error
	if e.RequestData, err = fromJSONB(reqData); err != nil {
		return nil, fmt.Errorf("decode request_data: %w", err)
	}
	if e.ResponseData, err = fromJSONB(respData); err != nil {
		return nil, fmt.Errorf("decode response_data: %w", err)
	}
	return &e, nil
}
