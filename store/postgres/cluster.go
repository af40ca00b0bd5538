package postgres

import (
	"context"
	"fmt"

	compute "github.com/zhengren252/ntn-sub004"
	"github.com/zhengren252/ntn-sub004/cluster"
)

// UpdateWorkerStatus upserts the row for ws.WorkerID.
func (s *Store) UpdateWorkerStatus(ctx context.Context, ws *cluster.WorkerStatus) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO worker_status (
			worker_id, status, processed_requests, cpu_usage, memory_usage, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (worker_id) DO UPDATE SET
			status = EXCLUDED.status,
			processed_requests = EXCLUDED.processed_requests,
			cpu_usage = EXCLUDED.cpu_usage,
			memory_usage = EXCLUDED.memory_usage,
			updated_at = EXCLUDED.updated_at`,
		ws.WorkerID, string(ws.Status), ws.ProcessedRequests,
		ws.CPUUsage, ws.MemoryUsage, orNow(ws.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("compute/postgres: update worker status: %w", err)
	}
	return nil
}

// SetWorkerState changes only status and updated_at.
func (s *Store) SetWorkerState(ctx context.Context, workerID string, state cluster.State) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO worker_status (worker_id, status, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`,
		workerID, string(state),
	)
	if err != nil {
		return fmt.Errorf("compute/postgres: set worker state: %w", err)
	}
	return nil
}

// GetWorkerStatus returns one worker.
func (s *Store) GetWorkerStatus(ctx context.Context, workerID string) (*cluster.WorkerStatus, error) {
	var (
		ws    cluster.WorkerStatus
		state string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT worker_id, status, processed_requests, cpu_usage, memory_usage, updated_at
		FROM worker_status WHERE worker_id = $1`,
		workerID,
	).Scan(&ws.WorkerID, &state, &ws.ProcessedRequests, &ws.CPUUsage, &ws.MemoryUsage, &ws.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, compute.ErrWorkerNotFound
		}
		return nil, fmt.Errorf("compute/postgres: get worker status: %w", err)
	}
	ws.Status = cluster.State(state)
	return &ws, nil
}

// ListWorkerStatus returns every worker ordered by worker_id.
func (s *Store) ListWorkerStatus(ctx context.Context) ([]*cluster.WorkerStatus, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT worker_id, status, processed_requests, cpu_usage, memory_usage, updated_at
		FROM worker_status
		ORDER BY worker_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("compute/postgres: list worker status: %w", err)
	}
	defer rows.Close()

	var out []*cluster.WorkerStatus
	for rows.Next() {
		var (
			ws    cluster.WorkerStatus
			state string
		)
		if scanErr := rows.Scan(&ws.WorkerID, &state, &ws.ProcessedRequests, &ws.CPUUsage, &ws.MemoryUsage, &ws.UpdatedAt); scanErr != nil {
			return nil, fmt.Errorf("compute/postgres: scan worker status: %w", scanErr)
		}
		ws.Status = cluster.State(state)
		out = append(out, &ws)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("compute/postgres: iterate worker status: %w", err)
	}
	return out, nil
}
