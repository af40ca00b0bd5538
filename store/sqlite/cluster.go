package sqlite

import (
	"context"
	"fmt"
	"time"

	compute "github.com/zhengren252/ntn-sub004"
	"github.com/zhengren252/ntn-sub004/cluster"
)

// UpdateWorkerStatus upserts the row for ws.WorkerID.
func (s *Store) UpdateWorkerStatus(ctx context.Context, ws *cluster.WorkerStatus) error {
	m := toWorkerStatusModel(ws)
	err := upsert(
		func() (int64, error) {
			return rowsAffected(s.sdb.NewUpdate(m).WherePK().Exec(ctx))
		},
		func() error {
			_, insErr := s.sdb.NewInsert(m).Exec(ctx)
			return insErr
		},
	)
	if err != nil {
		return fmt.Errorf("compute/sqlite: update worker status: %w", err)
	}
	return nil
}

// SetWorkerState changes only status and updated_at.
func (s *Store) SetWorkerState(ctx context.Context, workerID string, state cluster.State) error {
	now := time.Now().UnixNano()
	err := upsert(
		func() (int64, error) {
			return rowsAffected(s.sdb.NewUpdate((*workerStatusModel)(nil)).
				Set("status = ?", string(state)).
				Set("updated_at = ?", now).
				Where("worker_id = ?", workerID).
				Exec(ctx))
		},
		func() error {
			_, insErr := s.sdb.NewInsert(&workerStatusModel{
				WorkerID:  workerID,
				Status:    string(state),
				UpdatedAt: now,
			}).Exec(ctx)
			return insErr
		},
	)
	if err != nil {
		return fmt.Errorf("compute/sqlite: set worker state: %w", err)
	}
	return nil
}

// GetWorkerStatus returns one worker.
func (s *Store) GetWorkerStatus(ctx context.Context, workerID string) (*cluster.WorkerStatus, error) {
	m := new(workerStatusModel)
	err := s.sdb.NewSelect(m).Where("worker_id = ?", workerID).Limit(1).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, compute.ErrWorkerNotFound
		}
		return nil, fmt.Errorf("compute/sqlite: get worker status: %w", err)
	}
	return fromWorkerStatusModel(m), nil
}

// ListWorkerStatus returns every worker ordered by worker_id.
func (s *Store) ListWorkerStatus(ctx context.Context) ([]*cluster.WorkerStatus, error) {
	var models []workerStatusModel
	if err := s.sdb.NewSelect(&models).OrderExpr("worker_id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("compute/sqlite: list worker status: %w", err)
	}
	out := make([]*cluster.WorkerStatus, 0, len(models))
	for i := range models {
		out = append(out, fromWorkerStatusModel(&models[i]))
	}
	return out, nil
}
