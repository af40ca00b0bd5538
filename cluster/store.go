package cluster

import "context"

// Store defines the persistence contract for worker status.
type Store interface {
	// UpdateWorkerStatus upserts the full row keyed by WorkerID.
	UpdateWorkerStatus(ctx context.Context, ws *WorkerStatus) error

	// SetWorkerState changes only status and updated_at, creating a
	// zeroed row if the worker never reported.
	SetWorkerState(ctx context.Context, workerID string, state State) error

	// GetWorkerStatus returns one worker, or compute.ErrWorkerNotFound.
	GetWorkerStatus(ctx context.Context, workerID string) (*WorkerStatus, error)

	// ListWorkerStatus returns every worker ordered by worker_id.
	ListWorkerStatus(ctx context.Context) ([]*WorkerStatus, error)
}
