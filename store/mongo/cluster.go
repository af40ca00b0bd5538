package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	compute "github.com/zhengren252/ntn-sub004"
	"github.com/zhengren252/ntn-sub004/cluster"
)

// UpdateWorkerStatus upserts the document for ws.WorkerID.
func (s *Store) UpdateWorkerStatus(ctx context.Context, ws *cluster.WorkerStatus) error {
	_, err := s.db.Collection(colWorkers).UpdateOne(ctx,
		bson.M{"_id": ws.WorkerID},
		bson.M{"$set": bson.M{
			"status":             string(ws.Status),
			"processed_requests": ws.ProcessedRequests,
			"cpu_usage":          ws.CPUUsage,
			"memory_usage":       ws.MemoryUsage,
			"updated_at":         orNow(ws.UpdatedAt),
		}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("compute/mongo: update worker status: %w", err)
	}
	return nil
}

// SetWorkerState changes only status and updated_at, creating a zeroed
// document when the worker never reported.
func (s *Store) SetWorkerState(ctx context.Context, workerID string, state cluster.State) error {
	_, err := s.db.Collection(colWorkers).UpdateOne(ctx,
		bson.M{"_id": workerID},
		bson.M{
			"$set": bson.M{
				"status":     string(state),
				"updated_at": now(),
			},
			"$setOnInsert": bson.M{
				"processed_requests": int64(0),
				"cpu_usage":          0.0,
				"memory_usage":       0.0,
			},
		},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("compute/mongo: set worker state: %w", err)
	}
	return nil
}

// GetWorkerStatus returns one worker.
func (s *Store) GetWorkerStatus(ctx context.Context, workerID string) (*cluster.WorkerStatus, error) {
	var m workerModel
	err := s.db.Collection(colWorkers).FindOne(ctx, bson.M{"_id": workerID}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, compute.ErrWorkerNotFound
		}
		return nil, fmt.Errorf("compute/mongo: get worker status: %w", err)
	}
	return fromWorkerModel(&m), nil
}

// ListWorkerStatus returns every worker ordered by worker_id.
func (s *Store) ListWorkerStatus(ctx context.Context) ([]*cluster.WorkerStatus, error) {
	cursor, err := s.db.Collection(colWorkers).Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("compute/mongo: list worker status: %w", err)
	}
	defer cursor.Close(ctx)

	var models []workerModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("compute/mongo: list worker status decode: %w", err)
	}
	out := make([]*cluster.WorkerStatus, 0, len(models))
	for i := range models {
		out = append(out, fromWorkerModel(&models[i]))
	}
	return out, nil
}
