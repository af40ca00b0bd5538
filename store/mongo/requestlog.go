package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	compute "github.com/zhengren252/ntn-sub004"
	"github.com/zhengren252/ntn-sub004/requestlog"
)

// LogRequest inserts or resets the document for e.RequestID. created_at is
// written only on insert.
func (s *Store) LogRequest(ctx context.Context, e *requestlog.Entry) error {
	status := e.Status
	if status == "" {
		status = requestlog.StatusPending
	}
	_, err := s.db.Collection(colRequestLogs).UpdateOne(ctx,
		bson.M{"_id": e.RequestID},
		bson.M{
			"$set": bson.M{
				"method":             e.Method,
				"client_id":          e.ClientID,
				"worker_id":          e.WorkerID,
				"request_data":       e.RequestData,
				"response_data":      nil,
				"processing_time_ms": 0.0,
				"status":             string(status),
				"updated_at":         now(),
			},
			"$setOnInsert": bson.M{"created_at": orNow(e.CreatedAt)},
		},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("compute/mongo: log request: %w", err)
	}
	return nil
}

// LogResponse completes the document for requestID.
func (s *Store) LogResponse(ctx context.Context, requestID string, response map[string]any, processingTimeMs float64, status requestlog.Status) error {
	res, err := s.db.Collection(colRequestLogs).UpdateOne(ctx,
		bson.M{"_id": requestID},
		bson.M{"$set": bson.M{
			"response_data":      response,
			"processing_time_ms": processingTimeMs,
			"status":             string(status),
			"updated_at":         now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("compute/mongo: log response: %w", err)
	}
	if res.MatchedCount == 0 {
		return compute.ErrRequestNotFound
	}
	return nil
}

// GetRequestLog returns one entry by request_id.
func (s *Store) GetRequestLog(ctx context.Context, requestID string) (*requestlog.Entry, error) {
	var m requestLogModel
	err := s.db.Collection(colRequestLogs).FindOne(ctx, bson.M{"_id": requestID}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, compute.ErrRequestNotFound
		}
		return nil, fmt.Errorf("compute/mongo: get request log: %w", err)
	}
	return fromRequestLogModel(&m), nil
}

// ListRequestLogs returns up to limit entries, newest first.
func (s *Store) ListRequestLogs(ctx context.Context, limit int) ([]*requestlog.Entry, error) {
	findOpts := options.Find().SetSort(bson.D{
		{Key: "created_at", Value: -1},
		{Key: "_id", Value: -1},
	})
	if limit > 0 {
		findOpts.SetLimit(int64(limit))
	}
	cursor, err := s.db.Collection(colRequestLogs).Find(ctx, bson.M{}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("compute/mongo: list request logs: %w", err)
	}
	defer cursor.Close(ctx)

	var models []requestLogModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("compute/mongo: list request logs decode: %w", err)
	}
	out := make([]*requestlog.Entry, 0, len(models))
	for i := range models {
		out = append(out, fromRequestLogModel(&models[i]))
	}
	return out, nil
}

// statsGroup is the $group stage shared by ServiceStats and
// MethodStatistics. Pending rows count toward totals but not latency.
func statsGroup(groupID any) bson.D {
	return bson.D{{Key: "$group", Value: bson.D{
		{Key: "_id", Value: groupID},
		{Key: "total", Value: bson.D{{Key: "$sum", Value: 1}}},
		{Key: "success", Value: bson.D{{Key: "$sum", Value: bson.D{{Key: "$cond", Value: bson.A{
			bson.D{{Key: "$eq", Value: bson.A{"$status", string(requestlog.StatusSuccess)}}}, 1, 0,
		}}}}}},
		{Key: "failed", Value: bson.D{{Key: "$sum", Value: bson.D{{Key: "$cond", Value: bson.A{
			bson.D{{Key: "$in", Value: bson.A{"$status", bson.A{
				string(requestlog.StatusError), string(requestlog.StatusTimeout),
			}}}}, 1, 0,
		}}}}}},
		{Key: "avg", Value: bson.D{{Key: "$avg", Value: bson.D{{Key: "$cond", Value: bson.A{
			bson.D{{Key: "$ne", Value: bson.A{"$status", string(requestlog.StatusPending)}}},
			"$processing_time_ms", nil,
		}}}}}},
	}}}
}

type statsRow struct {
	ID      any     `bson:"_id"`
	Total   int64   `bson:"total"`
	Success int64   `bson:"success"`
	Failed  int64   `bson:"failed"`
	Avg     float64 `bson:"avg"`
}

func (s *Store) aggregateStats(ctx context.Context, pipeline mongod.Pipeline) ([]statsRow, error) {
	cursor, err := s.db.Collection(colRequestLogs).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []statsRow
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ServiceStats returns totals across all entries.
func (s *Store) ServiceStats(ctx context.Context) (*requestlog.ServiceStats, error) {
	rows, err := s.aggregateStats(ctx, mongod.Pipeline{statsGroup(nil)})
	if err != nil {
		return nil, fmt.Errorf("compute/mongo: service stats: %w", err)
	}
	st := &requestlog.ServiceStats{}
	if len(rows) == 0 {
		return st, nil
	}
	st.TotalRequests = rows[0].Total
	st.SuccessfulRequests = rows[0].Success
	st.FailedRequests = rows[0].Failed
	st.AvgResponseTimeMs = rows[0].Avg
	return st, nil
}

// MethodStatistics returns per-method aggregates ordered by method.
func (s *Store) MethodStatistics(ctx context.Context) ([]*requestlog.MethodStats, error) {
	rows, err := s.aggregateStats(ctx, mongod.Pipeline{
		statsGroup("$method"),
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	})
	if err != nil {
		return nil, fmt.Errorf("compute/mongo: method statistics: %w", err)
	}
	out := make([]*requestlog.MethodStats, 0, len(rows))
	for _, r := range rows {
		method, _ := r.ID.(string)
		ms := &requestlog.MethodStats{
			Method:       method,
			CallCount:    r.Total,
			AvgLatencyMs: r.Avg,
		}
		if r.Total > 0 {
			ms.SuccessRate = float64(r.Success) / float64(r.Total)
		}
		out = append(out, ms)
	}
	return out, nil
}
