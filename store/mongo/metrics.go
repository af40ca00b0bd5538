package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/zhengren252/ntn-sub004/metrics"
)

// RecordMetric inserts a sample.
func (s *Store) RecordMetric(ctx context.Context, m *metrics.Metric) error {
	if _, err := s.db.Collection(colMetrics).InsertOne(ctx, toMetricModel(m)); err != nil {
		return fmt.Errorf("compute/mongo: record metric: %w", err)
	}
	return nil
}

// ListMetrics returns up to limit samples, newest first. An empty name
// matches every metric.
func (s *Store) ListMetrics(ctx context.Context, name string, limit int) ([]*metrics.Metric, error) {
	filter := bson.M{}
	if name != "" {
		filter["metric_name"] = name
	}
	findOpts := options.Find().SetSort(bson.D{
		{Key: "created_at", Value: -1},
		{Key: "_id", Value: -1},
	})
	if limit > 0 {
		findOpts.SetLimit(int64(limit))
	}
	cursor, err := s.db.Collection(colMetrics).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("compute/mongo: list metrics: %w", err)
	}
	defer cursor.Close(ctx)

	var models []metricModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("compute/mongo: list metrics decode: %w", err)
	}
	out := make([]*metrics.Metric, 0, len(models))
	for i := range models {
		out = append(out, fromMetricModel(&models[i]))
	}
	return out, nil
}
