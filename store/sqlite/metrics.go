package sqlite

import (
	"context"
	"fmt"

	"github.com/zhengren252/ntn-sub004/metrics"
)

// RecordMetric inserts a sample.
func (s *Store) RecordMetric(ctx context.Context, m *metrics.Metric) error {
	model, err := toMetricModel(m)
	if err != nil {
		return err
	}
	if _, err := s.sdb.NewInsert(model).Exec(ctx); err != nil {
		return fmt.Errorf("compute/sqlite: record metric: %w", err)
	}
	return nil
}

// ListMetrics returns up to limit samples, newest first. An empty name
// lists every metric.
func (s *Store) ListMetrics(ctx context.Context, name string, limit int) ([]*metrics.Metric, error) {
	var models []metricModel
	q := s.sdb.NewSelect(&models).OrderExpr("created_at DESC, rowid DESC")
	if name != "" {
		q = q.Where("metric_name = ?", name)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("compute/sqlite: list metrics: %w", err)
	}

	out := make([]*metrics.Metric, 0, len(models))
	for i := range models {
		mm, err := fromMetricModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, mm)
	}
	return out, nil
}
