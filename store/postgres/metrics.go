package postgres

import (
	"context"
	"fmt"

	"github.com/zhengren252/ntn-sub004/metrics"
)

// RecordMetric inserts a sample.
func (s *Store) RecordMetric(ctx context.Context, m *metrics.Metric) error {
	data, err := toJSONB(m.Data)
	if err != nil {
		return fmt.Errorf("compute/postgres: encode metric_data: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO service_metrics (metric_name, metric_value, metric_data, created_at)
		VALUES ($1, $2, $3, $4)`,
		m.Name, m.Value, data, orNow(m.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("compute/postgres: record metric: %w", err)
	}
	return nil
}

// ListMetrics returns up to limit samples, newest first.
func (s *Store) ListMetrics(ctx context.Context, name string, limit int) ([]*metrics.Metric, error) {
	query := `
		SELECT metric_name, metric_value, metric_data, created_at
		FROM service_metrics
		WHERE ($1::text = '' OR metric_name = $1::text)
		ORDER BY created_at DESC, id DESC`
	args := []any{name}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("compute/postgres: list metrics: %w", err)
	}
	defer rows.Close()

	var out []*metrics.Metric
	for rows.Next() {
		var (
			m    metrics.Metric
			data []byte
		)
		if scanErr := rows.Scan(&m.Name, &m.Value, &data, &m.CreatedAt); scanErr != nil {
			return nil, fmt.Errorf("compute/postgres: scan metric: %w", scanErr)
		}
		if m.Data, err = fromJSONB(data); err != nil {
			return nil, fmt.Errorf("compute/postgres: decode metric_data: %w", err)
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("compute/postgres: iterate metrics: %w", err)
	}
	return out, nil
}
