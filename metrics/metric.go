// Package metrics defines service_metrics: named samples recorded over
// time, such as periodic snapshots of request totals and latency.
package metrics

import (
	"context"
	"time"
)

// Well-known metric names written by maintenance snapshots.
const (
	NameRequestsTotal       = "requests.total"
	NameRequestsSuccessRate = "requests.success_rate"
	NameLatencyAvgMs        = "latency.avg_ms"
)

// Metric is one row of service_metrics.
type Metric struct {
	Name      string         `json:"metric_name"`
	Value     float64        `json:"metric_value"`
	Data      map[string]any `json:"metric_data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Store defines the persistence contract for service_metrics.
type Store interface {
	// RecordMetric inserts a sample. A zero CreatedAt is set to now.
	RecordMetric(ctx context.Context, m *Metric) error

	// ListMetrics returns up to limit samples, newest first. An empty
	// name lists every metric.
	ListMetrics(ctx context.Context, name string, limit int) ([]*Metric, error)
}
