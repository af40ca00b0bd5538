package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	compute "github.com/zhengren252/ntn-sub004"
	"github.com/zhengren252/ntn-sub004/metrics"
	"github.com/zhengren252/ntn-sub004/store"
)

// Cleanup deletes rows older than the retention window.
func (s *Scheduler) Cleanup(ctx context.Context) (store.CleanupResult, error) {
	res, err := s.store.CleanupOldData(ctx, s.cfg.Retention)
	if err != nil {
		return res, fmt.Errorf("compute/maintenance: cleanup: %w", err)
	}
	s.logger.Info("retention cleanup",
		slog.Duration("retention", s.cfg.Retention),
		slog.Int64("request_logs", res.RequestLogs),
		slog.Int64("metrics", res.Metrics),
	)
	return res, nil
}

// Snapshot records the current service statistics as metric samples.
// Every sample is attempted; failures are joined.
func (s *Scheduler) Snapshot(ctx context.Context) error {
	stats, err := s.store.ServiceStats(ctx)
	if err != nil {
		return fmt.Errorf("compute/maintenance: snapshot: %w", err)
	}

	now := s.now()
	samples := []*metrics.Metric{
		{
			Name:  metrics.NameRequestsTotal,
			Value: float64(stats.TotalRequests),
			Data: map[string]any{
				"successful": stats.SuccessfulRequests,
				"failed":     stats.FailedRequests,
			},
		},
		{Name: metrics.NameRequestsSuccessRate, Value: stats.SuccessRate()},
		{Name: metrics.NameLatencyAvgMs, Value: stats.AvgResponseTimeMs},
	}

	var errs []error
	for _, m := range samples {
		m.CreatedAt = now
		if err := s.store.RecordMetric(ctx, m); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", m.Name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("compute/maintenance: snapshot: %w: %w", compute.ErrPersistence, errors.Join(errs...))
	}
	return nil
}
