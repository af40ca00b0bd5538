// Package memory implements store.Store in process memory. Safe for
// concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	compute "github.com/zhengren252/ntn-sub004"
	"github.com/zhengren252/ntn-sub004/cluster"
	"github.com/zhengren252/ntn-sub004/metrics"
	"github.com/zhengren252/ntn-sub004/requestlog"
	"github.com/zhengren252/ntn-sub004/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a fully in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	requests map[string]*requestlog.Entry
	workers  map[string]*cluster.WorkerStatus
	metrics  []*metrics.Metric

	now func() time.Time
}

// Option configures the memory Store.
type Option func(*Store)

// WithClock sets the time source used for timestamps and retention.
func WithClock(now func() time.Time) Option {
	return func(m *Store) { m.now = now }
}

// New returns a new empty Store.
func New(opts ...Option) *Store {
	m := &Store{
		requests: make(map[string]*requestlog.Entry),
		workers:  make(map[string]*cluster.WorkerStatus),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Request log
// ──────────────────────────────────────────────────

// LogRequest inserts or resets the row for e.RequestID.
func (m *Store) LogRequest(_ context.Context, e *requestlog.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cp := *e
	cp.RequestData = maps.Clone(e.RequestData)
	cp.ResponseData = nil
	cp.ProcessingTimeMs = 0
	if cp.Status == "" {
		cp.Status = requestlog.StatusPending
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	if existing, ok := m.requests[e.RequestID]; ok {
		cp.CreatedAt = existing.CreatedAt
	}
	cp.UpdatedAt = now
	m.requests[e.RequestID] = &cp
	return nil
}

// LogResponse completes the row for requestID.
func (m *Store) LogResponse(_ context.Context, requestID string, response map[string]any, processingTimeMs float64, status requestlog.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.requests[requestID]
	if !ok {
		return compute.ErrRequestNotFound
	}
	e.ResponseData = maps.Clone(response)
	e.ProcessingTimeMs = processingTimeMs
	e.Status = status
	e.UpdatedAt = m.now()
	return nil
}

// GetRequestLog returns one entry by request_id.
func (m *Store) GetRequestLog(_ context.Context, requestID string) (*requestlog.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.requests[requestID]
	if !ok {
		return nil, compute.ErrRequestNotFound
	}
	cp := *e
	return &cp, nil
}

// ListRequestLogs returns up to limit entries, newest first.
func (m *Store) ListRequestLogs(_ context.Context, limit int) ([]*requestlog.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*requestlog.Entry, 0, len(m.requests))
	for _, e := range m.requests {
		cp := *e
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, k int) bool {
		if result[i].CreatedAt.Equal(result[k].CreatedAt) {
			return result[i].RequestID > result[k].RequestID
		}
		return result[i].CreatedAt.After(result[k].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ServiceStats returns totals across all entries.
func (m *Store) ServiceStats(_ context.Context) (*requestlog.ServiceStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := &requestlog.ServiceStats{}
	var sum float64
	var completed int64
	for _, e := range m.requests {
		st.TotalRequests++
		switch e.Status {
		case requestlog.StatusSuccess:
			st.SuccessfulRequests++
		case requestlog.StatusError, requestlog.StatusTimeout:
			st.FailedRequests++
		}
		if e.Status != requestlog.StatusPending {
			sum += e.ProcessingTimeMs
			completed++
		}
	}
	if completed > 0 {
		st.AvgResponseTimeMs = sum / float64(completed)
	}
	return st, nil
}

// MethodStatistics returns per-method aggregates ordered by method.
func (m *Store) MethodStatistics(_ context.Context) ([]*requestlog.MethodStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type acc struct {
		count, success, completed int64
		sum                       float64
	}
	by := make(map[string]*acc)
	for _, e := range m.requests {
		a := by[e.Method]
		if a == nil {
			a = &acc{}
			by[e.Method] = a
		}
		a.count++
		if e.Status == requestlog.StatusSuccess {
			a.success++
		}
		if e.Status != requestlog.StatusPending {
			a.sum += e.ProcessingTimeMs
			a.completed++
		}
	}

	result := make([]*requestlog.MethodStats, 0, len(by))
	for method, a := range by {
		ms := &requestlog.MethodStats{
			Method:      method,
			CallCount:   a.count,
			SuccessRate: float64(a.success) / float64(a.count),
		}
		if a.completed > 0 {
			ms.AvgLatencyMs = a.sum / float64(a.completed)
		}
		result = append(result, ms)
	}
	sort.Slice(result, func(i, k int) bool { return result[i].Method < result[k].Method })
	return result, nil
}

// ──────────────────────────────────────────────────
// Worker status
// ──────────────────────────────────────────────────

// UpdateWorkerStatus upserts the row for ws.WorkerID.
func (m *Store) UpdateWorkerStatus(_ context.Context, ws *cluster.WorkerStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *ws
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = m.now()
	}
	m.workers[ws.WorkerID] = &cp
	return nil
}

// SetWorkerState changes only status and updated_at.
func (m *Store) SetWorkerState(_ context.Context, workerID string, state cluster.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.workers[workerID]
	if !ok {
		w = &cluster.WorkerStatus{WorkerID: workerID}
		m.workers[workerID] = w
	}
	w.Status = state
	w.UpdatedAt = m.now()
	return nil
}

// GetWorkerStatus returns one worker.
func (m *Store) GetWorkerStatus(_ context.Context, workerID string) (*cluster.WorkerStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.workers[workerID]
	if !ok {
		return nil, compute.ErrWorkerNotFound
	}
	cp := *w
	return &cp, nil
}

// ListWorkerStatus returns every worker ordered by worker_id.
func (m *Store) ListWorkerStatus(_ context.Context) ([]*cluster.WorkerStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*cluster.WorkerStatus, 0, len(m.workers))
	for _, w := range m.workers {
		cp := *w
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, k int) bool { return result[i].WorkerID < result[k].WorkerID })
	return result, nil
}

// ──────────────────────────────────────────────────
// Service metrics
// ──────────────────────────────────────────────────

// RecordMetric appends a sample.
func (m *Store) RecordMetric(_ context.Context, mt *metrics.Metric) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *mt
	cp.Data = maps.Clone(mt.Data)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = m.now()
	}
	m.metrics = append(m.metrics, &cp)
	return nil
}

// ListMetrics returns up to limit samples, newest first.
func (m *Store) ListMetrics(_ context.Context, name string, limit int) ([]*metrics.Metric, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*metrics.Metric
	for i := len(m.metrics) - 1; i >= 0; i-- {
		mt := m.metrics[i]
		if name != "" && mt.Name != name {
			continue
		}
		cp := *mt
		result = append(result, &cp)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Retention
// ──────────────────────────────────────────────────

// CleanupOldData deletes rows created before now minus retention.
func (m *Store) CleanupOldData(_ context.Context, retention time.Duration) (store.CleanupResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-retention)
	var res store.CleanupResult
	for k, e := range m.requests {
		if e.CreatedAt.Before(cutoff) {
			delete(m.requests, k)
			res.RequestLogs++
		}
	}
	kept := m.metrics[:0]
	for _, mt := range m.metrics {
		if mt.CreatedAt.Before(cutoff) {
			res.Metrics++
			continue
		}
		kept = append(kept, mt)
	}
	m.metrics = kept
	return res, nil
}
