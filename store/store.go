// Package store defines the aggregate persistence interface. Each subsystem
// (requestlog, cluster, metrics) defines its own store interface. The
// composite Store composes them all. Backends: Postgres, SQLite, MongoDB,
// and Memory.
package store

import (
	"context"
	"time"

	"github.com/zhengren252/ntn-sub004/cluster"
	"github.com/zhengren252/ntn-sub004/metrics"
	"github.com/zhengren252/ntn-sub004/requestlog"
)

// Store is the aggregate persistence interface.
// A single backend (postgres, sqlite, mongo, memory) implements all of them.
type Store interface {
	requestlog.Store
	cluster.Store
	metrics.Store

	// CleanupOldData deletes request_logs and service_metrics rows created
	// before now minus retention.
	CleanupOldData(ctx context.Context, retention time.Duration) (CleanupResult, error)

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}

// CleanupResult reports rows removed by CleanupOldData.
type CleanupResult struct {
	RequestLogs int64 `json:"request_logs"`
	Metrics     int64 `json:"metrics"`
}

// Total returns the number of rows removed across tables.
func (r CleanupResult) Total() int64 { return r.RequestLogs + r.Metrics }
