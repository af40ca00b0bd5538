package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the compute sqlite store.
var Migrations = migrate.NewGroup("compute")

func init() {
	Migrations.MustRegister(
		// 001: Request log.
		&migrate.Migration{
			Name:    "create_request_logs_table",
			Version: "20250101120000",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
					CREATE TABLE IF NOT EXISTS request_logs (
						request_id         TEXT PRIMARY KEY,
						method             TEXT NOT NULL,
						client_id          TEXT NOT NULL DEFAULT '',
						worker_id          TEXT NOT NULL DEFAULT '',
						request_data       TEXT,
						response_data      TEXT,
						processing_time_ms REAL NOT NULL DEFAULT 0,
						status             TEXT NOT NULL DEFAULT 'pending',
						created_at         INTEGER NOT NULL,
						updated_at         INTEGER NOT NULL
					)`)
				if err != nil {
					return err
				}

				_, err = exec.Exec(ctx, `
					CREATE INDEX IF NOT EXISTS idx_request_logs_created_at
						ON request_logs (created_at)`)
				if err != nil {
					return err
				}

				_, err = exec.Exec(ctx, `
					CREATE INDEX IF NOT EXISTS idx_request_logs_method
						ON request_logs (method)`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS request_logs`)
				return err
			},
		},

		// 002: Worker status.
		&migrate.Migration{
			Name:    "create_worker_status_table",
			Version: "20250101120001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
					CREATE TABLE IF NOT EXISTS worker_status (
						worker_id          TEXT PRIMARY KEY,
						status             TEXT NOT NULL,
						processed_requests INTEGER NOT NULL DEFAULT 0,
						cpu_usage          REAL NOT NULL DEFAULT 0,
						memory_usage       REAL NOT NULL DEFAULT 0,
						updated_at         INTEGER NOT NULL
					)`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS worker_status`)
				return err
			},
		},

		// 003: Service metrics. Rows are ordered by the implicit rowid.
		&migrate.Migration{
			Name:    "create_service_metrics_table",
			Version: "20250101120002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
					CREATE TABLE IF NOT EXISTS service_metrics (
						metric_name  TEXT NOT NULL,
						metric_value REAL NOT NULL,
						metric_data  TEXT,
						created_at   INTEGER NOT NULL
					)`)
				if err != nil {
					return err
				}

				_, err = exec.Exec(ctx, `
					CREATE INDEX IF NOT EXISTS idx_service_metrics_name_created
						ON service_metrics (metric_name, created_at)`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS service_metrics`)
				return err
			},
		},
	)
}
