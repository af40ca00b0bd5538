package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the compute postgres store.
var Migrations = migrate.NewGroup("compute")

func init() {
	Migrations.MustRegister(
		// 001: Request log and its indexes.
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
						request_data       JSONB,
						response_data      JSONB,
						processing_time_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
						status             TEXT NOT NULL DEFAULT 'pending',
						created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
						updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
					);

					CREATE INDEX IF NOT EXISTS idx_request_logs_created_at ON request_logs (created_at);
					CREATE INDEX IF NOT EXISTS idx_request_logs_method ON request_logs (method);
				`)
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
						processed_requests BIGINT NOT NULL DEFAULT 0,
						cpu_usage          DOUBLE PRECISION NOT NULL DEFAULT 0,
						memory_usage       DOUBLE PRECISION NOT NULL DEFAULT 0,
						updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
					)
				`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS worker_status`)
				return err
			},
		},

		// 003: Service metrics and its indexes.
		&migrate.Migration{
			Name:    "create_service_metrics_table",
			Version: "20250101120002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
					CREATE TABLE IF NOT EXISTS service_metrics (
						id           BIGSERIAL PRIMARY KEY,
						metric_name  TEXT NOT NULL,
						metric_value DOUBLE PRECISION NOT NULL,
						metric_data  JSONB,
						created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
					);

					CREATE INDEX IF NOT EXISTS idx_service_metrics_name_created ON service_metrics (metric_name, created_at DESC);
					CREATE INDEX IF NOT EXISTS idx_service_metrics_created_at ON service_metrics (created_at);
				`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS service_metrics`)
				return err
			},
		},
	)
}
