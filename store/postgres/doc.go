// Package postgres implements store.Store using pgx/v5 with raw SQL.
// Features: JSONB payload columns, upsert-by-key request and worker rows,
// FILTER aggregates for statistics. The schema is the grove migration
// group Migrations, applied by Migrate.
package postgres
