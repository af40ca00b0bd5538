package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	compute "github.com/zhengren252/ntn-sub004"
	"github.com/zhengren252/ntn-sub004/store"

	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate" // register the sqlite migration executor
)

// Ensure Store implements store.Store at compile time.
var _ store.Store = (*Store)(nil)

// Store is a SQLite implementation of store.Store backed by grove.
type Store struct {
	db     *grove.DB
	sdb    *sqlitedriver.SqliteDB
	logger *slog.Logger
	owned  bool
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Open opens the database at path. ":memory:" yields a private in-process
// database that every pooled connection shares.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	dsn := path
	if path == ":memory:" {
		dsn = "file:compute_" + strings.ReplaceAll(uuid.NewString(), "-", "") + "?mode=memory&cache=shared"
	}
	db, err := grove.Open(ctx, "sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("compute/sqlite: open: %w", err)
	}

	s := New(db, opts...)
	s.owned = true
	return s, nil
}

// New wraps an existing grove.DB using the sqlite driver. The caller owns
// the db lifecycle.
func New(db *grove.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		sdb:    sqlitedriver.Unwrap(db),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying grove database for advanced usage.
func (s *Store) DB() *grove.DB {
	return s.db
}

// Migrate applies the compute migration group through the grove
// orchestrator. Applied versions are skipped.
func (s *Store) Migrate(ctx context.Context) error {
	executor := migrate.NewExecutorFor(s.sdb)
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: %w", compute.ErrMigrationFailed, err)
	}
	s.logger.Debug("sqlite migrations applied", slog.String("group", "compute"))
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database when the store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// CleanupOldData deletes rows created before now minus retention.
func (s *Store) CleanupOldData(ctx context.Context, retention time.Duration) (store.CleanupResult, error) {
	cutoff := time.Now().Add(-retention).UnixNano()
	var res store.CleanupResult

	n, err := rowsAffected(s.sdb.NewDelete((*requestLogModel)(nil)).
		Where("created_at < ?", cutoff).
		Exec(ctx))
	if err != nil {
		return res, fmt.Errorf("compute/sqlite: cleanup request_logs: %w", err)
	}
	res.RequestLogs = n

	n, err = rowsAffected(s.sdb.NewDelete((*metricModel)(nil)).
		Where("created_at < ?", cutoff).
		Exec(ctx))
	if err != nil {
		return res, fmt.Errorf("compute/sqlite: cleanup service_metrics: %w", err)
	}
	res.Metrics = n
	return res, nil
}

// ── helpers ──────────────────────────────────────────────────────

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

type execResult interface {
	RowsAffected() (int64, error)
}

func rowsAffected(res execResult, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// upsert runs update and falls back to insert when no row matched. A
// concurrent insert of the same key makes the insert fail, so update is
// retried once before reporting the insert error.
func upsert(update func() (int64, error), insert func() error) error {
	n, err := update()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	insErr := insert()
	if insErr == nil {
		return nil
	}
	if n, err = update(); err == nil && n > 0 {
		return nil
	}
	return insErr
}
