package engine

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	compute "github.com/zhengren252/ntn-sub004"
	"github.com/zhengren252/ntn-sub004/cache"
	"github.com/zhengren252/ntn-sub004/store"
	"github.com/zhengren252/ntn-sub004/store/memory"
	"github.com/zhengren252/ntn-sub004/store/mongo"
	"github.com/zhengren252/ntn-sub004/store/postgres"
	"github.com/zhengren252/ntn-sub004/store/sqlite"
)

// Persistence drivers accepted by OpenStore.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"
)

// OpenStore connects to the configured persistence backend and runs its
// migrations.
func OpenStore(ctx context.Context, cfg compute.PersistenceConfig, logger *slog.Logger) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Driver {
	case "", DriverMemory:
		st = memory.New()
	case DriverPostgres:
		st, err = postgres.New(ctx, cfg.DSN, postgres.WithLogger(logger))
	case DriverSQLite:
		st, err = sqlite.Open(ctx, cfg.DSN, sqlite.WithLogger(logger))
	case DriverMongo:
		database := cfg.Database
		if database == "" {
			database = "compute"
		}
		st, err = mongo.Open(ctx, cfg.DSN, database, mongo.WithLogger(logger))
	default:
		return nil, fmt.Errorf("compute/engine: unknown persistence driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("compute/engine: open %s: %w", cfg.Driver, err)
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("compute/engine: migrate %s: %w", cfg.Driver, err)
	}
	return st, nil
}

// OpenCache builds the cache store. An empty Addr selects the in-memory
// backend.
func OpenCache(cfg compute.CacheConfig, logger *slog.Logger) *cache.Store {
	var backend cache.Backend
	if cfg.Addr == "" {
		backend = cache.NewMemoryBackend()
	} else {
		backend = cache.OpenRedis(cfg.Addr, cfg.Password, cfg.DB)
	}

	opts := []cache.Option{cache.WithLogger(logger)}
	if cfg.Service != "" {
		opts = append(opts, cache.WithService(cfg.Service))
	}
	for cat, ttl := range cfg.TTLs {
		opts = append(opts, cache.WithTTL(cache.Category(cat), ttl))
	}
	return cache.New(backend, opts...)
}

// OpenBackends opens the store and cache named by cfg and checks that
// both answer a ping. The returned options plug them into compute.New.
func OpenBackends(ctx context.Context, cfg compute.Config, logger *slog.Logger) ([]compute.Option, error) {
	st, err := OpenStore(ctx, cfg.Persistence, logger)
	if err != nil {
		return nil, err
	}
	cs := OpenCache(cfg.Cache, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := st.Ping(gctx); err != nil {
			return fmt.Errorf("compute/engine: store ping: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		// An unreachable cache degrades to misses; it is only logged.
		if err := cs.Ping(gctx); err != nil {
			logger.Warn("cache unreachable, continuing without it",
				slog.String("addr", cfg.Cache.Addr),
				slog.String("error", err.Error()),
			)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		_ = cs.Close()
		_ = st.Close()
		return nil, err
	}

	return []compute.Option{compute.WithStore(st), compute.WithCache(cs)}, nil
}
