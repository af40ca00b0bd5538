package compute

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Option configures a Service.
type Option func(*Service) error

// Storer is the minimal store interface held by the Service.
// It covers lifecycle operations only. The full composite interface
// (store.Store) is used in subsystem layers that don't create import
// cycles.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Cacher is the lifecycle view of the cache store.
type Cacher interface {
	Ping(ctx context.Context) error
	Close() error
}

// Runner is a long-lived component started and stopped with the Service
// (broker, worker pool, maintenance scheduler).
type Runner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// extensionEmitter is an internal interface for extension lifecycle events.
type extensionEmitter interface {
	EmitShutdown(ctx context.Context)
}

// Service is the explicitly constructed service context. It holds the
// configuration, logger, store and cache shared by the broker and workers,
// and owns the lifecycle of the runners wired onto it.
//
// Create one with New() and functional options, then use the engine
// package to attach the broker, the worker pool and maintenance.
type Service struct {
	config     Config
	logger     *slog.Logger
	store      Storer
	cache      Cacher
	extensions extensionEmitter

	mu      sync.Mutex
	runners []Runner
	started bool
}

// New creates a new Service with the given options.
func New(opts ...Option) (*Service, error) {
	s := &Service{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Logger returns the service logger.
func (s *Service) Logger() *slog.Logger { return s.logger }

// Store returns the persistence store, or nil.
func (s *Service) Store() Storer { return s.store }

// Cache returns the cache store, or nil.
func (s *Service) Cache() Cacher { return s.cache }

// Config returns a copy of the service configuration.
func (s *Service) Config() Config { return s.config }

// SetExtensions sets the extension emitter (called by the engine package).
func (s *Service) SetExtensions(e extensionEmitter) { s.extensions = e }

// AddRunner registers a component to be started by Start. Runners start
// in registration order and stop in reverse order.
func (s *Service) AddRunner(r Runner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runners = append(s.runners, r)
}

// Start starts every registered runner. If one fails, the runners that
// already started are stopped and the error is returned.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	for i, r := range s.runners {
		if err := r.Start(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				if stopErr := s.runners[j].Stop(ctx); stopErr != nil {
					s.logger.Error("runner stop error", slog.String("error", stopErr.Error()))
				}
			}
			return err
		}
	}
	s.started = true
	return nil
}

// Stop gracefully shuts down the runners, emits the shutdown hook and
// closes the cache and store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.started {
		for i := len(s.runners) - 1; i >= 0; i-- {
			if err := s.runners[i].Stop(ctx); err != nil {
				s.logger.Error("runner stop error", slog.String("error", err.Error()))
				errs = append(errs, err)
			}
		}
		s.started = false
	}
	if s.extensions != nil {
		s.extensions.EmitShutdown(ctx)
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(s *Service) error {
		s.config = cfg
		return nil
	}
}

// WithWorkerCount sets the number of in-process workers.
func WithWorkerCount(n int) Option {
	return func(s *Service) error {
		s.config.WorkerCount = n
		return nil
	}
}

// WithLogger sets the structured logger for the service.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) error {
		s.logger = l
		return nil
	}
}

// WithStore sets the persistence backend. The store must implement Storer
// at minimum; typically it will be a store.Store.
func WithStore(st Storer) Option {
	return func(s *Service) error {
		s.store = st
		return nil
	}
}

// WithCache sets the cache store.
func WithCache(c Cacher) Option {
	return func(s *Service) error {
		s.cache = c
		return nil
	}
}
