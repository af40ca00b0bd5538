package engine

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	compute "github.com/zhengren252/ntn-sub004"
	"github.com/zhengren252/ntn-sub004/backoff"
	"github.com/zhengren252/ntn-sub004/broker"
	"github.com/zhengren252/ntn-sub004/cache"
	"github.com/zhengren252/ntn-sub004/ext"
	"github.com/zhengren252/ntn-sub004/handler"
	"github.com/zhengren252/ntn-sub004/maintenance"
	mw "github.com/zhengren252/ntn-sub004/middleware"
	"github.com/zhengren252/ntn-sub004/observability"
	"github.com/zhengren252/ntn-sub004/protocol"
	"github.com/zhengren252/ntn-sub004/store"
	"github.com/zhengren252/ntn-sub004/worker"
)

// Role selects which components an Engine runs.
type Role uint8

const (
	// RoleBroker runs the broker frontend and backend.
	RoleBroker Role = 1 << iota
	// RoleWorkers runs Config.WorkerCount workers in-process.
	RoleWorkers
	// RoleMaintenance runs the cleanup and snapshot jobs.
	RoleMaintenance

	// RoleAll runs everything in one process.
	RoleAll = RoleBroker | RoleWorkers | RoleMaintenance
)

// Has reports whether r includes other.
func (r Role) Has(other Role) bool { return r&other == other }

// Engine wraps a compute.Service with typed subsystem access.
// Use Build() to create one from a Service.
type Engine struct {
	svc        *compute.Service
	cfg        compute.Config
	roles      Role
	extensions *ext.Registry
	registry   *handler.Registry
	store      store.Store
	cache      *cache.Store
	codec      *protocol.MessageHandler
	bo         backoff.Strategy
	mws        []mw.Middleware
	logger     *slog.Logger
	brokerURL  string
	workerIDs  []string

	executor  *worker.Executor
	broker    *broker.Broker
	pool      *worker.Pool
	scheduler *maintenance.Scheduler

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithRoles selects the components to run. Defaults to RoleAll.
func WithRoles(r Role) Option {
	return func(eng *Engine) { eng.roles = r }
}

// WithBrokerURL points workers at a broker backend in another process.
// Only meaningful without RoleBroker.
func WithBrokerURL(url string) Option {
	return func(eng *Engine) { eng.brokerURL = url }
}

// WithWorkerIDs gives the in-process workers fixed identities instead of
// generated ones, one worker per id.
func WithWorkerIDs(ids ...string) Option {
	return func(eng *Engine) { eng.workerIDs = ids }
}

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.extensions.Register(e)
	}
}

// WithMiddleware adds middleware to the handler chain.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithHandlers replaces the handler registry. health.check must be
// registered on it for the built-in health check to work.
func WithHandlers(r *handler.Registry) Option {
	return func(eng *Engine) { eng.registry = r }
}

// WithBackoff sets the worker reconnect strategy. If not set, an
// exponential strategy bounded by Config.ReconnectInitial and
// Config.ReconnectMax is used.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) {
		eng.bo = b
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// When set, the tracing middleware uses this provider instead of the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine.
// When set, both the metrics middleware and the observability extension
// use this provider instead of the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build creates an Engine from an existing Service.
// The Service's store must implement store.Store.
func Build(svc *compute.Service, opts ...Option) (*Engine, error) {
	logger := svc.Logger()
	cfg := svc.Config()

	if svc.Store() == nil {
		return nil, compute.ErrNoStore
	}
	st, ok := svc.Store().(store.Store)
	if !ok {
		return nil, fmt.Errorf("compute/engine: store does not implement store.Store")
	}
	var cs *cache.Store
	if svc.Cache() != nil {
		cs, ok = svc.Cache().(*cache.Store)
		if !ok {
			return nil, fmt.Errorf("compute/engine: cache is not a *cache.Store")
		}
	}

	eng := &Engine{
		svc:        svc,
		cfg:        cfg,
		roles:      RoleAll,
		extensions: ext.NewRegistry(logger),
		registry:   handler.NewRegistry(),
		store:      st,
		cache:      cs,
		codec:      protocol.NewMessageHandler(protocol.GetCodec(cfg.Codec)),
		logger:     logger,
	}

	for _, opt := range opts {
		opt(eng)
	}

	if eng.bo == nil {
		eng.bo = backoff.NewExponentialWithJitter(cfg.ReconnectInitial, cfg.ReconnectMax)
	}

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracer := eng.tracerProvider.Tracer("github.com/zhengren252/ntn-sub004")
		tracingMw = mw.TracingWithTracer(tracer)
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/zhengren252/ntn-sub004")
		metricsMw = mw.MetricsWithMeter(meter)
	} else {
		metricsMw = mw.Metrics()
	}

	// Register the observability metrics extension.
	var obsExt *observability.MetricsExtension
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/zhengren252/ntn-sub004/observability")
		obsExt = observability.NewMetricsExtensionWithMeter(meter)
	} else {
		obsExt = observability.NewMetricsExtension()
	}
	eng.extensions.Register(obsExt)

	// Default middleware stack: recover → tracing → metrics → logging → timeout.
	defaultMws := []mw.Middleware{
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
		mw.Timeout(cfg.HandlerTimeout, logger),
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(eng.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, eng.mws...)

	eng.executor = worker.NewExecutor(eng.registry, eng.codec, st, cs, eng.extensions, logger, allMws...)

	if eng.roles.Has(RoleWorkers) && !eng.roles.Has(RoleBroker) && eng.brokerURL == "" {
		return nil, fmt.Errorf("compute/engine: workers need a broker: set RoleBroker or WithBrokerURL")
	}
	if eng.roles.Has(RoleMaintenance) {
		sched, err := maintenance.NewScheduler(st, maintenance.ConfigFrom(cfg), logger)
		if err != nil {
			return nil, err
		}
		eng.scheduler = sched
	}

	// Runners start in this order and stop in reverse.
	if eng.roles.Has(RoleBroker) {
		eng.broker = broker.New(broker.ConfigFrom(cfg),
			broker.WithStatusStore(st),
			broker.WithExtensions(eng.extensions),
			broker.WithCodec(eng.codec),
			broker.WithLogger(logger),
		)
		svc.AddRunner(eng.broker)
	}
	if eng.roles.Has(RoleWorkers) {
		svc.AddRunner(&poolRunner{eng: eng})
	}
	if eng.scheduler != nil {
		svc.AddRunner(eng.scheduler)
	}

	svc.SetExtensions(eng.extensions)
	return eng, nil
}

// Register registers a typed handler definition with the engine.
func Register[T any](eng *Engine, def *handler.Definition[T]) error {
	return handler.RegisterDefinition(eng.registry, def)
}

// Handle registers an untyped handler for method.
func (eng *Engine) Handle(method protocol.Method, fn handler.Func) error {
	return eng.registry.Register(method, fn)
}

// Start starts the broker, then the workers, then maintenance.
func (eng *Engine) Start(ctx context.Context) error {
	return eng.svc.Start(ctx)
}

// Stop stops the components in reverse order and closes the store and
// cache.
func (eng *Engine) Stop(ctx context.Context) error {
	return eng.svc.Stop(ctx)
}

// Stats returns the broker snapshot, or compute.ErrNotStarted when this
// engine runs no broker.
func (eng *Engine) Stats(ctx context.Context) (broker.Stats, error) {
	if eng.broker == nil {
		return broker.Stats{}, compute.ErrNotStarted
	}
	return eng.broker.Stats(ctx)
}

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Handlers returns the handler registry.
func (eng *Engine) Handlers() *handler.Registry { return eng.registry }

// Service returns the underlying Service.
func (eng *Engine) Service() *compute.Service { return eng.svc }

// Store returns the persistence store.
func (eng *Engine) Store() store.Store { return eng.store }

// Cache returns the cache store, or nil.
func (eng *Engine) Cache() *cache.Store { return eng.cache }

// Codec returns the wire codec shared by the broker and workers.
func (eng *Engine) Codec() *protocol.MessageHandler { return eng.codec }

// Executor returns the request executor used by the workers.
func (eng *Engine) Executor() *worker.Executor { return eng.executor }

// Broker returns the broker, or nil without RoleBroker.
func (eng *Engine) Broker() *broker.Broker { return eng.broker }

// Pool returns the worker pool once started, or nil.
func (eng *Engine) Pool() *worker.Pool { return eng.pool }

// Scheduler returns the maintenance scheduler, or nil without
// RoleMaintenance.
func (eng *Engine) Scheduler() *maintenance.Scheduler { return eng.scheduler }

// FrontendURL returns the URL clients dial, or "" without a running broker.
func (eng *Engine) FrontendURL() string {
	if eng.broker == nil {
		return ""
	}
	return eng.broker.FrontendURL()
}

// poolRunner creates the worker pool at start time so that workers can
// connect to a broker bound on an ephemeral port.
type poolRunner struct {
	eng *Engine
}

func (r *poolRunner) Start(ctx context.Context) error {
	eng := r.eng
	url := eng.brokerURL
	if eng.broker != nil {
		url = eng.broker.BackendURL()
	}
	poolOpts := []worker.PoolOption{worker.WithPoolSize(eng.cfg.WorkerCount)}
	if len(eng.workerIDs) > 0 {
		poolOpts = append(poolOpts, worker.WithWorkerIDs(eng.workerIDs...))
	}
	eng.pool = worker.NewPool(url, eng.executor, eng.logger, append(poolOpts,
		worker.WithWorkerOptions(
			worker.WithPollInterval(eng.cfg.WorkerPollInterval),
			worker.WithBackoff(eng.bo),
			worker.WithStatusStore(eng.store),
			worker.WithLogger(eng.logger),
		),
	)...)
	return eng.pool.Start(ctx)
}

func (r *poolRunner) Stop(ctx context.Context) error {
	if r.eng.pool == nil {
		return nil
	}
	return r.eng.pool.Stop(ctx)
}
