// Package engine wires all compute subsystems together and provides the
// application-level API for registering handlers and running the broker,
// the worker pool and maintenance.
//
// The engine package exists to break a fundamental import cycle: the root
// compute package defines the configuration and error taxonomy imported by
// every subsystem and therefore cannot import those packages back. Engine
// sits above all subsystem packages and below the application layer.
//
// # Building an Engine
//
//	opts, err := engine.OpenBackends(ctx, cfg, logger)
//	svc, err := compute.New(append(opts,
//	    compute.WithConfig(cfg),
//	    compute.WithLogger(logger),
//	)...)
//
//	eng, err := engine.Build(svc,
//	    engine.WithExtension(myExtension),
//	    engine.WithMiddleware(myMiddleware),
//	)
//
// # Registering Handlers
//
//	engine.Register(eng, handler.NewDefinition(protocol.MethodAnalyzeStock,
//	    func(ctx context.Context, p AnalyzeParams) (map[string]any, error) {
//	        ...
//	    }))
//
// health.check is always registered.
//
// # Roles
//
// By default one process runs everything. WithRoles splits the broker,
// the workers and maintenance across processes; workers in a process
// without the broker need WithBrokerURL.
//
// # Lifecycle
//
//	eng.Start(ctx) // broker, then workers, then maintenance
//	eng.Stop(ctx)  // reverse order, then the cache and store are closed
package engine
