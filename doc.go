// Package compute is the shared compute backend of a multi-module trading
// platform. Upstream modules send structured operation requests (market
// scans, order execution, risk evaluation, stock analysis, market data,
// health checks) to a broker, which pairs each request with exactly one
// ready worker and returns the correlated response.
//
// # Quick Start
//
//	svc, err := compute.New(
//	    compute.WithStore(memory.New()),
//	    compute.WithConfig(cfg),
//	)
//	eng, err := engine.Build(svc, engine.WithHandlers(reg))
//	err = eng.Start(ctx)
//
// # Architecture
//
// The protocol package owns the wire format and per-method parameter
// schemas. The broker is a single goroutine multiplexing the frontend and
// backend endpoints. Workers pull one request at a time, dispatch through
// the handler registry, and report status through the persistence store.
// The cache store and the persistence store are optional collaborators;
// their failures are absorbed and never reach the client.
package compute
