// Package middleware provides composable middleware around method handler
// execution inside a worker.
//
// A [Middleware] wraps the call that produces a response's data. Middleware
// are composed with [Chain] and applied right-to-left: the first middleware
// in the list is the outermost wrapper.
//
//	// logging → recover → handler
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging] logs method, request id, duration and outcome
//   - [Recover] turns handler panics into *compute.HandlerExecutionError
//   - [Timeout] bounds handler execution with a context deadline
//   - [Tracing] wraps execution in an OpenTelemetry span
//   - [Metrics] records per-method duration and outcome counters
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, req *protocol.ServiceRequest, next middleware.Handler) (map[string]any, error) {
//	        // pre-processing
//	        data, err := next(ctx)
//	        // post-processing
//	        return data, err
//	    }
//	}
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting.
package middleware
