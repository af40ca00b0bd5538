// Package ext defines the extension system for the compute backend.
//
// Extensions are notified of broker and worker lifecycle events and can
// react to them by recording metrics, writing audit logs, paging, etc.
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
//
// # Implementing an Extension
//
//	type SlowRequests struct{ limit time.Duration }
//
//	func (e *SlowRequests) Name() string { return "slow-requests" }
//
//	func (e *SlowRequests) OnRequestCompleted(ctx context.Context, r ext.Request, elapsed time.Duration) error {
//	    if elapsed > e.limit {
//	        slog.Warn("slow request", "method", r.Method, "elapsed", elapsed)
//	    }
//	    return nil
//	}
//
// # Worker Hooks
//
//   - [WorkerRegistered] broker saw the first READY from a worker
//   - [WorkerEvicted] broker removed a worker after a timeout or disconnect
//
// # Request Hooks
//
//   - [RequestQueued] no worker was ready; the request waits
//   - [RequestRejected] queue full or client over its admission rate
//   - [RequestDispatched] request handed to a worker
//   - [RequestCompleted] handler returned data
//   - [RequestFailed] request ended with an error response
//
// # Other Hooks
//
//   - [Shutdown] the service is shutting down gracefully
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface. Hook errors are logged and
// never propagate into the request path.
package ext
