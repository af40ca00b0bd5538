// Package ext defines the extension system for the compute backend.
// Extensions are notified of broker and worker lifecycle events (worker
// registered, request queued, dispatched, completed, failed, etc.) and can
// react to them.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// Request identifies one request in a lifecycle event. Fields the emitter
// does not know are left empty; the broker never decodes payloads, so
// Method is set only by workers.
type Request struct {
	RequestID string
	Method    string
	ClientID  string
	WorkerID  string
}

// ──────────────────────────────────────────────────
// Worker lifecycle hooks
// ──────────────────────────────────────────────────

// WorkerRegistered is called when the broker first sees READY from a worker.
type WorkerRegistered interface {
	OnWorkerRegistered(ctx context.Context, workerID string) error
}

// WorkerEvicted is called when the broker removes a worker from rotation.
type WorkerEvicted interface {
	OnWorkerEvicted(ctx context.Context, workerID string, reason error) error
}

// ──────────────────────────────────────────────────
// Request lifecycle hooks
// ──────────────────────────────────────────────────

// RequestQueued is called when no worker is ready and a request waits.
type RequestQueued interface {
	OnRequestQueued(ctx context.Context, r Request, pending int) error
}

// RequestRejected is called when the broker answers a request with an
// error without dispatching it (queue full, rate limited).
type RequestRejected interface {
	OnRequestRejected(ctx context.Context, r Request, reason error) error
}

// RequestDispatched is called when a request is handed to a worker.
// attempt is 1 for the first dispatch and grows with each retry.
type RequestDispatched interface {
	OnRequestDispatched(ctx context.Context, r Request, attempt int) error
}

// RequestCompleted is called after a handler returns data.
type RequestCompleted interface {
	OnRequestCompleted(ctx context.Context, r Request, elapsed time.Duration) error
}

// RequestFailed is called when a request ends with an error response:
// validation, handler failure or worker timeout.
type RequestFailed interface {
	OnRequestFailed(ctx context.Context, r Request, err error) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
