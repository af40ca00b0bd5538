package ext

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// entry pairs a hook implementation with the extension name captured at
// registration time.
type entry[H any] struct {
	name string
	hook H
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. Extensions are type-cached at registration so emit calls only
// iterate over those that implement the relevant hook. Emit methods are
// safe to call from the broker loop and from worker goroutines.
type Registry struct {
	mu         sync.RWMutex
	extensions []Extension
	logger     *slog.Logger

	workerRegistered  []entry[WorkerRegistered]
	workerEvicted     []entry[WorkerEvicted]
	requestQueued     []entry[RequestQueued]
	requestRejected   []entry[RequestRejected]
	requestDispatched []entry[RequestDispatched]
	requestCompleted  []entry[RequestCompleted]
	requestFailed     []entry[RequestFailed]
	shutdown          []entry[Shutdown]
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(WorkerRegistered); ok {
		r.workerRegistered = append(r.workerRegistered, entry[WorkerRegistered]{name, h})
	}
	if h, ok := e.(WorkerEvicted); ok {
		r.workerEvicted = append(r.workerEvicted, entry[WorkerEvicted]{name, h})
	}
	if h, ok := e.(RequestQueued); ok {
		r.requestQueued = append(r.requestQueued, entry[RequestQueued]{name, h})
	}
	if h, ok := e.(RequestRejected); ok {
		r.requestRejected = append(r.requestRejected, entry[RequestRejected]{name, h})
	}
	if h, ok := e.(RequestDispatched); ok {
		r.requestDispatched = append(r.requestDispatched, entry[RequestDispatched]{name, h})
	}
	if h, ok := e.(RequestCompleted); ok {
		r.requestCompleted = append(r.requestCompleted, entry[RequestCompleted]{name, h})
	}
	if h, ok := e.(RequestFailed); ok {
		r.requestFailed = append(r.requestFailed, entry[RequestFailed]{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, entry[Shutdown]{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Extension, len(r.extensions))
	copy(out, r.extensions)
	return out
}

// emit calls fn for every entry in hooks, logging hook errors. A nil
// registry emits nothing.
func emit[H any](r *Registry, hooks func(*Registry) []entry[H], hookName string, fn func(H) error) {
	if r == nil {
		return
	}
	r.mu.RLock()
	list := hooks(r)
	r.mu.RUnlock()
	for _, e := range list {
		if err := fn(e.hook); err != nil {
			r.logHookError(hookName, e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Worker event emitters
// ──────────────────────────────────────────────────

// EmitWorkerRegistered notifies all extensions that implement WorkerRegistered.
func (r *Registry) EmitWorkerRegistered(ctx context.Context, workerID string) {
	emit(r, func(r *Registry) []entry[WorkerRegistered] { return r.workerRegistered }, "OnWorkerRegistered",
		func(h WorkerRegistered) error { return h.OnWorkerRegistered(ctx, workerID) })
}

// EmitWorkerEvicted notifies all extensions that implement WorkerEvicted.
func (r *Registry) EmitWorkerEvicted(ctx context.Context, workerID string, reason error) {
	emit(r, func(r *Registry) []entry[WorkerEvicted] { return r.workerEvicted }, "OnWorkerEvicted",
		func(h WorkerEvicted) error { return h.OnWorkerEvicted(ctx, workerID, reason) })
}

// ──────────────────────────────────────────────────
// Request event emitters
// ──────────────────────────────────────────────────

// EmitRequestQueued notifies all extensions that implement RequestQueued.
func (r *Registry) EmitRequestQueued(ctx context.Context, req Request, pending int) {
	emit(r, func(r *Registry) []entry[RequestQueued] { return r.requestQueued }, "OnRequestQueued",
		func(h RequestQueued) error { return h.OnRequestQueued(ctx, req, pending) })
}

// EmitRequestRejected notifies all extensions that implement RequestRejected.
func (r *Registry) EmitRequestRejected(ctx context.Context, req Request, reason error) {
	emit(r, func(r *Registry) []entry[RequestRejected] { return r.requestRejected }, "OnRequestRejected",
		func(h RequestRejected) error { return h.OnRequestRejected(ctx, req, reason) })
}

// EmitRequestDispatched notifies all extensions that implement RequestDispatched.
func (r *Registry) EmitRequestDispatched(ctx context.Context, req Request, attempt int) {
	emit(r, func(r *Registry) []entry[RequestDispatched] { return r.requestDispatched }, "OnRequestDispatched",
		func(h RequestDispatched) error { return h.OnRequestDispatched(ctx, req, attempt) })
}

// EmitRequestCompleted notifies all extensions that implement RequestCompleted.
func (r *Registry) EmitRequestCompleted(ctx context.Context, req Request, elapsed time.Duration) {
	emit(r, func(r *Registry) []entry[RequestCompleted] { return r.requestCompleted }, "OnRequestCompleted",
		func(h RequestCompleted) error { return h.OnRequestCompleted(ctx, req, elapsed) })
}

// EmitRequestFailed notifies all extensions that implement RequestFailed.
func (r *Registry) EmitRequestFailed(ctx context.Context, req Request, reqErr error) {
	emit(r, func(r *Registry) []entry[RequestFailed] { return r.requestFailed }, "OnRequestFailed",
		func(h RequestFailed) error { return h.OnRequestFailed(ctx, req, reqErr) })
}

// ──────────────────────────────────────────────────
// Other event emitters
// ──────────────────────────────────────────────────

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(r, func(r *Registry) []entry[Shutdown] { return r.shutdown }, "OnShutdown",
		func(h Shutdown) error { return h.OnShutdown(ctx) })
}

func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
