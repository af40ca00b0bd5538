package compute

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Store errors.
	ErrNoStore         = errors.New("compute: no store configured")
	ErrStoreClosed     = errors.New("compute: store closed")
	ErrMigrationFailed = errors.New("compute: migration failed")

	// Not found errors.
	ErrRequestNotFound = errors.New("compute: request log not found")
	ErrWorkerNotFound  = errors.New("compute: worker not found")

	// Request path errors. Only ErrValidation and ErrHandlerExecution are
	// ever visible to the end client.
	ErrValidation       = errors.New("compute: validation failed")
	ErrHandlerExecution = errors.New("compute: handler execution failed")
	ErrWorkerTimeout    = errors.New("compute: worker timeout")
	ErrQueueFull        = errors.New("compute: pending queue full")
	ErrRateLimited      = errors.New("compute: client rate limited")
	ErrNoHandler        = errors.New("compute: no handler registered")

	// Backend errors. Logged and absorbed.
	ErrCacheBackend = errors.New("compute: cache backend unavailable")
	ErrPersistence  = errors.New("compute: persistence write failed")

	// Lifecycle errors.
	ErrNotStarted     = errors.New("compute: service not started")
	ErrAlreadyStarted = errors.New("compute: service already started")
	ErrShuttingDown   = errors.New("compute: broker shutting down")
)

// ValidationError reports a malformed frame, a missing or unsupported
// method, or params that fail the method schema.
type ValidationError struct {
	Reason string
}

// NewValidationError returns a *ValidationError with the given reason.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string { return e.Reason }

func (e *ValidationError) Unwrap() error { return ErrValidation }

// HandlerExecutionError wraps a failure raised by a method handler.
// Kind is a short classifier ("error", "panic", "timeout" or a Go type name).
type HandlerExecutionError struct {
	Method string
	Kind   string
	Err    error
}

func (e *HandlerExecutionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap exposes both the sentinel and the underlying handler error.
func (e *HandlerExecutionError) Unwrap() []error { return []error{ErrHandlerExecution, e.Err} }

// WorkerTimeoutError is produced by the broker when a dispatched worker
// does not reply within the configured bound.
type WorkerTimeoutError struct {
	WorkerID string
	Timeout  time.Duration
}

func (e *WorkerTimeoutError) Error() string {
	return fmt.Sprintf("worker %s did not reply within %s", e.WorkerID, e.Timeout)
}

func (e *WorkerTimeoutError) Unwrap() error { return ErrWorkerTimeout }
