// Package observability provides OpenTelemetry metrics for the compute
// backend. The MetricsExtension implements lifecycle hooks to record
// system-wide counters for worker registration and eviction and for
// requests queued, rejected, dispatched, retried, completed and failed.
//
// For per-execution tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
