// Package worker is the worker runtime: a process-local loop that
// registers with the broker, takes one request at a time, runs it against
// the handler table and reports the result.
//
// Each [Worker] holds one dealer connection identified by its worker id.
// The loop is:
//
//	READY → wait (poll interval) → parse → validate → handler → reply → status → READY
//
// Requests that fail to parse or validate never reach a handler and do not
// count toward processed_requests. Handler failures, including panics,
// become error responses; the worker keeps running. When the connection
// drops the worker reconnects with backoff and registers again.
//
// A [Pool] runs N workers in one process.
package worker
