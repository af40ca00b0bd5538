// Package broker pairs client requests with ready workers.
//
// A [Broker] binds two router endpoints: the frontend, where clients send
// requests, and the backend, where workers register and reply. One
// goroutine owns all routing state (ready queue, pending queue, in-flight
// table, last activity) and reacts to inbound messages, peer disconnects
// and a ticker that drives timeout checks. Nothing in the dispatch path
// takes a lock.
//
// Routing rules:
//
//   - READY adds the worker to the ready queue, or hands it the oldest
//     pending request. A READY from a worker that is already ready or busy
//     is ignored.
//   - A request goes to the least recently ready worker. With no ready
//     worker it waits in a bounded queue; when the queue is full the
//     client gets an error response.
//   - A reply is forwarded to the client and the worker is immediately
//     given the next pending request or returned to the ready queue.
//   - A worker that does not reply within the timeout is evicted and
//     marked offline. Its request is retried once on a different ready
//     worker, otherwise the client gets a timeout error. A reply that
//     arrives after eviction is dropped.
//
// The broker never decodes request payloads beyond peeking at the
// request id for its own error responses.
package broker
