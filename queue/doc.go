// Package queue provides the backpressure primitives used by the broker:
// a bounded FIFO of requests waiting for a ready worker, and a per-client
// token-bucket admission limiter.
//
// # Pending
//
// [Pending] never grows past its capacity. Push on a full queue fails and
// the caller answers the request with an error instead of buffering it:
//
//	q := queue.NewPending[*call](cfg.MaxPendingRequests)
//	if err := q.Push(c); errors.Is(err, compute.ErrQueueFull) {
//	    // reject immediately
//	}
//
// # Admission
//
// [Admission] applies a token bucket (golang.org/x/time/rate) per client
// identity. A zero rate disables it.
//
//	a := queue.NewAdmission(queue.AdmissionConfig{Rate: 50, Burst: 100})
//	if !a.Allow(clientID) {
//	    // reject with rate-limited error
//	}
package queue
