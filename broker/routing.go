package broker

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	compute "github.com/zhengren252/ntn-sub004"
	"github.com/zhengren252/ntn-sub004/cluster"
	"github.com/zhengren252/ntn-sub004/ext"
	"github.com/zhengren252/ntn-sub004/id"
	"github.com/zhengren252/ntn-sub004/protocol"
	"github.com/zhengren252/ntn-sub004/transport"
)

// job is a client request owned by the broker until a reply, a rejection
// or a final failure is sent.
type job struct {
	clientID     string
	requestID    string
	payload      []byte
	attempts     int
	tried        []string
	dispatchedAt time.Time
}

func (j *job) request(workerID string) ext.Request {
	return ext.Request{
		RequestID: j.requestID,
		ClientID:  j.clientID,
		WorkerID:  workerID,
	}
}

// workerEntry tracks a registered worker. state is idle while the worker
// sits in the ready queue and busy while it holds job.
type workerEntry struct {
	id           string
	state        cluster.State
	job          *job
	lastActivity time.Time
}

// ──────────────────────────────────────────────────
// Frontend
// ──────────────────────────────────────────────────

func (b *Broker) handleClient(ctx context.Context, msg transport.Message) {
	if len(msg) < 2 {
		b.logger.Warn("broker: malformed client message",
			slog.String("client_id", msg.Identity()),
			slog.Int("frames", len(msg)),
		)
		return
	}
	payload := msg[len(msg)-1]
	j := &job{
		clientID:  msg.Identity(),
		requestID: b.codec.PeekRequestID(payload),
		payload:   payload,
	}
	if j.requestID == "" {
		// Broker-side errors still need an id the client can correlate.
		j.requestID = id.NewRequestID().String()
	}
	b.counters.Received++

	if !b.admission.Allow(j.clientID) {
		b.reject(ctx, j, compute.ErrRateLimited)
		return
	}
	b.route(ctx, j, false)
}

// route hands j to the first ready worker, or queues it. Retries that
// lost their worker go to the front of the queue.
func (b *Broker) route(ctx context.Context, j *job, front bool) {
	if w := b.popReady(nil); w != nil {
		b.dispatch(ctx, j, w)
		return
	}

	push := b.pending.Push
	if front {
		push = b.pending.PushFront
	}
	if err := push(j); err != nil {
		b.reject(ctx, j, err)
		return
	}
	b.logger.Debug("broker: request queued",
		slog.String("request_id", j.requestID),
		slog.Int("pending", b.pending.Len()),
	)
	b.extensions.EmitRequestQueued(ctx, j.request(""), b.pending.Len())
}

func (b *Broker) dispatch(ctx context.Context, j *job, w *workerEntry) {
	err := b.backend.Send(transport.Message{[]byte(w.id), []byte(j.clientID), j.payload})
	if err != nil {
		b.evict(ctx, w, fmt.Errorf("dispatch: %w", err))
		b.route(ctx, j, true)
		return
	}

	j.attempts++
	j.tried = append(j.tried, w.id)
	j.dispatchedAt = time.Now()
	w.state = cluster.StateBusy
	w.job = j
	b.counters.Dispatched++

	b.logger.Debug("broker: request dispatched",
		slog.String("request_id", j.requestID),
		slog.String("worker_id", w.id),
		slog.Int("attempt", j.attempts),
	)
	b.extensions.EmitRequestDispatched(ctx, j.request(w.id), j.attempts)
}

func (b *Broker) reject(ctx context.Context, j *job, reason error) {
	b.counters.Rejected++
	b.logger.Warn("broker: request rejected",
		slog.String("request_id", j.requestID),
		slog.String("client_id", j.clientID),
		slog.String("reason", reason.Error()),
	)
	b.respondError(j, reason)
	b.extensions.EmitRequestRejected(ctx, j.request(""), reason)
}

// fail ends a dispatched request with an error response.
func (b *Broker) fail(ctx context.Context, j *job, reason error) {
	b.respondError(j, reason)
	b.extensions.EmitRequestFailed(ctx, j.request(""), reason)
}

func (b *Broker) respondError(j *job, reason error) {
	data, err := b.codec.SerializeResponse(protocol.CreateErrorResponse(j.requestID, reason.Error()))
	if err != nil {
		b.logger.Error("broker: serialize error response",
			slog.String("request_id", j.requestID),
			slog.String("error", err.Error()),
		)
		return
	}
	b.forward(j.clientID, data)
}

func (b *Broker) forward(clientID string, payload []byte) {
	if err := b.frontend.Send(transport.Message{[]byte(clientID), payload}); err != nil {
		b.logger.Debug("broker: client unreachable",
			slog.String("client_id", clientID),
			slog.String("error", err.Error()),
		)
	}
}

// ──────────────────────────────────────────────────
// Backend
// ──────────────────────────────────────────────────

func (b *Broker) handleWorker(ctx context.Context, msg transport.Message) {
	workerID := msg.Identity()
	switch {
	case len(msg) == 2 && protocol.IsReady(msg[1]):
		b.handleReady(ctx, workerID)
	case len(msg) >= 3:
		b.handleReply(ctx, workerID, string(msg[1]), msg[len(msg)-1])
	default:
		b.logger.Warn("broker: malformed worker message",
			slog.String("worker_id", workerID),
			slog.Int("frames", len(msg)),
		)
	}
}

func (b *Broker) handleReady(ctx context.Context, workerID string) {
	w, known := b.workers[workerID]
	if !known {
		w = &workerEntry{id: workerID}
		b.workers[workerID] = w
		b.logger.Info("broker: worker registered", slog.String("worker_id", workerID))
		b.extensions.EmitWorkerRegistered(ctx, workerID)
	}
	w.lastActivity = time.Now()

	if w.state == cluster.StateIdle || w.state == cluster.StateBusy {
		return
	}
	b.release(ctx, w)
}

func (b *Broker) handleReply(ctx context.Context, workerID, clientID string, payload []byte) {
	w, ok := b.workers[workerID]
	if !ok || w.job == nil || w.job.clientID != clientID {
		b.counters.Dropped++
		b.logger.Warn("broker: dropping late reply",
			slog.String("worker_id", workerID),
			slog.String("client_id", clientID),
		)
		return
	}

	j := w.job
	w.job = nil
	w.lastActivity = time.Now()
	b.counters.Completed++
	b.forward(j.clientID, payload)
	b.release(ctx, w)
}

// release gives w the oldest pending request, or parks it in the ready
// queue.
func (b *Broker) release(ctx context.Context, w *workerEntry) {
	if j, ok := b.pending.Pop(); ok {
		b.dispatch(ctx, j, w)
		return
	}
	w.state = cluster.StateIdle
	b.ready = append(b.ready, w.id)
}

// handleWorkerGone reacts to a backend disconnect.
func (b *Broker) handleWorkerGone(ctx context.Context, workerID string) {
	w, ok := b.workers[workerID]
	if !ok {
		return
	}
	j := w.job
	w.job = nil

	if b.backend.Connected(workerID) {
		// Same identity is back on a new connection which always starts
		// with READY. The request it held is lost.
		if j != nil {
			b.retry(ctx, j, fmt.Errorf("worker %s reconnected: %w", workerID, transport.ErrClosed))
			b.release(ctx, w)
		}
		return
	}

	b.evict(ctx, w, transport.ErrClosed)
	if j != nil {
		b.retry(ctx, j, fmt.Errorf("worker %s disconnected: %w", workerID, transport.ErrClosed))
	}
}

// ──────────────────────────────────────────────────
// Timeouts and eviction
// ──────────────────────────────────────────────────

func (b *Broker) checkTimeouts(ctx context.Context, now time.Time) {
	for _, w := range b.workers {
		j := w.job
		if j == nil || now.Sub(j.dispatchedAt) < b.cfg.WorkerTimeout {
			continue
		}
		w.job = nil
		b.counters.Timeouts++
		cause := &compute.WorkerTimeoutError{WorkerID: w.id, Timeout: b.cfg.WorkerTimeout}
		b.evict(ctx, w, cause)
		b.retry(ctx, j, cause)
	}
}

// evict removes w from rotation and marks it offline. A READY from the
// same identity registers it again.
func (b *Broker) evict(ctx context.Context, w *workerEntry, reason error) {
	delete(b.workers, w.id)
	b.removeReady(w.id)
	w.state = cluster.StateOffline

	b.logger.Warn("broker: worker evicted",
		slog.String("worker_id", w.id),
		slog.String("reason", reason.Error()),
	)
	b.writer.offline(w.id)
	b.extensions.EmitWorkerEvicted(ctx, w.id, reason)
}

// retry re-dispatches j to a ready worker it has not tried yet, or fails
// it with cause.
func (b *Broker) retry(ctx context.Context, j *job, cause error) {
	if j.attempts <= b.cfg.MaxRetries {
		if w := b.popReady(j.tried); w != nil {
			b.counters.Retries++
			b.logger.Info("broker: retrying request",
				slog.String("request_id", j.requestID),
				slog.String("worker_id", w.id),
				slog.Int("attempt", j.attempts+1),
			)
			b.dispatch(ctx, j, w)
			return
		}
	}
	b.fail(ctx, j, cause)
}

// popReady removes and returns the least recently ready worker whose id
// is not in exclude.
func (b *Broker) popReady(exclude []string) *workerEntry {
	for i, id := range b.ready {
		if slices.Contains(exclude, id) {
			continue
		}
		b.ready = slices.Delete(b.ready, i, i+1)
		return b.workers[id]
	}
	return nil
}

func (b *Broker) removeReady(workerID string) {
	if i := slices.Index(b.ready, workerID); i >= 0 {
		b.ready = slices.Delete(b.ready, i, i+1)
	}
}
