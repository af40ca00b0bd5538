package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zhengren252/ntn-sub004/backoff"
	"github.com/zhengren252/ntn-sub004/cluster"
	"github.com/zhengren252/ntn-sub004/id"
	"github.com/zhengren252/ntn-sub004/protocol"
	"github.com/zhengren252/ntn-sub004/transport"
)

// Option configures a Worker.
type Option func(*Worker)

// WithID sets the worker identity presented to the broker.
func WithID(workerID string) Option {
	return func(w *Worker) { w.id = workerID }
}

// WithPollInterval sets how long one receive waits before the loop
// re-checks for shutdown.
func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) { w.pollInterval = d }
}

// WithBackoff sets the reconnect strategy.
func WithBackoff(s backoff.Strategy) Option {
	return func(w *Worker) { w.backoff = s }
}

// WithStatusStore sets where worker status rows are written. It defaults
// to the executor's store.
func WithStatusStore(s cluster.Store) Option {
	return func(w *Worker) { w.status = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

// Worker is one broker connection processing one request at a time.
type Worker struct {
	id           string
	url          string
	executor     *Executor
	status       cluster.Store
	pollInterval time.Duration
	backoff      backoff.Strategy
	logger       *slog.Logger
	sampler      *sampler

	processed atomic.Int64
	state     atomic.Value // cluster.State
	statusMu  sync.Mutex
}

// New creates a worker that connects to the broker backend at url.
func New(url string, executor *Executor, opts ...Option) *Worker {
	w := &Worker{
		id:           id.NewWorkerID().String(),
		url:          url,
		executor:     executor,
		pollInterval: time.Second,
		backoff:      backoff.DefaultStrategy(),
		logger:       slog.Default(),
		sampler:      newSampler(),
	}
	if executor != nil && executor.store != nil {
		w.status = executor.store
	}
	for _, opt := range opts {
		opt(w)
	}
	w.state.Store(cluster.StateOffline)
	return w
}

// ID returns the worker identity.
func (w *Worker) ID() string { return w.id }

// Processed returns how many requests reached a handler.
func (w *Worker) Processed() int64 { return w.processed.Load() }

// State returns the current worker state.
func (w *Worker) State() cluster.State { return w.state.Load().(cluster.State) }

// Run connects, serves and reconnects until ctx is cancelled. The worker
// is marked offline on return.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker starting", slog.String("worker_id", w.id), slog.String("broker", w.url))
	defer func() {
		w.setState(context.WithoutCancel(ctx), cluster.StateOffline)
		w.logger.Info("worker stopped",
			slog.String("worker_id", w.id),
			slog.Int64("processed_requests", w.processed.Load()),
		)
	}()

	attempt := 0
	for {
		d, err := transport.Dial(ctx, w.url, w.id, transport.WithDealerLogger(w.logger))
		if err == nil {
			attempt = 0
			err = w.serve(ctx, d)
			_ = d.Close()
		}
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = transport.ErrClosed
		}

		attempt++
		w.logger.Warn("broker connection lost, reconnecting",
			slog.String("worker_id", w.id),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		w.setState(ctx, cluster.StateOffline)
		if backoff.Wait(ctx, w.backoff, attempt) != nil {
			return nil
		}
	}
}

// serve runs the READY/receive/reply loop on one connection. It returns
// when the connection fails or ctx is done.
func (w *Worker) serve(ctx context.Context, d *transport.Dealer) error {
	if err := d.Send(protocol.Ready); err != nil {
		return err
	}
	w.pushStatus(ctx, cluster.StateIdle)

	for {
		msg, err := w.recv(ctx, d)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				continue
			}
			return err
		}
		if len(msg) < 2 {
			w.logger.Warn("dropping malformed dispatch",
				slog.String("worker_id", w.id),
				slog.Int("frames", len(msg)),
			)
			if err := d.Send(protocol.Ready); err != nil {
				return err
			}
			continue
		}

		clientID := string(msg[0])
		reply := w.handle(context.WithoutCancel(ctx), clientID, msg[len(msg)-1])
		if err := d.Send(msg[0], reply); err != nil {
			return err
		}
		if err := d.Send(protocol.Ready); err != nil {
			return err
		}
	}
}

func (w *Worker) recv(ctx context.Context, d *transport.Dealer) (transport.Message, error) {
	rctx, cancel := context.WithTimeout(ctx, w.pollInterval)
	defer cancel()
	return d.Recv(rctx)
}

// handle executes one payload and reports status. It returns the encoded
// response.
func (w *Worker) handle(ctx context.Context, clientID string, payload []byte) []byte {
	w.setState(ctx, cluster.StateBusy)

	res := w.executor.Execute(ctx, w.id, clientID, payload)
	if res.Counted {
		w.processed.Add(1)
	}
	w.pushStatus(ctx, cluster.StateIdle)

	return res.Payload
}

// setState records state locally and writes only the status column.
func (w *Worker) setState(ctx context.Context, state cluster.State) {
	w.state.Store(state)
	if w.status == nil {
		return
	}
	if err := w.status.SetWorkerState(ctx, w.id, state); err != nil {
		w.logger.Warn("worker state write failed",
			slog.String("worker_id", w.id),
			slog.String("state", string(state)),
			slog.String("error", err.Error()),
		)
	}
}

// pushStatus samples resource usage and upserts the full status row.
func (w *Worker) pushStatus(ctx context.Context, state cluster.State) {
	w.state.Store(state)
	if w.status == nil {
		return
	}
	w.statusMu.Lock()
	defer w.statusMu.Unlock()

	cpu, mem := w.sampler.sample()
	err := w.status.UpdateWorkerStatus(ctx, &cluster.WorkerStatus{
		WorkerID:          w.id,
		Status:            state,
		ProcessedRequests: w.processed.Load(),
		CPUUsage:          cpu,
		MemoryUsage:       mem,
		UpdatedAt:         time.Now().UTC(),
	})
	if err != nil {
		w.logger.Warn("worker status write failed",
			slog.String("worker_id", w.id),
			slog.String("error", err.Error()),
		)
	}
}
