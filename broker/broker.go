package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	compute "github.com/zhengren252/ntn-sub004"
	"github.com/zhengren252/ntn-sub004/cluster"
	"github.com/zhengren252/ntn-sub004/ext"
	"github.com/zhengren252/ntn-sub004/protocol"
	"github.com/zhengren252/ntn-sub004/queue"
	"github.com/zhengren252/ntn-sub004/transport"
)

// Stats is a point-in-time view of the broker.
type Stats struct {
	Workers      int `json:"workers"`
	ReadyWorkers int `json:"ready_workers"`
	InFlight     int `json:"in_flight"`
	Pending      int `json:"pending"`

	Received   int64 `json:"received"`
	Dispatched int64 `json:"dispatched"`
	Completed  int64 `json:"completed"`
	Rejected   int64 `json:"rejected"`
	Timeouts   int64 `json:"timeouts"`
	Retries    int64 `json:"retries"`
	Dropped    int64 `json:"dropped"`
}

// Broker is the load balancer between clients and workers.
type Broker struct {
	cfg        Config
	codec      *protocol.MessageHandler
	status     cluster.Store
	extensions *ext.Registry
	admission  *queue.Admission
	logger     *slog.Logger

	statsReq chan chan Stats

	mu       sync.Mutex
	frontend *transport.Router
	backend  *transport.Router
	writer   *statusWriter
	cancel   context.CancelFunc
	loopDone chan struct{}
	running  bool

	// Owned by the loop goroutine.
	workers  map[string]*workerEntry
	ready    []string
	pending  *queue.Pending[*job]
	counters Stats
}

// New creates a broker. Call Start to bind and run it.
func New(cfg Config, opts ...Option) *Broker {
	cfg.defaults()
	b := &Broker{
		cfg:      cfg,
		codec:    protocol.NewMessageHandler(protocol.JSONCodec{}),
		logger:   slog.Default(),
		statsReq: make(chan chan Stats),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.admission = queue.NewAdmission(cfg.Admission)
	return b
}

// FrontendURL returns the URL clients dial, or "" before Start.
func (b *Broker) FrontendURL() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frontend == nil {
		return ""
	}
	return b.frontend.URL()
}

// BackendURL returns the URL workers dial, or "" before Start.
func (b *Broker) BackendURL() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.backend == nil {
		return ""
	}
	return b.backend.URL()
}

// Start binds both endpoints and starts the event loop. It returns once
// the endpoints are listening.
func (b *Broker) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return compute.ErrAlreadyStarted
	}

	frontend := transport.NewRouter("frontend", b.cfg.FrontendAddr, transport.WithLogger(b.logger))
	if err := frontend.Listen(ctx); err != nil {
		return fmt.Errorf("compute/broker: start: %w", err)
	}
	backend := transport.NewRouter("backend", b.cfg.BackendAddr, transport.WithLogger(b.logger))
	if err := backend.Listen(ctx); err != nil {
		_ = frontend.Close()
		return fmt.Errorf("compute/broker: start: %w", err)
	}

	b.frontend = frontend
	b.backend = backend
	b.workers = make(map[string]*workerEntry)
	b.ready = nil
	b.pending = queue.NewPending[*job](b.cfg.MaxPending)
	b.counters = Stats{}
	b.writer = newStatusWriter(b.status, b.logger, 256)

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b.cancel = cancel
	b.loopDone = make(chan struct{})
	b.running = true
	go b.loop(loopCtx)

	b.logger.Info("broker started",
		slog.String("frontend", frontend.Addr()),
		slog.String("backend", backend.Addr()),
		slog.Int("max_pending", b.cfg.MaxPending),
		slog.Duration("worker_timeout", b.cfg.WorkerTimeout),
	)
	return nil
}

// Stop answers every waiting and in-flight request with a shutdown error,
// closes both endpoints and flushes pending status writes.
func (b *Broker) Stop(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return nil
	}
	b.running = false
	b.cancel()

	var errs []error
	select {
	case <-b.loopDone:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("compute/broker: stop: %w", ctx.Err()))
	}
	if err := b.frontend.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := b.backend.Close(); err != nil {
		errs = append(errs, err)
	}
	// An unfinished loop can still evict workers; the writer drops those
	// updates once closed.
	b.writer.close()

	b.logger.Info("broker stopped")
	return errors.Join(errs...)
}

// Stats returns a snapshot taken by the event loop.
func (b *Broker) Stats(ctx context.Context) (Stats, error) {
	b.mu.Lock()
	running, loopDone := b.running, b.loopDone
	b.mu.Unlock()
	if !running {
		return Stats{}, compute.ErrNotStarted
	}

	reply := make(chan Stats, 1)
	select {
	case b.statsReq <- reply:
	case <-loopDone:
		return Stats{}, compute.ErrNotStarted
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}

func (b *Broker) loop(ctx context.Context) {
	defer close(b.loopDone)

	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.drain(ctx)
			return

		case msg := <-b.frontend.Inbound():
			b.handleClient(ctx, msg)

		case msg := <-b.backend.Inbound():
			b.handleWorker(ctx, msg)

		case ev := <-b.backend.Events():
			if !ev.Connected {
				b.handleWorkerGone(ctx, ev.Identity)
			}

		case ev := <-b.frontend.Events():
			if !ev.Connected {
				b.admission.Forget(ev.Identity)
			}

		case now := <-ticker.C:
			b.checkTimeouts(ctx, now)

		case reply := <-b.statsReq:
			reply <- b.snapshot()
		}
	}
}

func (b *Broker) snapshot() Stats {
	s := b.counters
	s.Workers = len(b.workers)
	s.ReadyWorkers = len(b.ready)
	s.Pending = b.pending.Len()
	for _, w := range b.workers {
		if w.job != nil {
			s.InFlight++
		}
	}
	return s
}

// drain fails everything still owned by the broker.
func (b *Broker) drain(ctx context.Context) {
	for _, j := range b.pending.Drain() {
		b.fail(ctx, j, compute.ErrShuttingDown)
	}
	for _, w := range b.workers {
		if j := w.job; j != nil {
			w.job = nil
			b.fail(ctx, j, compute.ErrShuttingDown)
		}
	}
}
