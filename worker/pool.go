package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zhengren252/ntn-sub004/id"
)

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolSize sets the number of workers.
func WithPoolSize(n int) PoolOption {
	return func(p *Pool) { p.size = n }
}

// WithWorkerOptions sets options applied to every worker in the pool.
func WithWorkerOptions(opts ...Option) PoolOption {
	return func(p *Pool) { p.workerOpts = append(p.workerOpts, opts...) }
}

// WithWorkerIDs fixes the worker identities. The pool runs one worker per
// id and ignores WithPoolSize.
func WithWorkerIDs(ids ...string) PoolOption {
	return func(p *Pool) {
		p.ids = ids
		p.size = len(ids)
	}
}

// Pool runs N workers in-process, each with its own broker connection.
type Pool struct {
	url        string
	executor   *Executor
	size       int
	ids        []string
	workerOpts []Option
	logger     *slog.Logger

	mu      sync.Mutex
	workers []*Worker
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewPool creates a pool of workers connecting to url.
func NewPool(url string, executor *Executor, logger *slog.Logger, opts ...PoolOption) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		url:      url,
		executor: executor,
		size:     4,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Workers returns the workers of a started pool.
func (p *Pool) Workers() []*Worker {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Worker, len(p.workers))
	copy(out, p.workers)
	return out
}

// Start launches the workers. It returns immediately.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	if p.size < 1 {
		return fmt.Errorf("compute/worker: pool size must be positive, got %d", p.size)
	}
	p.running = true

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	p.workers = make([]*Worker, 0, p.size)

	p.logger.Info("worker pool starting",
		slog.Int("size", p.size),
		slog.String("broker", p.url),
	)

	for i := range p.size {
		workerID := id.NewWorkerID().String()
		if i < len(p.ids) {
			workerID = p.ids[i]
		}
		opts := append([]Option{
			WithID(workerID),
			WithLogger(p.logger),
		}, p.workerOpts...)
		w := New(p.url, p.executor, opts...)
		p.workers = append(p.workers, w)

		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			_ = w.Run(runCtx)
		}()
	}
	return nil
}

// Stop signals all workers to stop and waits for in-flight requests to
// finish, or for ctx to expire.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	cancel := p.cancel
	p.mu.Unlock()

	p.logger.Info("worker pool stopping")
	cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
		return nil
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out")
		return ctx.Err()
	}
}
