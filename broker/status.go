package broker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/zhengren252/ntn-sub004/cluster"
)

const statusWriteTimeout = 5 * time.Second

// statusWriter applies offline transitions in order on its own goroutine
// so the event loop never waits on persistence.
type statusWriter struct {
	store  cluster.Store
	logger *slog.Logger
	ch     chan string
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

func newStatusWriter(store cluster.Store, logger *slog.Logger, size int) *statusWriter {
	if store == nil {
		return nil
	}
	w := &statusWriter{
		store:  store,
		logger: logger,
		ch:     make(chan string, size),
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *statusWriter) run() {
	defer close(w.done)
	for workerID := range w.ch {
		ctx, cancel := context.WithTimeout(context.Background(), statusWriteTimeout)
		err := w.store.SetWorkerState(ctx, workerID, cluster.StateOffline)
		cancel()
		if err != nil {
			w.logger.Error("broker: mark worker offline failed",
				slog.String("worker_id", workerID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// offline queues a write. It never blocks; when the buffer is full or the
// writer is closed the write is dropped and logged.
func (w *statusWriter) offline(workerID string) {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		w.logger.Debug("broker: status writer closed, dropping offline update",
			slog.String("worker_id", workerID),
		)
		return
	}
	select {
	case w.ch <- workerID:
	default:
		w.logger.Warn("broker: status writer full, dropping offline update",
			slog.String("worker_id", workerID),
		)
	}
}

// close flushes queued writes and stops the goroutine.
func (w *statusWriter) close() {
	if w == nil {
		return
	}
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.ch)
	w.mu.Unlock()
	<-w.done
}
