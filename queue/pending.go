package queue

import compute "github.com/zhengren252/ntn-sub004"

// Pending is a bounded FIFO queue. It is not safe for concurrent use; the
// broker owns it from a single goroutine.
type Pending[T any] struct {
	buf  []T
	head int
	size int
}

// NewPending creates a queue holding at most capacity items. A capacity
// below one is raised to one.
func NewPending[T any](capacity int) *Pending[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Pending[T]{buf: make([]T, capacity)}
}

// Push appends v, or returns compute.ErrQueueFull.
func (q *Pending[T]) Push(v T) error {
	if q.size == len(q.buf) {
		return compute.ErrQueueFull
	}
	q.buf[(q.head+q.size)%len(q.buf)] = v
	q.size++
	return nil
}

// PushFront puts v at the head so it is popped next. Used for retries.
// It returns compute.ErrQueueFull when there is no room.
func (q *Pending[T]) PushFront(v T) error {
	if q.size == len(q.buf) {
		return compute.ErrQueueFull
	}
	q.head = (q.head - 1 + len(q.buf)) % len(q.buf)
	q.buf[q.head] = v
	q.size++
	return nil
}

// Pop removes and returns the oldest item.
func (q *Pending[T]) Pop() (T, bool) {
	var zero T
	if q.size == 0 {
		return zero, false
	}
	v := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	return v, true
}

// Drain removes and returns every queued item in order.
func (q *Pending[T]) Drain() []T {
	out := make([]T, 0, q.size)
	for {
		v, ok := q.Pop()
		if !ok {
			return out
		}
		out = append(out, v)
	}
}

// Len returns the number of queued items.
func (q *Pending[T]) Len() int { return q.size }

// Cap returns the capacity.
func (q *Pending[T]) Cap() int { return len(q.buf) }

// Full reports whether Push would fail.
func (q *Pending[T]) Full() bool { return q.size == len(q.buf) }
