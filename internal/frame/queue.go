package frame

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Next once the queue is closed and drained.
var ErrClosed = errors.New("frame queue closed")

// QueueStats reports how many frames were offered and how many were
// overwritten before a consumer took them.
type QueueStats struct {
	Offered uint64
	Dropped uint64
}

// Queue is a single-slot, latest-wins handoff from one producer to one
// consumer. Offer never blocks; an undrained frame is replaced.
type Queue struct {
	mu     sync.Mutex
	slot   *Frame
	closed bool

	notify chan struct{}
	done   chan struct{}

	offered atomic.Uint64
	dropped atomic.Uint64
}

func NewQueue() *Queue {
	return &Queue{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Offer stores f as the pending frame. It reports false if the queue is closed.
func (q *Queue) Offer(f *Frame) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	if q.slot != nil {
		q.dropped.Add(1)
	}
	q.slot = f
	q.mu.Unlock()

	q.offered.Add(1)
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// Latest takes the pending frame without blocking, or returns nil.
func (q *Queue) Latest() *Frame {
	q.mu.Lock()
	defer q.mu.Unlock()
	f := q.slot
	q.slot = nil
	return f
}

// Next blocks until a frame is pending, ctx is done, or the queue is closed.
func (q *Queue) Next(ctx context.Context) (*Frame, error) {
	for {
		q.mu.Lock()
		f := q.slot
		q.slot = nil
		closed := q.closed
		q.mu.Unlock()

		if f != nil {
			return f, nil
		}
		if closed {
			return nil, ErrClosed
		}

		select {
		case <-q.notify:
		case <-q.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close wakes every waiter. A pending frame can still be taken.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

// Done is closed when the queue is closed.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

func (q *Queue) Stats() QueueStats {
	return QueueStats{
		Offered: q.offered.Load(),
		Dropped: q.dropped.Load(),
	}
}
