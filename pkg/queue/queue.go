// Package queue provides the bounded hand-off between the consumer
// transport and the pipeline worker.
package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrTimeout is returned by Pop when nothing arrived in time.
	ErrTimeout = errors.New("queue: pop timed out")
	// ErrClosed is returned by Push after Close, and by Pop once the queue
	// is closed and drained.
	ErrClosed = errors.New("queue: closed")
)

// DefaultCapacity bounds the number of queued batches.
const DefaultCapacity = 8

// Stats is a point-in-time view of queue activity.
type Stats struct {
	Pushed  uint64
	Popped  uint64
	Blocked uint64 // pushes that had to wait for room
	Depth   int
	Cap     int
}

// Option configures a Bounded queue.
type Option func(*options)

type options struct {
	onDepth func(int)
}

// WithDepthObserver calls fn with the queue depth after every push and pop.
func WithDepthObserver(fn func(depth int)) Option {
	return func(o *options) { o.onDepth = fn }
}

// Bounded is a FIFO with a fixed capacity. Push blocks while the queue is
// full, Pop waits at most a timeout while it is empty. It is meant for one
// pushing and one popping goroutine; Close must be called by the pusher.
type Bounded[T any] struct {
	items     chan T
	done      chan struct{}
	closeOnce sync.Once
	opts      options

	pushed  atomic.Uint64
	popped  atomic.Uint64
	blocked atomic.Uint64
}

// New returns a queue holding at most capacity items. A capacity below one
// uses DefaultCapacity.
func New[T any](capacity int, opts ...Option) *Bounded[T] {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	q := &Bounded[T]{
		items: make(chan T, capacity),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(&q.opts)
	}
	return q
}

// Push enqueues v, waiting for room while the queue is full. It returns
// ctx.Err() if ctx ends first and ErrClosed if the queue was closed.
func (q *Bounded[T]) Push(ctx context.Context, v T) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	select {
	case q.items <- v:
		q.afterPush()
		return nil
	default:
	}

	q.blocked.Add(1)
	select {
	case q.items <- v:
		q.afterPush()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return ErrClosed
	}
}

func (q *Bounded[T]) afterPush() {
	q.pushed.Add(1)
	q.observe()
}

// Pop dequeues the oldest item. It waits at most timeout while the queue is
// empty and returns ErrTimeout when nothing arrives. Items pushed before
// Close are still delivered; after that Pop returns ErrClosed.
func (q *Bounded[T]) Pop(timeout time.Duration) (T, error) {
	var zero T
	select {
	case v := <-q.items:
		q.afterPop()
		return v, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case v := <-q.items:
		q.afterPop()
		return v, nil
	case <-q.done:
		select {
		case v := <-q.items:
			q.afterPop()
			return v, nil
		default:
			return zero, ErrClosed
		}
	case <-timer.C:
		return zero, ErrTimeout
	}
}

func (q *Bounded[T]) afterPop() {
	q.popped.Add(1)
	q.observe()
}

func (q *Bounded[T]) observe() {
	if q.opts.onDepth != nil {
		q.opts.onDepth(len(q.items))
	}
}

// Close marks the queue closed. It is safe to call more than once.
func (q *Bounded[T]) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}

// Len returns the number of queued items.
func (q *Bounded[T]) Len() int {
	return len(q.items)
}

func (q *Bounded[T]) Stats() Stats {
	return Stats{
		Pushed:  q.pushed.Load(),
		Popped:  q.popped.Load(),
		Blocked: q.blocked.Load(),
		Depth:   len(q.items),
		Cap:     cap(q.items),
	}
}
