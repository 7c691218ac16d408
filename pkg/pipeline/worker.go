package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/adcstream/pkg/queue"
)

// DefaultPopTimeout bounds how long the worker waits on an empty queue
// before re-checking for cancellation.
const DefaultPopTimeout = 100 * time.Millisecond

// Run pops batches from q and processes them until q is closed and drained
// or ctx is cancelled. A closed queue is a normal exit and returns nil.
func (p *Pipeline) Run(ctx context.Context, q *queue.Bounded[Batch], popTimeout time.Duration) error {
	if popTimeout <= 0 {
		popTimeout = DefaultPopTimeout
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		b, err := q.Pop(popTimeout)
		switch {
		case errors.Is(err, queue.ErrTimeout):
			continue
		case errors.Is(err, queue.ErrClosed):
			return nil
		case err != nil:
			return err
		}
		if _, err := p.Process(ctx, b); err != nil {
			return err
		}
	}
}
