// Package dispatch runs fire-and-forget work off the caller's goroutine
// while keeping the order in which it was submitted.
package dispatch

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is reported by Ops submitted after Close.
var ErrClosed = errors.New("dispatch queue closed")

// Op is the eventual result of a submitted task. Callers that do not care
// about the outcome can drop it.
type Op struct {
	done chan struct{}
	err  error
}

func newOp() *Op {
	return &Op{done: make(chan struct{})}
}

// Resolved returns an Op that is already finished with err.
func Resolved(err error) *Op {
	op := newOp()
	op.resolve(err)
	return op
}

func (o *Op) resolve(err error) {
	o.err = err
	close(o.done)
}

// Done is closed once the task has run.
func (o *Op) Done() <-chan struct{} { return o.done }

// Err returns the task error. It is only meaningful after Done is closed.
func (o *Op) Err() error {
	select {
	case <-o.done:
		return o.err
	default:
		return nil
	}
}

// Wait blocks until the task ran or ctx is done.
func (o *Op) Wait(ctx context.Context) error {
	select {
	case <-o.done:
		return o.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type task struct {
	fn func(ctx context.Context) error
	op *Op
}

// Queue is an unbounded FIFO worked by a single goroutine. Do never blocks.
type Queue struct {
	mu      sync.Mutex
	pending []task
	closed  bool

	wake    chan struct{}
	stopped chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewQueue starts the worker goroutine. Tasks receive a context derived from
// parent that is cancelled when Close gives up waiting.
func NewQueue(parent context.Context) *Queue {
	ctx, cancel := context.WithCancel(parent)
	q := &Queue{
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	go q.run()
	return q
}

// Do appends fn to the queue and returns its Op.
func (q *Queue) Do(fn func(ctx context.Context) error) *Op {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return Resolved(ErrClosed)
	}
	op := newOp()
	q.pending = append(q.pending, task{fn: fn, op: op})
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return op
}

// Close stops accepting work and waits for the pending tasks to finish. When
// ctx expires first, running tasks see their context cancelled and the
// remaining ones resolve with ErrClosed.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.stopped
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}

	select {
	case <-q.stopped:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-q.stopped
		return ctx.Err()
	}
}

func (q *Queue) run() {
	defer close(q.stopped)
	for {
		q.mu.Lock()
		batch := q.pending
		q.pending = nil
		closed := q.closed
		q.mu.Unlock()

		for _, t := range batch {
			if q.ctx.Err() != nil {
				t.op.resolve(ErrClosed)
				continue
			}
			t.op.resolve(t.fn(q.ctx))
		}

		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		select {
		case <-q.wake:
		case <-q.ctx.Done():
			q.drainCancelled()
			return
		}
	}
}

func (q *Queue) drainCancelled() {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.closed = true
	q.mu.Unlock()
	for _, t := range batch {
		t.op.resolve(ErrClosed)
	}
}
