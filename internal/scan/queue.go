package scan

import (
	"context"
	"iter"
	"sync"

	"github.com/muurk/shellyscan/internal/probe"
)

// Queue is a bounded FIFO of probe targets shared by the workers of one
// session. Its capacity is the concurrency ceiling, not the scan size: a
// feeder refills it as workers take targets, and closes it once the plan is
// exhausted.
type Queue struct {
	ch        chan probe.Target
	closeOnce sync.Once
}

// NewQueue creates a queue holding at most capacity targets
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{ch: make(chan probe.Target, capacity)}
}

// Push adds a target, blocking while the queue is full.
// Push must not be called after Close.
func (q *Queue) Push(ctx context.Context, t probe.Target) error {
	select {
	case q.ch <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Fill pushes every target of seq then closes the queue. It stops early,
// still closing the queue, if ctx is cancelled.
func (q *Queue) Fill(ctx context.Context, seq iter.Seq[probe.Target]) error {
	defer q.Close()
	for t := range seq {
		if err := q.Push(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// Next returns the next target. It blocks until a target is available, and
// returns ok == false once the queue is closed and empty. Each target is
// returned to exactly one caller.
func (q *Queue) Next() (t probe.Target, ok bool) {
	t, ok = <-q.ch
	return t, ok
}

// Close signals that no further targets will be pushed
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.ch) })
}

// Cap returns the queue capacity
func (q *Queue) Cap() int {
	return cap(q.ch)
}

// Len returns the number of buffered targets
func (q *Queue) Len() int {
	return len(q.ch)
}
