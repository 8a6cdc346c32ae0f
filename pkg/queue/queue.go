// Package queue provides a bounded, strictly serialized task runner. Tasks
// begin in enqueue order, one at a time; a failing task never breaks the
// chain for the tasks behind it.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrFull reports that the queue rejected a task at its capacity limit.
var ErrFull = errors.New("translate queue full")

// FullError carries the capacity that was in force when a task was rejected.
type FullError struct {
	Capacity int
}

func (e *FullError) Error() string {
	return fmt.Sprintf("translate queue full (max=%d)", e.Capacity)
}

func (e *FullError) Unwrap() error { return ErrFull }

// Task is one unit of deferred work.
type Task func(ctx context.Context) error

// Handle is the caller-owned outcome of an enqueued task.
type Handle struct {
	done chan struct{}
	err  error
}

// Done is closed once the task has settled.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the task outcome. Only valid after Done is closed.
func (h *Handle) Err() error { return h.err }

// Wait blocks until the task settles or ctx is canceled. The task keeps
// running in the chain even if the waiter gives up.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Queue serializes tasks onto a single lane.
type Queue struct {
	mu       sync.Mutex
	capacity int
	depth    int
	tail     chan struct{} // settles when the most recently enqueued task does
}

// New creates a queue. capacity <= 0 means unbounded.
func New(capacity int) *Queue {
	tail := make(chan struct{})
	close(tail)
	return &Queue{capacity: capacity, tail: tail}
}

// SetCapacity replaces the capacity limit at runtime. Negative values are
// ignored, keeping the previous capacity.
func (q *Queue) SetCapacity(capacity int) {
	if capacity < 0 {
		return
	}
	q.mu.Lock()
	q.capacity = capacity
	q.mu.Unlock()
}

// Depth reports the number of tasks enqueued but not yet settled.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.depth
}

// Enqueue appends a task to the serialization chain. The task starts only
// after every previously enqueued task has settled, success or failure. When
// the queue is at capacity the task is rejected immediately and never runs.
func (q *Queue) Enqueue(ctx context.Context, task Task) (*Handle, error) {
	q.mu.Lock()
	if q.capacity > 0 && q.depth >= q.capacity {
		capacity := q.capacity
		q.mu.Unlock()
		return nil, &FullError{Capacity: capacity}
	}
	q.depth++
	prev := q.tail
	done := make(chan struct{})
	q.tail = done
	q.mu.Unlock()

	handle := &Handle{done: done}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				handle.err = fmt.Errorf("task panic: %v", r)
			}
			q.mu.Lock()
			q.depth--
			q.mu.Unlock()
			close(done)
		}()

		<-prev
		handle.err = task(ctx)
	}()

	return handle, nil
}

// Drain waits for all currently enqueued tasks to settle or for ctx to
// expire. Tasks enqueued after Drain is called are not waited for.
func (q *Queue) Drain(ctx context.Context) error {
	q.mu.Lock()
	tail := q.tail
	q.mu.Unlock()

	select {
	case <-tail:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
