package queue

import (
	"context"
	"log/slog"
	"sync"
)

// defaultCapacity bounds the in-memory queue buffer.
const defaultCapacity = 1024

// MemoryQueue is the in-process fallback used when Redis is not configured.
// Delivery semantics match the Redis backend within a single process.
type MemoryQueue struct {
	jobs      chan *Job
	closeOnce sync.Once
	done      chan struct{}
}

// NewMemoryQueue creates an in-memory queue. A non-positive capacity uses
// the default.
func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = defaultCapacity
	}

	slog.Warn("Redis unavailable, using in-memory job queue", "capacity", capacity)

	return &MemoryQueue{
		jobs: make(chan *Job, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue adds a job, blocking if the buffer is full.
func (q *MemoryQueue) Enqueue(ctx context.Context, job *Job) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	select {
	case q.jobs <- job:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue blocks until a job arrives, the context is canceled, or the queue
// closes.
func (q *MemoryQueue) Dequeue(ctx context.Context) (*Job, error) {
	select {
	case job := <-q.jobs:
		return job, nil
	case <-q.done:
		// Drain remaining buffered jobs before reporting closed.
		select {
		case job := <-q.jobs:
			return job, nil
		default:
			return nil, ErrClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close shuts the queue down; buffered jobs remain drainable.
func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}

// Depth returns the number of buffered jobs.
func (q *MemoryQueue) Depth() int {
	return len(q.jobs)
}
