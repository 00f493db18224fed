// Package queue provides the at-least-once job queue the batch dispatcher
// fans out over: a Redis list when Redis is configured, with an in-memory
// fallback so a single-node deployment still works without it. Jobs carry no
// ordering guarantee, even within a session.
package queue

import (
	"context"
	"errors"

	"github.com/pitchlab/gradepipe/internal/types"
)

// ErrClosed is returned by operations on a closed queue.
var ErrClosed = errors.New("queue closed")

// Job is the payload for grading one batch of one session. Jobs are
// independent and may execute in any order on any worker, possibly more
// than once, so consumers must be idempotent per (SessionID, BatchIndex).
type Job struct {
	SessionID    string       `json:"session_id"`
	BatchIndex   int          `json:"batch_index"`
	TotalBatches int          `json:"total_batches"`
	Lines        []types.Turn `json:"lines"`
	RubricID     string       `json:"rubric_id"`
	PersonaName  string       `json:"persona_name"`
	RepName      string       `json:"rep_name,omitempty"`
	Attempt      int          `json:"attempt"`
}

// Queue is an at-least-once delivery job queue.
type Queue interface {
	// Enqueue adds a job for delivery to any worker.
	Enqueue(ctx context.Context, job *Job) error

	// Dequeue blocks until a job is available, the context is canceled, or
	// the queue is closed.
	Dequeue(ctx context.Context) (*Job, error)

	// Close releases queue resources; blocked Dequeue calls return ErrClosed.
	Close() error
}
