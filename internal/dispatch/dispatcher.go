// Package dispatch fans a session's transcript out over the job queue and
// runs the worker pool that grades batches and folds results back into the
// session's status record.
package dispatch

import (
	"context"
	"fmt"

	"github.com/pitchlab/gradepipe/internal/batch"
	"github.com/pitchlab/gradepipe/internal/monitoring"
	"github.com/pitchlab/gradepipe/internal/queue"
	"github.com/pitchlab/gradepipe/internal/store"
)

// Dispatcher splits a transcript into batches and enqueues one grading job
// per batch.
type Dispatcher struct {
	queue     queue.Queue
	repo      *store.Repository
	logger    *monitoring.Logger
	stats     *monitoring.Metrics
	batchSize int
}

// NewDispatcher creates a dispatcher. A non-positive batchSize falls back to
// the splitter's default.
func NewDispatcher(q queue.Queue, repo *store.Repository, logger *monitoring.Logger, stats *monitoring.Metrics, batchSize int) *Dispatcher {
	return &Dispatcher{
		queue:     q,
		repo:      repo,
		logger:    logger,
		stats:     stats,
		batchSize: batchSize,
	}
}

// Dispatch partitions the session transcript, pins totalBatches on the
// status record, and enqueues one job per batch. TotalBatches never changes
// for the run after this call. Returns the batch count and how many jobs
// were actually enqueued; the two differ only when an enqueue fails partway.
func (d *Dispatcher) Dispatch(ctx context.Context, session *store.Session) (totalBatches, jobsQueued int, err error) {
	batches := batch.Split(session.Transcript, d.batchSize)
	if len(batches) == 0 {
		return 0, 0, nil
	}

	if err := d.repo.InitStatus(ctx, session.ID, len(batches)); err != nil {
		return 0, 0, fmt.Errorf("init grading status: %w", err)
	}

	for _, b := range batches {
		job := &queue.Job{
			SessionID:    session.ID,
			BatchIndex:   b.BatchIndex,
			TotalBatches: len(batches),
			Lines:        b.Lines,
			RubricID:     session.RubricID,
			PersonaName:  session.PersonaName,
			RepName:      session.RepName,
		}
		if err := d.queue.Enqueue(ctx, job); err != nil {
			return len(batches), jobsQueued, fmt.Errorf("enqueue batch %d: %w", b.BatchIndex, err)
		}
		jobsQueued++
		if d.stats != nil {
			d.stats.IncrementJobsEnqueued()
		}
	}

	if d.logger != nil {
		d.logger.Info("Session Dispatched",
			"session_id", session.ID,
			"total_batches", len(batches),
			"batch_size", d.batchSize,
		)
	}

	return len(batches), jobsQueued, nil
}
