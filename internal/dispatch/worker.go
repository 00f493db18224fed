package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pitchlab/gradepipe/internal/monitoring"
	"github.com/pitchlab/gradepipe/internal/queue"
	"github.com/pitchlab/gradepipe/internal/resilience"
	"github.com/pitchlab/gradepipe/internal/rubric"
	"github.com/pitchlab/gradepipe/internal/store"
)

// DefaultWorkerCount is the pool size when the caller doesn't configure one.
const DefaultWorkerCount = 4

// maxAttempts bounds queue redeliveries per job. A batch that exhausts its
// attempts is abandoned and leaves the session in processing.
const maxAttempts = 3

// BatchStore is the slice of the record store a worker needs: the
// conditional result insert and the atomic counter increment.
type BatchStore interface {
	InsertBatchResultIfAbsent(ctx context.Context, sessionID string, batchIndex int, lineGradesJSON string) (bool, error)
	CompleteBatch(ctx context.Context, sessionID string) (*store.GradingStatus, bool, error)
}

// Pool consumes grading jobs from the queue. Jobs may arrive in any order
// and more than once; handling is idempotent per (session, batch index).
type Pool struct {
	queue   queue.Queue
	repo    BatchStore
	logger  *monitoring.Logger
	stats   *monitoring.Metrics
	workers int
}

// NewPool creates a worker pool of the given size.
func NewPool(q queue.Queue, repo BatchStore, logger *monitoring.Logger, stats *monitoring.Metrics, workers int) *Pool {
	if workers <= 0 {
		workers = DefaultWorkerCount
	}
	return &Pool{
		queue:   q,
		repo:    repo,
		logger:  logger,
		stats:   stats,
		workers: workers,
	}
}

// Run starts the workers and blocks until the context is canceled or the
// queue is closed.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		id := i
		g.Go(func() error {
			return p.runWorker(ctx, id)
		})
	}
	return g.Wait()
}

func (p *Pool) runWorker(ctx context.Context, id int) error {
	for {
		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			if p.logger != nil {
				p.logger.Error("Dequeue failed", "worker", id, "error", err.Error())
			}
			continue
		}

		p.handle(ctx, job)
	}
}

// handle grades one batch: score lines, persist the partial result if this
// batch hasn't run before, then bump the session counter. The conditional
// insert is what makes redelivery safe; a duplicate skips the increment.
func (p *Pool) handle(ctx context.Context, job *queue.Job) {
	grades := rubric.ScoreLines(job.Lines)

	payload, err := json.Marshal(grades)
	if err != nil {
		p.retry(ctx, job, fmt.Errorf("marshal line grades: %w", err))
		return
	}

	inserted, err := p.repo.InsertBatchResultIfAbsent(ctx, job.SessionID, job.BatchIndex, string(payload))
	if err != nil {
		p.retry(ctx, job, fmt.Errorf("persist batch result: %w", err))
		return
	}
	if !inserted {
		// Redelivery of a batch that already ran. The counter was already
		// bumped for this batch index, so stop here.
		if p.stats != nil {
			p.stats.IncrementJobsDuplicated()
		}
		if p.logger != nil {
			p.logger.Info("Duplicate batch delivery skipped",
				"session_id", job.SessionID,
				"batch_index", job.BatchIndex,
				"attempt", job.Attempt,
			)
		}
		return
	}

	status, becameComplete, err := p.completeBatch(ctx, job.SessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Parent session was deleted mid-run. Drop the work.
			if p.logger != nil {
				p.logger.Warn("Session gone, dropping batch result",
					"session_id", job.SessionID,
					"batch_index", job.BatchIndex,
				)
			}
			return
		}
		if p.logger != nil {
			p.logger.Error("Batch counter update failed",
				"session_id", job.SessionID,
				"batch_index", job.BatchIndex,
				"error", err.Error(),
			)
		}
		return
	}

	if p.stats != nil {
		p.stats.IncrementJobsCompleted()
	}
	if p.logger != nil {
		p.logger.BatchLogger(job.SessionID, job.BatchIndex, status.CompletedBatches, status.TotalBatches, job.Attempt)
	}

	if becameComplete && p.logger != nil {
		p.logger.Info("Session Grading Complete",
			"session_id", job.SessionID,
			"total_batches", status.TotalBatches,
		)
	}
}

// completeBatch increments the session counter, retrying transient store
// failures in place. The batch result row is already persisted at this
// point, so a re-enqueued copy of the job would see it and skip the
// increment entirely; retrying here is the only way to recover it.
func (p *Pool) completeBatch(ctx context.Context, sessionID string) (*store.GradingStatus, bool, error) {
	var (
		status         *store.GradingStatus
		becameComplete bool
	)

	config := resilience.RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  50 * time.Millisecond,
		MaxDelay:      time.Second,
		BackoffFactor: 2.0,
		Retryable: func(err error) bool {
			return !errors.Is(err, store.ErrNotFound)
		},
	}

	err := resilience.Retry(ctx, config, func() error {
		var cbErr error
		status, becameComplete, cbErr = p.repo.CompleteBatch(ctx, sessionID)
		return cbErr
	})

	return status, becameComplete, err
}

// retry re-enqueues a failed job with its attempt counter bumped, up to
// maxAttempts. An abandoned batch leaves the session in processing, which
// is visible on the status endpoint.
func (p *Pool) retry(ctx context.Context, job *queue.Job, cause error) {
	if job.Attempt+1 >= maxAttempts {
		if p.logger != nil {
			p.logger.Error("Batch abandoned after max attempts",
				"session_id", job.SessionID,
				"batch_index", job.BatchIndex,
				"attempts", job.Attempt+1,
				"error", cause.Error(),
			)
		}
		return
	}

	job.Attempt++
	if p.stats != nil {
		p.stats.IncrementJobsRetried()
	}
	if p.logger != nil {
		p.logger.Warn("Retrying batch",
			"session_id", job.SessionID,
			"batch_index", job.BatchIndex,
			"attempt", job.Attempt,
			"error", cause.Error(),
		)
	}

	if err := p.queue.Enqueue(ctx, job); err != nil && p.logger != nil {
		p.logger.Error("Re-enqueue failed",
			"session_id", job.SessionID,
			"batch_index", job.BatchIndex,
			"error", err.Error(),
		)
	}
}
