package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueueRoundTrip(t *testing.T) {
	q := NewMemoryQueue(4)
	defer q.Close()
	ctx := context.Background()

	job := &Job{SessionID: "s1", BatchIndex: 2, TotalBatches: 5}
	require.NoError(t, q.Enqueue(ctx, job))

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, job, got)
}

func TestMemoryQueueDequeueHonorsContext(t *testing.T) {
	q := NewMemoryQueue(1)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryQueueClose(t *testing.T) {
	q := NewMemoryQueue(2)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, &Job{SessionID: "s1"}))
	require.NoError(t, q.Close())

	// Buffered jobs drain after close.
	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s1", job.SessionID)

	_, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrClosed)

	err = q.Enqueue(ctx, &Job{SessionID: "s2"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryQueueConcurrentConsumers(t *testing.T) {
	q := NewMemoryQueue(64)
	defer q.Close()
	ctx := context.Background()

	const jobs = 20
	for i := 0; i < jobs; i++ {
		require.NoError(t, q.Enqueue(ctx, &Job{SessionID: "s1", BatchIndex: i}))
	}

	var mu sync.Mutex
	seen := map[int]int{}
	var wg sync.WaitGroup

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				dequeueCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
				job, err := q.Dequeue(dequeueCtx)
				cancel()
				if err != nil {
					return
				}
				mu.Lock()
				seen[job.BatchIndex]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// Every job delivered exactly once within a single process.
	assert.Len(t, seen, jobs)
	for idx, count := range seen {
		assert.Equal(t, 1, count, "batch %d", idx)
	}
}
