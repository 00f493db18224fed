package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitchlab/gradepipe/internal/types"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db)
}

func TestSessionRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	session := NewSession("Skeptical Sarah", "Jordan", "sales-core", types.Transcript{
		{Speaker: types.SpeakerRep, Text: "Hello"},
		{Speaker: types.SpeakerCustomer, Text: "Hi"},
	})
	require.NoError(t, repo.CreateSession(ctx, session))

	loaded, err := repo.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, loaded.ID)
	assert.Equal(t, "Skeptical Sarah", loaded.PersonaName)
	assert.Equal(t, session.Transcript, loaded.Transcript)
}

func TestGetSessionNotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveSessionGradeUpserts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	grade := &SessionGrade{
		SessionID:       "s1",
		Total:           50,
		Source:          "deterministic",
		Axes:            map[string]int{"safety": 3},
		Notes:           []string{"note one"},
		MetricsJSON:     "{}",
		Outcome:         "FAILURE",
		DurationSeconds: 120,
	}
	require.NoError(t, repo.SaveSessionGrade(ctx, grade))

	grade.Total = 80
	grade.Source = "enhanced"
	grade.Outcome = "SUCCESS"
	require.NoError(t, repo.SaveSessionGrade(ctx, grade))

	loaded, err := repo.GetSessionGrade(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 80.0, loaded.Total)
	assert.Equal(t, "enhanced", loaded.Source)
	assert.Equal(t, "SUCCESS", loaded.Outcome)
	assert.Equal(t, map[string]int{"safety": 3}, loaded.Axes)
}

func TestInitStatusResetsCounters(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.InitStatus(ctx, "s1", 3))
	_, _, err := repo.CompleteBatch(ctx, "s1")
	require.NoError(t, err)

	// A fresh run resets the counter and batch total.
	require.NoError(t, repo.InitStatus(ctx, "s1", 5))

	status, err := repo.GetStatus(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, status.Status)
	assert.Equal(t, 5, status.TotalBatches)
	assert.Equal(t, 0, status.CompletedBatches)
}

func TestInitStatusClearsPreviousBatchResults(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.InitStatus(ctx, "s1", 2))
	for idx := 0; idx < 2; idx++ {
		inserted, err := repo.InsertBatchResultIfAbsent(ctx, "s1", idx, `[]`)
		require.NoError(t, err)
		require.True(t, inserted)
		_, _, err = repo.CompleteBatch(ctx, "s1")
		require.NoError(t, err)
	}

	// Re-running the same session must not see the first run's results; if
	// they linger, every job of the new run looks like a redelivery and the
	// counter never moves.
	require.NoError(t, repo.InitStatus(ctx, "s1", 2))

	results, err := repo.GetBatchResults(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, results)

	inserted, err := repo.InsertBatchResultIfAbsent(ctx, "s1", 0, `[]`)
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestInsertBatchResultIfAbsent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	inserted, err := repo.InsertBatchResultIfAbsent(ctx, "s1", 0, `[{"index":0}]`)
	require.NoError(t, err)
	assert.True(t, inserted)

	// Redelivered job sees its result already persisted.
	inserted, err = repo.InsertBatchResultIfAbsent(ctx, "s1", 0, `[{"index":0}]`)
	require.NoError(t, err)
	assert.False(t, inserted)

	// A different batch index is a fresh insert.
	inserted, err = repo.InsertBatchResultIfAbsent(ctx, "s1", 1, `[]`)
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestBatchResultWriteToleratesMissingSession(t *testing.T) {
	repo := newTestRepo(t)

	// No session row exists; the write still succeeds (no foreign key).
	inserted, err := repo.InsertBatchResultIfAbsent(context.Background(), "deleted-session", 0, `[]`)
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestCompleteBatchTransitions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.InitStatus(ctx, "s1", 2))

	status, became, err := repo.CompleteBatch(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, became)
	assert.Equal(t, StatusProcessing, status.Status)
	assert.Equal(t, 1, status.CompletedBatches)

	status, became, err = repo.CompleteBatch(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, became)
	assert.Equal(t, StatusComplete, status.Status)
	assert.Equal(t, 2, status.CompletedBatches)

	// A stray extra increment neither moves the counter nor re-fires the
	// terminal transition.
	status, became, err = repo.CompleteBatch(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, became)
	assert.Equal(t, 2, status.CompletedBatches)
}

func TestCompleteBatchConcurrent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	const total = 5
	require.NoError(t, repo.InitStatus(ctx, "s1", total))

	var wg sync.WaitGroup
	var mu sync.Mutex
	transitions := 0

	for i := 0; i < total; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, became, err := repo.CompleteBatch(ctx, "s1")
			assert.NoError(t, err)
			if became {
				mu.Lock()
				transitions++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	status, err := repo.GetStatus(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, status.Status)
	assert.Equal(t, total, status.CompletedBatches)
	// The terminal transition is observed exactly once across all workers.
	assert.Equal(t, 1, transitions)
}

func TestGetBatchResultsOrdered(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, idx := range []int{2, 0, 1} {
		_, err := repo.InsertBatchResultIfAbsent(ctx, "s1", idx, `[]`)
		require.NoError(t, err)
	}

	results, err := repo.GetBatchResults(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, br := range results {
		assert.Equal(t, i, br.BatchIndex)
	}
}

func TestPruneOlderThan(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	old := NewSession("Average Austin", "", "sales-core", types.Transcript{})
	old.CreatedAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, repo.CreateSession(ctx, old))
	require.NoError(t, repo.InitStatus(ctx, old.ID, 1))

	fresh := NewSession("Average Austin", "", "sales-core", types.Transcript{})
	require.NoError(t, repo.CreateSession(ctx, fresh))

	pruned, err := repo.PruneOlderThan(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	_, err = repo.GetSession(ctx, old.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.GetStatus(ctx, old.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.GetSession(ctx, fresh.ID)
	assert.NoError(t, err)
}
