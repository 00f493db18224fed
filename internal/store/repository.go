package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Repository handles record store operations.
type Repository struct {
	db *DB
}

// NewRepository creates a new repository.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// CreateSession inserts a session record.
func (r *Repository) CreateSession(ctx context.Context, s *Session) error {
	transcriptJSON, err := json.Marshal(s.Transcript)
	if err != nil {
		return fmt.Errorf("failed to encode transcript: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, persona_name, rep_name, rubric_id, transcript, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.PersonaName, s.RepName, s.RubricID, string(transcriptJSON), s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// GetSession loads a session by ID.
func (r *Repository) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var s Session
	var transcriptJSON string

	err := r.db.QueryRowContext(ctx, `
		SELECT id, persona_name, rep_name, rubric_id, transcript, created_at, updated_at
		FROM sessions WHERE id = ?
	`, sessionID).Scan(&s.ID, &s.PersonaName, &s.RepName, &s.RubricID, &transcriptJSON, &s.CreatedAt, &s.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	if err := json.Unmarshal([]byte(transcriptJSON), &s.Transcript); err != nil {
		return nil, fmt.Errorf("failed to decode transcript: %w", err)
	}

	return &s, nil
}

// DeleteSession removes a session and its grade. Batch results and status
// rows are left for the retention cleanup; in-flight workers may still be
// writing them.
func (r *Repository) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM session_grades WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete session grade: %w", err)
	}
	return nil
}

// SaveSessionGrade upserts the grading result for a session.
func (r *Repository) SaveSessionGrade(ctx context.Context, g *SessionGrade) error {
	axesJSON, err := json.Marshal(g.Axes)
	if err != nil {
		return fmt.Errorf("failed to encode axes: %w", err)
	}
	notesJSON, err := json.Marshal(g.Notes)
	if err != nil {
		return fmt.Errorf("failed to encode notes: %w", err)
	}

	now := time.Now()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO session_grades (session_id, total, source, axes, notes, metrics, outcome, duration_seconds, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			total = excluded.total,
			source = excluded.source,
			axes = excluded.axes,
			notes = excluded.notes,
			metrics = excluded.metrics,
			outcome = excluded.outcome,
			duration_seconds = excluded.duration_seconds,
			updated_at = excluded.updated_at
	`, g.SessionID, g.Total, g.Source, string(axesJSON), string(notesJSON), g.MetricsJSON, g.Outcome, g.DurationSeconds, now, now)
	if err != nil {
		return fmt.Errorf("failed to save session grade: %w", err)
	}

	return nil
}

// GetSessionGrade loads the grading result for a session.
func (r *Repository) GetSessionGrade(ctx context.Context, sessionID string) (*SessionGrade, error) {
	var g SessionGrade
	var axesJSON, notesJSON string

	err := r.db.QueryRowContext(ctx, `
		SELECT session_id, total, source, axes, notes, metrics, outcome, duration_seconds, created_at, updated_at
		FROM session_grades WHERE session_id = ?
	`, sessionID).Scan(&g.SessionID, &g.Total, &g.Source, &axesJSON, &notesJSON, &g.MetricsJSON, &g.Outcome, &g.DurationSeconds, &g.CreatedAt, &g.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session grade: %w", err)
	}

	if err := json.Unmarshal([]byte(axesJSON), &g.Axes); err != nil {
		return nil, fmt.Errorf("failed to decode axes: %w", err)
	}
	if err := json.Unmarshal([]byte(notesJSON), &g.Notes); err != nil {
		return nil, fmt.Errorf("failed to decode notes: %w", err)
	}

	return &g, nil
}

// InitStatus sets the grading status to queued with its final batch count.
// TotalBatches never changes after this call for a given run; re-triggering
// a grade resets the counters and clears the previous run's batch results
// so the new run's jobs are not mistaken for redeliveries.
func (r *Repository) InitStatus(ctx context.Context, sessionID string, totalBatches int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin status init: %w", err)
	}
	defer tx.Rollback()

	// A fresh run owns the batch index space again. Stale results from a
	// previous run would make every new job look like a redelivery and
	// skip its increment, wedging the run short of complete.
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM batch_results WHERE session_id = ?
	`, sessionID); err != nil {
		return fmt.Errorf("failed to clear previous batch results: %w", err)
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO grading_status (session_id, status, total_batches, completed_batches, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			status = excluded.status,
			total_batches = excluded.total_batches,
			completed_batches = 0,
			updated_at = excluded.updated_at
	`, sessionID, StatusQueued, totalBatches, now, now); err != nil {
		return fmt.Errorf("failed to init grading status: %w", err)
	}

	return tx.Commit()
}

// InsertBatchResultIfAbsent conditionally persists a batch's partial result.
// Returns false when a result for (sessionID, batchIndex) already exists,
// which is how redelivered jobs detect they already ran (exactly-once effect
// on top of at-least-once delivery).
func (r *Repository) InsertBatchResultIfAbsent(ctx context.Context, sessionID string, batchIndex int, lineGradesJSON string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO batch_results (session_id, batch_index, line_grades, created_at)
		VALUES (?, ?, ?, ?)
	`, sessionID, batchIndex, lineGradesJSON, time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to insert batch result: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}

	return affected > 0, nil
}

// CompleteBatch atomically increments the completed counter and flips the
// status to complete the instant the counter reaches the total. Increment
// and terminal check live in one UPDATE so concurrent completions cannot
// miss the transition or run the counter past the total. Returns the status
// after the increment and whether this call performed the terminal
// transition (true for exactly one caller per session run).
func (r *Repository) CompleteBatch(ctx context.Context, sessionID string) (*GradingStatus, bool, error) {
	s := GradingStatus{SessionID: sessionID}

	// RETURNING pins the post-increment snapshot to this statement; reading
	// the row back separately would let a racing worker observe another
	// worker's terminal transition as its own.
	err := r.db.QueryRowContext(ctx, `
		UPDATE grading_status
		SET completed_batches = completed_batches + 1,
			status = CASE WHEN completed_batches + 1 >= total_batches THEN ? ELSE ? END,
			updated_at = ?
		WHERE session_id = ? AND completed_batches < total_batches
		RETURNING status, total_batches, completed_batches
	`, StatusComplete, StatusProcessing, time.Now(), sessionID).Scan(&s.Status, &s.TotalBatches, &s.CompletedBatches)

	if err == sql.ErrNoRows {
		// Counter already at total (stray increment) or the session's
		// status row is gone. Report current state without a transition.
		status, getErr := r.GetStatus(ctx, sessionID)
		if getErr != nil {
			return nil, false, getErr
		}
		return status, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to increment completed batches: %w", err)
	}

	becameComplete := s.Status == StatusComplete && s.CompletedBatches == s.TotalBatches
	return &s, becameComplete, nil
}

// GetStatus returns the grading status for a session.
func (r *Repository) GetStatus(ctx context.Context, sessionID string) (*GradingStatus, error) {
	var s GradingStatus

	err := r.db.QueryRowContext(ctx, `
		SELECT session_id, status, total_batches, completed_batches, created_at, updated_at
		FROM grading_status WHERE session_id = ?
	`, sessionID).Scan(&s.SessionID, &s.Status, &s.TotalBatches, &s.CompletedBatches, &s.CreatedAt, &s.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query grading status: %w", err)
	}

	return &s, nil
}

// GetBatchResults returns a session's persisted batch results ordered by
// batch index.
func (r *Repository) GetBatchResults(ctx context.Context, sessionID string) ([]BatchResult, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT session_id, batch_index, line_grades, created_at
		FROM batch_results WHERE session_id = ? ORDER BY batch_index ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query batch results: %w", err)
	}
	defer rows.Close()

	var results []BatchResult
	for rows.Next() {
		var br BatchResult
		if err := rows.Scan(&br.SessionID, &br.BatchIndex, &br.LineGrades, &br.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan batch result: %w", err)
		}
		results = append(results, br)
	}

	return results, rows.Err()
}

// PruneOlderThan deletes sessions (and their grades, statuses, and batch
// results) older than the retention cutoff. Returns the number of sessions
// removed.
func (r *Repository) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune sessions: %w", err)
	}
	pruned, _ := res.RowsAffected()

	cleanups := []string{
		`DELETE FROM session_grades WHERE session_id NOT IN (SELECT id FROM sessions)`,
		`DELETE FROM grading_status WHERE session_id NOT IN (SELECT id FROM sessions)`,
		`DELETE FROM batch_results WHERE session_id NOT IN (SELECT id FROM sessions)`,
	}
	for _, q := range cleanups {
		if _, err := r.db.ExecContext(ctx, q); err != nil {
			return pruned, fmt.Errorf("failed to prune dependent records: %w", err)
		}
	}

	return pruned, nil
}
