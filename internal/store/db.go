// Package store is the record store for sessions, grades, grading status,
// and per-batch results. SQLite-backed; the grading status counter is
// incremented with a single atomic UPDATE so racing workers never lose
// updates.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the database connection with pooling configuration.
type DB struct {
	*sql.DB
}

// NewDB opens (creating if needed) the grading database under dataDir and
// runs migrations.
func NewDB(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "gradepipe.db")

	// WAL keeps status polling readable while workers write batch results.
	connStr := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store := &DB{DB: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Info("Record store initialized", "path", dbPath)

	return store, nil
}

// migrate creates the necessary tables.
func (db *DB) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			persona_name TEXT NOT NULL,
			rep_name TEXT,
			rubric_id TEXT NOT NULL,
			transcript TEXT NOT NULL, -- JSON array of turns
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS session_grades (
			session_id TEXT PRIMARY KEY,
			total REAL NOT NULL,
			source TEXT NOT NULL,
			axes TEXT NOT NULL,    -- JSON axis scores
			notes TEXT NOT NULL,   -- JSON coaching notes
			metrics TEXT NOT NULL, -- JSON BasicMetrics
			outcome TEXT NOT NULL,
			duration_seconds REAL NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS grading_status (
			session_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			total_batches INTEGER NOT NULL,
			completed_batches INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		// No foreign key on purpose: in-flight batch jobs may finish after
		// their session is deleted, and those writes must not fail.
		`CREATE TABLE IF NOT EXISTS batch_results (
			session_id TEXT NOT NULL,
			batch_index INTEGER NOT NULL,
			line_grades TEXT NOT NULL, -- JSON per-line grades
			created_at DATETIME NOT NULL,
			PRIMARY KEY (session_id, batch_index)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_batch_results_session ON batch_results(session_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	return nil
}
