// Package history keeps an append-only record of finished jobs in SQLite.
// It is an audit log only: nothing in the control flow reads it back, and
// sessions or scheduler state are never persisted.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/clipfetch/clipfetch/internal/domain"
)

// Store records finished jobs. A nil db (empty path) disables persistence
// and every method becomes a no-op.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates the store at path, initializing the schema. An empty path
// returns a disabled store.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if path == "" {
		logger.Info("job history persistence disabled")
		return &Store{logger: logger}, nil
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			job_id TEXT NOT NULL,
			user_id INTEGER NOT NULL,
			kind TEXT NOT NULL,
			url TEXT NOT NULL,
			outcome TEXT NOT NULL,
			fail_reason TEXT,
			bytes INTEGER NOT NULL DEFAULT 0,
			submitted_at DATETIME NOT NULL,
			finished_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_jobs_user ON jobs(user_id);
		CREATE INDEX IF NOT EXISTS idx_jobs_outcome ON jobs(outcome);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create jobs table: %w", err)
	}

	logger.Info("job history persistence enabled", "path", path)
	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record appends a finished job. Failures are logged, never propagated: the
// audit log must not affect job outcomes.
func (s *Store) Record(ctx context.Context, job *domain.Job, bytes int64) {
	if s.db == nil {
		return
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, job_id, user_id, kind, url, outcome, fail_reason, bytes, submitted_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(),
		job.ID.String(),
		job.UserID,
		job.Kind.String(),
		job.URL,
		string(job.Outcome),
		job.FailReason,
		bytes,
		job.SubmittedAt,
		job.FinishedAt,
	)
	if err != nil {
		s.logger.Warn("failed to record job history", "job_id", job.ID, "error", err)
	}
}

// Stats aggregates the recorded jobs.
type Stats struct {
	Total          int64 `json:"total"`
	Succeeded      int64 `json:"succeeded"`
	Failed         int64 `json:"failed"`
	BytesDelivered int64 `json:"bytes_delivered"`
}

// Stats returns totals across all recorded jobs. A disabled store reports
// zeros.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	if s.db == nil {
		return Stats{}, nil
	}

	var st Stats
	row := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN outcome = 'succeeded' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN outcome = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN outcome = 'succeeded' THEN bytes ELSE 0 END), 0)
		FROM jobs`)
	if err := row.Scan(&st.Total, &st.Succeeded, &st.Failed, &st.BytesDelivered); err != nil {
		return Stats{}, fmt.Errorf("query history stats: %w", err)
	}
	return st, nil
}
