// Package runlog persists per-invocation run history in SQLite.
//
// Artifact existence is the pipeline's completion ledger, so this store is
// never consulted for skip decisions; it exists for operators. Every
// orchestrator invocation records the command, its options, and one row per
// (sample, stage) outcome, surfaced by the history subcommand.
package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"cytopipe/internal/project"
)

// Store manages run history persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    command     TEXT NOT NULL,
    options     TEXT NOT NULL,
    started_at  TEXT NOT NULL,
    finished_at TEXT,
    done        INTEGER NOT NULL DEFAULT 0,
    skipped     INTEGER NOT NULL DEFAULT 0,
    blocked     INTEGER NOT NULL DEFAULT 0,
    failed      INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS run_outcomes (
    run_id    TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    sample_id TEXT NOT NULL,
    stage     TEXT NOT NULL,
    outcome   TEXT NOT NULL,
    detail    TEXT
);
CREATE INDEX IF NOT EXISTS idx_run_outcomes_run ON run_outcomes(run_id);
`

// Open initializes or connects to the run history database.
func Open(layout project.Layout) (*Store, error) {
	dbPath := filepath.Join(layout.Dir(project.AreaLogs), "history.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, path: dbPath}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// BeginRun inserts a run row and returns its identifier.
func (s *Store) BeginRun(ctx context.Context, command, options string) (string, error) {
	runID := uuid.NewString()
	started := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO runs (id, command, options, started_at) VALUES (?, ?, ?, ?)`,
		runID, command, options, started,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return runID, nil
}

// RecordOutcome appends one (sample, stage) outcome to a run.
func (s *Store) RecordOutcome(ctx context.Context, runID, sampleID, stage, outcome, detail string) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO run_outcomes (run_id, sample_id, stage, outcome, detail) VALUES (?, ?, ?, ?, ?)`,
		runID, sampleID, stage, outcome, detail,
	)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

// Counts aggregates a run's outcomes.
type Counts struct {
	Done    int
	Skipped int
	Blocked int
	Failed  int
}

// FinishRun stamps the finish time and aggregate counts on a run.
func (s *Store) FinishRun(ctx context.Context, runID string, counts Counts) error {
	finished := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE runs SET finished_at = ?, done = ?, skipped = ?, blocked = ?, failed = ? WHERE id = ?`,
		finished, counts.Done, counts.Skipped, counts.Blocked, counts.Failed, runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// Run is one recorded invocation.
type Run struct {
	ID         string
	Command    string
	Options    string
	StartedAt  time.Time
	FinishedAt *time.Time
	Counts     Counts
}

// RecentRuns returns the most recent runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, command, options, started_at, finished_at, done, skipped, blocked, failed
         FROM runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var started string
		var finished sql.NullString
		if err := rows.Scan(
			&run.ID, &run.Command, &run.Options, &started, &finished,
			&run.Counts.Done, &run.Counts.Skipped, &run.Counts.Blocked, &run.Counts.Failed,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if parsed, err := time.Parse(time.RFC3339Nano, started); err == nil {
			run.StartedAt = parsed
		}
		if finished.Valid {
			if parsed, err := time.Parse(time.RFC3339Nano, finished.String); err == nil {
				run.FinishedAt = &parsed
			}
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// OutcomeRecord is one (sample, stage) outcome of a run.
type OutcomeRecord struct {
	SampleID string
	Stage    string
	Outcome  string
	Detail   string
}

// RunOutcomes lists the recorded outcomes of one run in insertion order.
func (s *Store) RunOutcomes(ctx context.Context, runID string) ([]OutcomeRecord, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT sample_id, stage, outcome, COALESCE(detail, '') FROM run_outcomes WHERE run_id = ? ORDER BY rowid`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var records []OutcomeRecord
	for rows.Next() {
		var record OutcomeRecord
		if err := rows.Scan(&record.SampleID, &record.Stage, &record.Outcome, &record.Detail); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
