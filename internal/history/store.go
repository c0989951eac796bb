// Package history persists comparison outcomes in a SQLite database so
// regressions can be traced across runs without digging through artifact
// directories.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Record is one completed harness run.
type Record struct {
	ID           string
	Test         string
	Metric       string
	Value        float64
	Threshold    *float64
	Direction    string
	Passed       bool
	ExitCode     int
	TimedOut     bool
	GoldenUpdate bool
	DurationMs   int64
	ArtifactDir  string
	CreatedAt    time.Time
}

// Store wraps the run-history database. Safe for concurrent use.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	test          TEXT NOT NULL,
	metric        TEXT NOT NULL,
	value         REAL,
	threshold     REAL,
	direction     TEXT NOT NULL DEFAULT 'lower',
	passed        INTEGER NOT NULL,
	exit_code     INTEGER NOT NULL,
	timed_out     INTEGER NOT NULL DEFAULT 0,
	golden_update INTEGER NOT NULL DEFAULT 0,
	duration_ms   INTEGER NOT NULL DEFAULT 0,
	artifact_dir  TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_runs_test_created ON runs(test, created_at DESC);
`

// Open creates (or opens) the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy_timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set journal_mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append stores a run record, assigning an id and timestamp when unset.
func (s *Store) Append(rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var threshold sql.NullFloat64
	if rec.Threshold != nil {
		threshold = sql.NullFloat64{Float64: *rec.Threshold, Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO runs (id, test, metric, value, threshold, direction, passed,
			exit_code, timed_out, golden_update, duration_ms, artifact_dir, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Test, rec.Metric, rec.Value, threshold, rec.Direction,
		boolInt(rec.Passed), rec.ExitCode, boolInt(rec.TimedOut),
		boolInt(rec.GoldenUpdate), rec.DurationMs, rec.ArtifactDir,
		rec.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return rec, fmt.Errorf("failed to record run: %w", err)
	}
	return rec, nil
}

// Recent returns the most recent runs for a test, newest first.
func (s *Store) Recent(test string, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, test, metric, value, threshold, direction, passed,
			exit_code, timed_out, golden_update, duration_ms, artifact_dir, created_at
		FROM runs WHERE test = ? ORDER BY created_at DESC LIMIT ?`, test, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var threshold sql.NullFloat64
		var passed, timedOut, goldenUpdate int
		var createdAt string
		if err := rows.Scan(&rec.ID, &rec.Test, &rec.Metric, &rec.Value,
			&threshold, &rec.Direction, &passed, &rec.ExitCode, &timedOut,
			&goldenUpdate, &rec.DurationMs, &rec.ArtifactDir, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		if threshold.Valid {
			v := threshold.Float64
			rec.Threshold = &v
		}
		rec.Passed = passed != 0
		rec.TimedOut = timedOut != 0
		rec.GoldenUpdate = goldenUpdate != 0
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			rec.CreatedAt = t
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
