// Package history keeps an opt-in log of past diagnostic runs in SQLite.
// Only summary rows are stored (traffic light, counts, timing); the full
// report is rebuilt fresh on every run and never persisted, so history can
// never feed back into validation decisions.
package history

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"

	"modhub/internal/diagnostics"
)

// Row is one persisted run summary.
type Row struct {
	RunID      string    `json:"run_id"`
	Overall    string    `json:"overall"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
	Active     int       `json:"active_count"`
	Blocked    int       `json:"blocked_count"`
	Severe     int       `json:"severe_count"`
	Medium     int       `json:"medium_count"`
	Light      int       `json:"light_count"`
}

// Store wraps the runs database. SQLite in WAL mode with a single
// connection is plenty for an append-mostly log.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the history database at path, creating parent
// directories as needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create history directory")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open history database")
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Best-effort speedups; the store works without them.
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		_, _ = db.Exec(pragma)
	}

	s := &Store{db: db, path: path}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL UNIQUE,
		overall TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		duration_ms INTEGER NOT NULL,
		active_count INTEGER NOT NULL,
		blocked_count INTEGER NOT NULL,
		severe_count INTEGER NOT NULL,
		medium_count INTEGER NOT NULL,
		light_count INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return errors.Wrap(err, "initialize history schema")
	}
	return nil
}

// Record appends one run summary. Each run id may be recorded once.
func (s *Store) Record(report *diagnostics.Report) error {
	_, err := s.db.Exec(`
	INSERT INTO runs (run_id, overall, started_at, duration_ms,
		active_count, blocked_count, severe_count, medium_count, light_count)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.RunID, string(report.Overall), report.StartedAt.UTC(), report.DurationMs,
		report.ActiveCount, report.BlockedCount,
		report.SevereCount, report.MediumCount, report.LightCount)
	if err != nil {
		return errors.Wrapf(err, "record run %s", report.RunID)
	}
	return nil
}

// List returns the most recent rows, newest first. A non-positive limit
// means everything.
func (s *Store) List(limit int) ([]Row, error) {
	query := `
	SELECT run_id, overall, started_at, duration_ms,
		active_count, blocked_count, severe_count, medium_count, light_count
	FROM runs ORDER BY id DESC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list runs")
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.RunID, &r.Overall, &r.StartedAt, &r.DurationMs,
			&r.Active, &r.Blocked, &r.Severe, &r.Medium, &r.Light); err != nil {
			return nil, errors.Wrap(err, "scan run row")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Trim deletes all but the newest keep rows.
func (s *Store) Trim(keep int) error {
	if keep < 0 {
		keep = 0
	}
	_, err := s.db.Exec(`
	DELETE FROM runs WHERE id NOT IN (
		SELECT id FROM runs ORDER BY id DESC LIMIT ?
	)`, keep)
	if err != nil {
		return errors.Wrap(err, "trim history")
	}
	return nil
}

// Path reports where the database lives.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
