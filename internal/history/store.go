// Package history keeps finished run reports in a local SQLite database.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nilo-qa/nilo-loadtest/internal"
	"github.com/nilo-qa/nilo-loadtest/internal/export"
)

var (
	// ErrNotFound is returned when no run matches an id.
	ErrNotFound = errors.New("run not found")
	// ErrAmbiguous is returned when an id prefix matches several runs.
	ErrAmbiguous = errors.New("run id prefix is ambiguous")
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		application TEXT NOT NULL,
		strategy    TEXT NOT NULL,
		environment TEXT NOT NULL,
		scenario    TEXT NOT NULL DEFAULT '',
		started_at  INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		iterations  INTEGER NOT NULL,
		passed      INTEGER NOT NULL,
		report      TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS runs_started_at ON runs (started_at DESC)`,
}

// Entry is the listing view of a stored run.
type Entry struct {
	ID          string
	Application string
	Strategy    string
	Environment string
	Scenario    string
	StartedAt   time.Time
	FinishedAt  time.Time
	Iterations  int64
	Passed      bool
}

// Store persists reports.
type Store struct {
	db   *sql.DB
	path string
}

// DefaultPath returns ~/.nilo-loadtest/history.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".nilo-loadtest", "history.db"), nil
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := internal.OpenDatabase(path)
	if err != nil {
		return nil, err
	}
	s, err := NewStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.path = path
	return s, nil
}

// NewStore wraps an open database, creating the schema if needed.
func NewStore(db *sql.DB) (*Store, error) {
	if err := internal.Migrate(db, schema); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores r, replacing any run with the same id.
func (s *Store) Save(ctx context.Context, r *export.Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return &internal.StoreError{Path: s.path, Op: "insert", Err: err}
	}
	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO runs
		(id, application, strategy, environment, scenario, started_at, finished_at, iterations, passed, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Application, r.Strategy, r.Environment, r.Scenario,
		r.StartedAt.UnixMilli(), r.FinishedAt.UnixMilli(), r.Iterations, boolToInt(r.Passed), string(data))
	if err != nil {
		return &internal.StoreError{Path: s.path, Op: "insert", Err: err}
	}
	return nil
}

// List returns the most recent runs first. A limit of 0 returns every run.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT id, application, strategy, environment, scenario, started_at, finished_at, iterations, passed
		FROM runs ORDER BY started_at DESC`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &internal.StoreError{Path: s.path, Op: "query", Err: err}
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var started, finished int64
		var passed int
		if err := rows.Scan(&e.ID, &e.Application, &e.Strategy, &e.Environment, &e.Scenario,
			&started, &finished, &e.Iterations, &passed); err != nil {
			return nil, &internal.StoreError{Path: s.path, Op: "query", Err: err}
		}
		e.StartedAt = time.UnixMilli(started)
		e.FinishedAt = time.UnixMilli(finished)
		e.Passed = passed != 0
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &internal.StoreError{Path: s.path, Op: "query", Err: err}
	}
	return entries, nil
}

// Get loads the report whose id equals id or, failing that, starts with it.
func (s *Store) Get(ctx context.Context, id string) (*export.Report, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT report FROM runs WHERE id = ? OR id LIKE ? ESCAPE '\' ORDER BY id = ? DESC LIMIT 2`,
		id, escapeLike(id)+"%", id)
	if err != nil {
		return nil, &internal.StoreError{Path: s.path, Op: "query", Err: err}
	}
	defer rows.Close()

	var found []string
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, &internal.StoreError{Path: s.path, Op: "query", Err: err}
		}
		found = append(found, data)
	}
	if err := rows.Err(); err != nil {
		return nil, &internal.StoreError{Path: s.path, Op: "query", Err: err}
	}

	switch {
	case len(found) == 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	case len(found) > 1:
		// an exact match sorts first and wins
		var first export.Report
		if err := json.Unmarshal([]byte(found[0]), &first); err == nil && first.RunID == id {
			return &first, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrAmbiguous, id)
	}

	var r export.Report
	if err := json.Unmarshal([]byte(found[0]), &r); err != nil {
		return nil, &internal.StoreError{Path: s.path, Op: "query", Err: fmt.Errorf("corrupt report %s: %w", id, err)}
	}
	return &r, nil
}

func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
