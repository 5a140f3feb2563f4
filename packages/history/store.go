// Package history keeps a record of past runs in a SQLite database.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"

	"github.com/abdul-hamid-achik/reqx/packages/core/runner"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at     TEXT    NOT NULL,
	duration_ms    INTEGER NOT NULL,
	environment    TEXT    NOT NULL,
	classification TEXT    NOT NULL,
	exit_code      INTEGER NOT NULL,
	total          INTEGER NOT NULL,
	passed         INTEGER NOT NULL,
	failed         INTEGER NOT NULL,
	errored        INTEGER NOT NULL,
	unparsable     INTEGER NOT NULL,
	skipped        INTEGER NOT NULL,
	files          TEXT    NOT NULL,
	canceled       INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS outcomes (
	run_id         INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	position       INTEGER NOT NULL,
	name           TEXT    NOT NULL,
	file           TEXT    NOT NULL,
	method         TEXT    NOT NULL,
	url            TEXT    NOT NULL,
	classification TEXT    NOT NULL,
	status_code    INTEGER,
	duration_ms    INTEGER NOT NULL,
	error          TEXT    NOT NULL,
	PRIMARY KEY (run_id, position)
);
`

// Meta is the run context that is not part of the report itself.
type Meta struct {
	ExitCode int
	Files    []string
}

// Run is one row of the runs table.
type Run struct {
	ID             int64
	StartedAt      time.Time
	Duration       time.Duration
	Environment    string
	Classification string
	ExitCode       int
	Counts         runner.Counts
	Files          []string
	Canceled       bool
}

// Outcome is one recorded request of a run.
type Outcome struct {
	Name           string
	File           string
	Method         string
	URL            string
	Classification string
	StatusCode     *int
	Duration       time.Duration
	Error          string
}

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at path. A
// "sqlite://" or "sqlite:" prefix is accepted.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	path = strings.TrimPrefix(path, "sqlite://")
	path = strings.TrimPrefix(path, "sqlite:")
	if path == "" {
		return nil, fmt.Errorf("history path is empty")
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize history database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record stores a finished run and its outcomes, returning the run ID.
func (s *Store) Record(ctx context.Context, report *runner.RunReport, meta Meta) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	c := report.Counts
	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs (started_at, duration_ms, environment, classification, exit_code,
			total, passed, failed, errored, unparsable, skipped, files, canceled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.StartedAt.UTC().Format(time.RFC3339Nano),
		report.Duration.Milliseconds(),
		report.Environment,
		report.Classification.String(),
		meta.ExitCode,
		c.Total, c.Passed, c.AssertionFailures, c.ExecutionErrors, c.ParseErrors, c.Skipped,
		strings.Join(meta.Files, "\n"),
		report.Canceled,
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO outcomes (run_id, position, name, file, method, url, classification, status_code, duration_ms, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare outcome insert: %w", err)
	}
	defer stmt.Close()

	for i, o := range report.Outcomes {
		var status sql.NullInt64
		if o.HasStatus {
			status = sql.NullInt64{Int64: int64(o.StatusCode), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, id, i, o.Name, o.File, o.Method, o.URL,
			o.Classification.String(), status, o.Duration.Milliseconds(), o.ErrorMessage()); err != nil {
			return 0, fmt.Errorf("insert outcome %q: %w", o.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// Recent returns up to n runs, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Run, error) {
	if n <= 0 {
		n = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, duration_ms, environment, classification, exit_code,
			total, passed, failed, errored, unparsable, skipped, files, canceled
		FROM runs ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r         Run
			startedAt string
			duration  int64
			files     string
		)
		if err := rows.Scan(&r.ID, &startedAt, &duration, &r.Environment, &r.Classification, &r.ExitCode,
			&r.Counts.Total, &r.Counts.Passed, &r.Counts.AssertionFailures, &r.Counts.ExecutionErrors,
			&r.Counts.ParseErrors, &r.Counts.Skipped, &files, &r.Canceled); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt)
		if err != nil {
			return nil, fmt.Errorf("run %d: bad timestamp %q: %w", r.ID, startedAt, err)
		}
		r.Duration = time.Duration(duration) * time.Millisecond
		if files != "" {
			r.Files = strings.Split(files, "\n")
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return runs, nil
}

// Outcomes returns the recorded requests of one run in their original order.
func (s *Store) Outcomes(ctx context.Context, runID int64) ([]Outcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, file, method, url, classification, status_code, duration_ms, error
		FROM outcomes WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var (
			o        Outcome
			status   sql.NullInt64
			duration int64
		)
		if err := rows.Scan(&o.Name, &o.File, &o.Method, &o.URL, &o.Classification, &status, &duration, &o.Error); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		if status.Valid {
			code := int(status.Int64)
			o.StatusCode = &code
		}
		o.Duration = time.Duration(duration) * time.Millisecond
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}
