// Package history records provisioning runs in SQLite so that the verdict
// sequence of a run can be compared with earlier runs on the same bench.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// Verdict is the outcome of one topology checkpoint.
type Verdict struct {
	Step     string
	Topology string
	Passed   bool
}

// Run is one execution of a workflow.
type Run struct {
	ID           string
	Workflow     string
	Iteration    int
	StartedAt    time.Time
	FinishedAt   time.Time
	Passed       bool
	Failure      string
	GDBVersion   string
	ProbeVersion string
	Verdicts     []Verdict
}

// Store is a SQLite-backed run history.
type Store struct {
	db *sql.DB
}

// NewRunID returns a new, time-ordered run ID.
func NewRunID() string {
	return ulid.Make().String()
}

// Open opens or creates the history database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS runs (
		id            TEXT PRIMARY KEY,
		workflow      TEXT NOT NULL,
		iteration     INTEGER NOT NULL DEFAULT 1,
		started_at    TEXT NOT NULL,
		finished_at   TEXT NOT NULL,
		passed        INTEGER NOT NULL,
		failure       TEXT,
		gdb_version   TEXT,
		probe_version TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_runs_workflow ON runs(workflow, id);

	CREATE TABLE IF NOT EXISTS verdicts (
		run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq      INTEGER NOT NULL,
		step     TEXT NOT NULL,
		topology TEXT NOT NULL,
		passed   INTEGER NOT NULL,
		PRIMARY KEY (run_id, seq)
	);
	`)
	return err
}

// Record stores run and its verdicts. A run without ID gets a new one,
// which is returned.
func (s *Store) Record(ctx context.Context, run Run) (string, error) {
	if run.ID == "" {
		run.ID = NewRunID()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, workflow, iteration, started_at, finished_at, passed, failure, gdb_version, probe_version)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Workflow, run.Iteration,
		run.StartedAt.UTC().Format(time.RFC3339Nano), run.FinishedAt.UTC().Format(time.RFC3339Nano),
		run.Passed, run.Failure, run.GDBVersion, run.ProbeVersion)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	for i, v := range run.Verdicts {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO verdicts (run_id, seq, step, topology, passed) VALUES (?, ?, ?, ?, ?)`,
			run.ID, i, v.Step, v.Topology, v.Passed)
		if err != nil {
			return "", fmt.Errorf("insert verdict %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return run.ID, nil
}

// Runs returns the most recent runs, newest first. An empty workflow
// matches all workflows; limit <= 0 means no limit.
func (s *Store) Runs(ctx context.Context, workflow string, limit int) ([]Run, error) {
	query := `SELECT id, workflow, iteration, started_at, finished_at, passed, failure, gdb_version, probe_version
		FROM runs WHERE (? = '' OR workflow = ?) ORDER BY id DESC`
	args := []any{workflow, workflow}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range runs {
		if runs[i].Verdicts, err = s.verdicts(ctx, runs[i].ID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

// Previous returns the latest run of workflow recorded before the run with
// ID before, or nil if there is none.
func (s *Store) Previous(ctx context.Context, workflow, before string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, workflow, iteration, started_at, finished_at, passed, failure, gdb_version, probe_version
		 FROM runs WHERE workflow = ? AND id < ? ORDER BY id DESC LIMIT 1`, workflow, before)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if r.Verdicts, err = s.verdicts(ctx, r.ID); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) verdicts(ctx context.Context, runID string) ([]Verdict, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT step, topology, passed FROM verdicts WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Verdict
	for rows.Next() {
		var v Verdict
		if err := rows.Scan(&v.Step, &v.Topology, &v.Passed); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		r                 Run
		started, finished string
		failure, gdb, bmp sql.NullString
	)
	if err := sc.Scan(&r.ID, &r.Workflow, &r.Iteration, &started, &finished, &r.Passed, &failure, &gdb, &bmp); err != nil {
		return Run{}, err
	}
	r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
	r.Failure = failure.String
	r.GDBVersion = gdb.String
	r.ProbeVersion = bmp.String
	return r, nil
}

// Diverges compares two verdict sequences and returns the index of the
// first difference. Sequences of different length diverge at the length
// of the shorter one.
func Diverges(a, b []Verdict) (int, bool) {
	n := min(len(a), len(b))
	for i := range n {
		if a[i] != b[i] {
			return i, true
		}
	}
	if len(a) != len(b) {
		return n, true
	}
	return 0, false
}
