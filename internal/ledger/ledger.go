// Package ledger keeps a local SQLite history of generation runs.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"genflow/internal/orchestrator"
)

// DefaultFileName is the database file inside the data directory.
const DefaultFileName = "runs.db"

// timeLayout has fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// openDB allows tests to inject open failures.
var openDB = sql.Open

// RunRecord is one row of the runs table.
type RunRecord struct {
	RunID          string    `json:"run_id"`
	RemoteTaskID   string    `json:"remote_task_id,omitempty"`
	TaskType       string    `json:"task_type"`
	Description    string    `json:"description"`
	Status         string    `json:"status"`
	PollCount      int       `json:"poll_count"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	Archived       bool      `json:"archived"`
	TimedOut       bool      `json:"timed_out"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// FromHandle builds a record for a finished run.
func FromHandle(taskType, description string, handle orchestrator.TaskHandle) RunRecord {
	return RunRecord{
		RemoteTaskID:   handle.ID,
		TaskType:       taskType,
		Description:    description,
		Status:         string(handle.Status),
		PollCount:      handle.PollCount,
		ElapsedSeconds: handle.ExecutionSeconds(),
		Archived:       handle.Archived,
		TimedOut:       handle.TimedOut,
		Error:          handle.Error,
	}
}

// Store is the runs database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates dataDir if needed and opens the runs database inside it.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("ledger: create data dir: %w", err)
	}
	db, err := openDB("sqlite", filepath.Join(dataDir, DefaultFileName))
	if err != nil {
		return nil, fmt.Errorf("ledger: open database: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ledger: pragma %q: %w", p, err)
		}
	}
	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			run_id          TEXT PRIMARY KEY,
			remote_task_id  TEXT NOT NULL DEFAULT '',
			task_type       TEXT NOT NULL,
			description     TEXT NOT NULL,
			status          TEXT NOT NULL,
			poll_count      INTEGER NOT NULL DEFAULT 0,
			elapsed_seconds REAL NOT NULL DEFAULT 0,
			archived        INTEGER NOT NULL DEFAULT 0,
			timed_out       INTEGER NOT NULL DEFAULT 0,
			error           TEXT NOT NULL DEFAULT '',
			created_at      TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("ledger: migrate: %w", err)
	}
	return nil
}

// Record inserts rec, assigning a run id and creation time when unset.
func (s *Store) Record(ctx context.Context, rec RunRecord) (RunRecord, error) {
	if rec.RunID == "" {
		rec.RunID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, remote_task_id, task_type, description, status,
			poll_count, elapsed_seconds, archived, timed_out, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.RemoteTaskID, rec.TaskType, rec.Description, rec.Status,
		rec.PollCount, rec.ElapsedSeconds, boolInt(rec.Archived), boolInt(rec.TimedOut), rec.Error,
		rec.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return RunRecord{}, fmt.Errorf("ledger: record run: %w", err)
	}
	return rec, nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, selectRuns+` ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ErrNotFound is returned by Get for unknown run ids.
var ErrNotFound = errors.New("ledger: run not found")

// Get returns the run with id.
func (s *Store) Get(ctx context.Context, runID string) (RunRecord, error) {
	row := s.db.QueryRowContext(ctx, selectRuns+` WHERE run_id = ?`, runID)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, ErrNotFound
	}
	return rec, err
}

const selectRuns = `
		SELECT run_id, remote_task_id, task_type, description, status,
			poll_count, elapsed_seconds, archived, timed_out, error, created_at
		FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (RunRecord, error) {
	var (
		rec       RunRecord
		archived  int
		timedOut  int
		createdAt string
	)
	err := row.Scan(&rec.RunID, &rec.RemoteTaskID, &rec.TaskType, &rec.Description, &rec.Status,
		&rec.PollCount, &rec.ElapsedSeconds, &archived, &timedOut, &rec.Error, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, err
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("ledger: scan run: %w", err)
	}
	rec.Archived = archived != 0
	rec.TimedOut = timedOut != 0
	if rec.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return RunRecord{}, fmt.Errorf("ledger: parse created_at %q: %w", createdAt, err)
	}
	return rec, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
