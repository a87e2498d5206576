package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ibeckermayer/xsweep/internal/config"
)

// Store keeps the run history in SQLite
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// DefaultPath returns the history database location in the data directory
func DefaultPath() (string, error) {
	dir, err := config.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}

// New creates a new Store with SQLite backend
func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, err
	}
	// One writer at a time; the run goroutine and the CLI share this handle
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate %s: %w", dbPath, err)
	}
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		also_undo_reposts BOOLEAN NOT NULL,
		batch_size INTEGER NOT NULL,
		pause_ms INTEGER NOT NULL,
		started_at DATETIME NOT NULL,
		ended_at DATETIME,
		total INTEGER NOT NULL DEFAULT 0,
		reason TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS actions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		action TEXT NOT NULL,
		item_id TEXT NOT NULL,
		done_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_actions_run ON actions(run_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// CloseInterrupted marks runs left open by a process that died mid-run.
// Returns how many were closed.
func (s *Store) CloseInterrupted(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET ended_at = ?, reason = 'interrupted',
			total = (SELECT COUNT(*) FROM actions a WHERE a.run_id = runs.id)
		WHERE ended_at IS NULL
	`, s.now().UTC())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
