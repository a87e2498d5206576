package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ibeckermayer/xsweep/internal/types"
)

// ErrRunNotFound is returned for an unknown run id
var ErrRunNotFound = errors.New("run not found")

// RunStarted journals a new run and returns its id
func (s *Store) RunStarted(ctx context.Context, cfg types.RunConfig, at time.Time) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, mode, also_undo_reposts, batch_size, pause_ms, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, string(cfg.Mode), cfg.AlsoUndoReposts, cfg.BatchSize, cfg.PauseMs, at.UTC())
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	return id, nil
}

// ActionDone records one successful action
func (s *Store) ActionDone(ctx context.Context, runID string, action types.Action, itemID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO actions (run_id, action, item_id, done_at)
		VALUES (?, ?, ?, ?)
	`, runID, string(action), itemID, s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert action: %w", err)
	}
	return nil
}

// RunEnded closes a run
func (s *Store) RunEnded(ctx context.Context, runID string, total int, reason string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET ended_at = ?, total = ?, reason = ? WHERE id = ?
	`, at.UTC(), total, reason, runID)
	if err != nil {
		return fmt.Errorf("failed to close run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}
	return nil
}

const runColumns = `
	r.id, r.mode, r.also_undo_reposts, r.batch_size, r.pause_ms,
	r.started_at, r.ended_at, r.total, r.reason,
	(SELECT COUNT(*) FROM actions a WHERE a.run_id = r.id AND a.action = 'delete'),
	(SELECT COUNT(*) FROM actions a WHERE a.run_id = r.id AND a.action = 'undo_repost'),
	(SELECT COUNT(*) FROM actions a WHERE a.run_id = r.id AND a.action = 'unlike')
`

// ListRuns returns the most recent runs, newest first
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs r
		ORDER BY r.started_at DESC
		LIMIT ?
	`, limit)
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
	return runs, rows.Err()
}

// GetRun returns one run by id
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs r WHERE r.id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	return r, err
}

// Totals sums successful actions across all runs
func (s *Store) Totals(ctx context.Context) (Totals, error) {
	var t Totals
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM runs),
			(SELECT COUNT(*) FROM actions WHERE action = 'delete'),
			(SELECT COUNT(*) FROM actions WHERE action = 'undo_repost'),
			(SELECT COUNT(*) FROM actions WHERE action = 'unlike')
	`).Scan(&t.Runs, &t.Deleted, &t.Unreposted, &t.Unliked)
	return t, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var r Run
	var mode string
	var ended sql.NullTime
	err := row.Scan(
		&r.ID, &mode, &r.Config.AlsoUndoReposts, &r.Config.BatchSize, &r.Config.PauseMs,
		&r.StartedAt, &ended, &r.Total, &r.Reason,
		&r.Deleted, &r.Unreposted, &r.Unliked,
	)
	if err != nil {
		return Run{}, err
	}
	r.Config.Mode = types.Mode(mode)
	if ended.Valid {
		t := ended.Time
		r.EndedAt = &t
	}
	return r, nil
}
