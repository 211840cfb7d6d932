package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cutmassively/cutm/internal/fragment"
	"github.com/cutmassively/cutm/internal/stats"
)

const DefaultHistoryLimit = 20

type Repository interface {
	CreateRun(ctx context.Context, run *Run) error
	FinishRun(ctx context.Context, id string, snap stats.Snapshot, status, errMsg string) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)

	AddFragment(ctx context.Context, f *Fragment) error
	ListFragments(ctx context.Context, runID string) ([]*Fragment, error)
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) CreateRun(ctx context.Context, run *Run) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, source_video, status)
		VALUES (?, ?, ?, ?)
	`, run.ID, formatTime(run.StartedAt), run.SourceVideo, run.Status)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) FinishRun(ctx context.Context, id string, snap stats.Snapshot, status, errMsg string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE runs
		SET finished_at = ?, total = ?, ready = ?, uploaded = ?, failed = ?, status = ?, error = ?
		WHERE id = ?
	`, formatTime(time.Now()), snap.Total, snap.Ready, snap.Uploaded, snap.Failed, status, errMsg, id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run: no run %s", id)
	}
	return nil
}

func (r *SQLiteRepository) GetRun(ctx context.Context, id string) (*Run, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, source_video, total, ready, uploaded, failed, status, error
		FROM runs WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

func (r *SQLiteRepository) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, source_video, total, ready, uploaded, failed, status, error
		FROM runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *SQLiteRepository) AddFragment(ctx context.Context, f *Fragment) error {
	if f.RecordedAt.IsZero() {
		f.RecordedAt = time.Now()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO fragments (run_id, row_num, name, action, outcome, error, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, f.RunID, f.Row, f.Name, f.Action, f.Outcome, f.Error, formatTime(f.RecordedAt))
	if err != nil {
		return fmt.Errorf("add fragment: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		f.ID = id
	}
	return nil
}

func (r *SQLiteRepository) ListFragments(ctx context.Context, runID string) ([]*Fragment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, run_id, row_num, name, action, outcome, error, recorded_at
		FROM fragments WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list fragments: %w", err)
	}
	defer rows.Close()

	var frags []*Fragment
	for rows.Next() {
		var f Fragment
		var recordedAt string
		if err := rows.Scan(&f.ID, &f.RunID, &f.Row, &f.Name, &f.Action, &f.Outcome, &f.Error, &recordedAt); err != nil {
			return nil, err
		}
		f.RecordedAt = parseTime(recordedAt)
		frags = append(frags, &f)
	}
	return frags, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var run Run
	var startedAt string
	var finishedAt sql.NullString

	err := s.Scan(&run.ID, &startedAt, &finishedAt, &run.SourceVideo,
		&run.Total, &run.Ready, &run.Uploaded, &run.Failed, &run.Status, &run.Error)
	if err != nil {
		return nil, err
	}
	run.StartedAt = parseTime(startedAt)
	if finishedAt.Valid {
		t := parseTime(finishedAt.String)
		run.FinishedAt = &t
	}
	return &run, nil
}

// RunRecorder appends fragment outcomes of one run to the ledger.
type RunRecorder struct {
	repo  Repository
	runID string
}

func NewRunRecorder(repo Repository, runID string) *RunRecorder {
	return &RunRecorder{repo: repo, runID: runID}
}

func (rr *RunRecorder) RecordFragment(ctx context.Context, rec fragment.Record) error {
	return rr.repo.AddFragment(ctx, &Fragment{
		RunID:   rr.runID,
		Row:     rec.Row,
		Name:    rec.Name,
		Action:  string(rec.Action),
		Outcome: string(rec.Outcome),
		Error:   rec.Error,
	})
}
