package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"ResourceCurator/internal/domain"
	"ResourceCurator/internal/ports"
)

const schema = `CREATE TABLE IF NOT EXISTS cycle_runs (
	id TEXT PRIMARY KEY,
	day TEXT NOT NULL,
	started_at INTEGER NOT NULL,
	status TEXT NOT NULL,
	previous INTEGER NOT NULL DEFAULT 0,
	generated INTEGER NOT NULL DEFAULT 0,
	matched INTEGER NOT NULL DEFAULT 0,
	new INTEGER NOT NULL DEFAULT 0,
	warnings INTEGER NOT NULL DEFAULT 0,
	summary TEXT NOT NULL DEFAULT '',
	snapshot TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_cycle_runs_started_at ON cycle_runs(started_at);`

const dayLayout = "2006-01-02"

var runColumns = []string{"id", "day", "started_at", "status", "previous", "generated", "matched", "new", "warnings", "summary", "snapshot"}

// SQLiteRepository keeps the cycle run history in a local SQLite file.
type SQLiteRepository struct {
	db *sql.DB
}

var _ ports.RunRepository = (*SQLiteRepository)(nil)

// OpenSQLite creates the database file and schema when missing.
func OpenSQLite(path string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Close releases the underlying connection.
func (r *SQLiteRepository) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveRun upserts a run by ID.
func (r *SQLiteRepository) SaveRun(ctx context.Context, run domain.CycleRun) error {
	if r.db == nil {
		return nil
	}

	query, args, err := sq.Insert("cycle_runs").
		Columns(runColumns...).
		Values(
			run.ID,
			run.Day.UTC().Format(dayLayout),
			run.StartedAt.UTC().UnixMilli(),
			string(run.Status),
			run.Previous,
			run.Generated,
			run.Matched,
			run.New,
			run.Warnings,
			run.Summary,
			run.Snapshot,
		).
		Suffix(`ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			previous = excluded.previous,
			generated = excluded.generated,
			matched = excluded.matched,
			new = excluded.new,
			warnings = excluded.warnings,
			summary = excluded.summary,
			snapshot = excluded.snapshot`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (r *SQLiteRepository) RecentRuns(ctx context.Context, limit int) ([]domain.CycleRun, error) {
	if r.db == nil {
		return nil, nil
	}

	builder := sq.Select(runColumns...).From("cycle_runs").OrderBy("started_at DESC", "id DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.CycleRun
	for rows.Next() {
		var (
			run     domain.CycleRun
			day     string
			started int64
			status  string
		)
		if err := rows.Scan(&run.ID, &day, &started, &status, &run.Previous, &run.Generated,
			&run.Matched, &run.New, &run.Warnings, &run.Summary, &run.Snapshot); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if run.Day, err = time.Parse(dayLayout, day); err != nil {
			return nil, fmt.Errorf("parse day %q: %w", day, err)
		}
		run.StartedAt = time.UnixMilli(started).UTC()
		run.Status = domain.CycleStatus(status)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return runs, nil
}
