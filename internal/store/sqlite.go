package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"maestro/internal/domain"
)

// Compile-time interface check.
var _ RunStore = (*SQLiteStore)(nil)

// SQLiteStore implements RunStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const runsSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	created_at    INTEGER NOT NULL,
	start_date    TEXT NOT NULL,
	end_date      TEXT NOT NULL,
	benchmark     TEXT NOT NULL DEFAULT '',
	days          INTEGER NOT NULL,
	total_return  REAL NOT NULL,
	cagr          REAL NOT NULL,
	volatility    REAL NOT NULL,
	sharpe        REAL NOT NULL,
	sortino       REAL NOT NULL,
	max_drawdown  REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs (created_at DESC);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures
// the runs schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(runsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating runs schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun inserts a run record.
func (s *SQLiteStore) SaveRun(ctx context.Context, run RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (
			id, created_at, start_date, end_date, benchmark, days,
			total_return, cagr, volatility, sharpe, sortino, max_drawdown
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.CreatedAt.UnixMilli(),
		run.StartDate,
		run.EndDate,
		run.Benchmark,
		run.Days,
		run.Metrics.TotalReturn,
		run.Metrics.CAGR,
		run.Metrics.AnnualVolatility,
		run.Metrics.Sharpe,
		run.Metrics.Sortino,
		run.Metrics.MaxDrawdown,
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first, up to limit.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, start_date, end_date, benchmark, days,
		       total_return, cagr, volatility, sharpe, sortino, max_drawdown
		FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var (
			run       RunRecord
			createdMs int64
			m         domain.Metrics
		)
		if err := rows.Scan(
			&run.ID, &createdMs, &run.StartDate, &run.EndDate, &run.Benchmark, &run.Days,
			&m.TotalReturn, &m.CAGR, &m.AnnualVolatility, &m.Sharpe, &m.Sortino, &m.MaxDrawdown,
		); err != nil {
			return nil, err
		}
		run.CreatedAt = time.UnixMilli(createdMs)
		run.Metrics = m
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
