// Package store provides persistence for the maestro platform: a Parquet
// bar cache that spares repeated market-data fetches, and a SQLite ledger of
// completed backtest runs.
package store

import (
	"context"
	"time"

	"maestro/internal/domain"
)

// BarCache caches daily bar series fetched from the market-data source.
type BarCache interface {
	// WriteBars persists a batch of bars, merging with existing data.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns cached bars for the symbol within [start, end],
	// ordered by timestamp.
	ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)

	// Covers reports whether the cache holds the symbol's series for the
	// whole [start, end] window.
	Covers(ctx context.Context, symbol string, start, end time.Time) bool
}

// RunRecord is one completed backtest run.
type RunRecord struct {
	ID        string
	CreatedAt time.Time
	StartDate string
	EndDate   string
	Benchmark string
	Days      int
	Metrics   domain.Metrics
}

// RunStore records completed backtest runs.
type RunStore interface {
	// SaveRun inserts a run record.
	SaveRun(ctx context.Context, run RunRecord) error

	// ListRuns returns the most recent runs, newest first, up to limit.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)

	// Close releases the underlying resources.
	Close() error
}
