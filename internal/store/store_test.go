package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"maestro/internal/domain"
)

func day(date string) time.Time {
	t, _ := time.Parse(domain.YMDLayout, date)
	return t
}

func testBars(symbol string, startDate string, n int) []domain.Bar {
	start := day(startDate)
	bars := make([]domain.Bar, n)
	for i := range bars {
		close := 100.0 + float64(i)
		bars[i] = domain.Bar{
			Symbol:    symbol,
			Timestamp: start.AddDate(0, 0, i),
			Open:      close - 0.5,
			High:      close + 1,
			Low:       close - 1,
			Close:     close,
			Volume:    1000,
		}
	}
	return bars
}

func TestParquetStoreRoundtrip(t *testing.T) {
	ctx := context.Background()
	s := NewParquetStore(t.TempDir())
	bars := testBars("SPY", "2024-01-02", 5)

	if err := s.WriteBars(ctx, bars); err != nil {
		t.Fatalf("WriteBars failed: %v", err)
	}

	got, err := s.ReadBars(ctx, "SPY", day("2024-01-02"), day("2024-01-06"))
	if err != nil {
		t.Fatalf("ReadBars failed: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("got %d bars, want 5", len(got))
	}
	for i := range got {
		if got[i].Close != bars[i].Close {
			t.Errorf("bar %d close = %v, want %v", i, got[i].Close, bars[i].Close)
		}
		if !got[i].Timestamp.Equal(bars[i].Timestamp) {
			t.Errorf("bar %d timestamp = %v, want %v", i, got[i].Timestamp, bars[i].Timestamp)
		}
	}
}

func TestParquetStoreReadWindow(t *testing.T) {
	ctx := context.Background()
	s := NewParquetStore(t.TempDir())
	if err := s.WriteBars(ctx, testBars("SPY", "2024-01-02", 10)); err != nil {
		t.Fatalf("WriteBars failed: %v", err)
	}

	got, err := s.ReadBars(ctx, "SPY", day("2024-01-04"), day("2024-01-06"))
	if err != nil {
		t.Fatalf("ReadBars failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d bars, want 3 inside the window", len(got))
	}
	if got[0].Date() != "2024-01-04" || got[2].Date() != "2024-01-06" {
		t.Errorf("window = [%s, %s], want [2024-01-04, 2024-01-06]", got[0].Date(), got[2].Date())
	}
}

func TestParquetStoreMergeOverlap(t *testing.T) {
	ctx := context.Background()
	s := NewParquetStore(t.TempDir())

	if err := s.WriteBars(ctx, testBars("SPY", "2024-01-02", 3)); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	// Overlapping write with an updated close on 2024-01-03; incoming data
	// wins.
	overlap := testBars("SPY", "2024-01-03", 3)
	overlap[0].Close = 999
	if err := s.WriteBars(ctx, overlap); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	got, err := s.ReadBars(ctx, "SPY", day("2024-01-02"), day("2024-01-06"))
	if err != nil {
		t.Fatalf("ReadBars failed: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("got %d bars, want 4 after merging", len(got))
	}
	if got[1].Close != 999 {
		t.Errorf("merged bar close = %v, want the incoming 999", got[1].Close)
	}
}

func TestParquetStoreSpansYears(t *testing.T) {
	ctx := context.Background()
	s := NewParquetStore(t.TempDir())
	if err := s.WriteBars(ctx, testBars("SPY", "2023-12-30", 5)); err != nil {
		t.Fatalf("WriteBars failed: %v", err)
	}

	got, err := s.ReadBars(ctx, "SPY", day("2023-12-30"), day("2024-01-03"))
	if err != nil {
		t.Fatalf("ReadBars failed: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("got %d bars, want 5 across the year boundary", len(got))
	}
}

func TestParquetStoreCovers(t *testing.T) {
	ctx := context.Background()
	s := NewParquetStore(t.TempDir())
	if err := s.WriteBars(ctx, testBars("SPY", "2024-01-02", 5)); err != nil {
		t.Fatalf("WriteBars failed: %v", err)
	}

	if !s.Covers(ctx, "SPY", day("2024-01-02"), day("2024-01-06")) {
		t.Error("cache should cover the written window")
	}
	if s.Covers(ctx, "SPY", day("2024-01-02"), day("2024-02-01")) {
		t.Error("cache should not cover dates past the last bar")
	}
	if s.Covers(ctx, "QQQ", day("2024-01-02"), day("2024-01-06")) {
		t.Error("cache should not cover an unwritten symbol")
	}
}

func TestSQLiteStoreSaveAndList(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		run := RunRecord{
			ID:        string(rune('a' + i)),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			StartDate: "2020-01-02",
			EndDate:   "2024-05-31",
			Benchmark: "SPY",
			Days:      1100,
			Metrics:   domain.Metrics{TotalReturn: 0.5 + float64(i)},
		}
		if err := s.SaveRun(ctx, run); err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}
	}

	runs, err := s.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want the limit of 2", len(runs))
	}
	if runs[0].ID != "c" || runs[1].ID != "b" {
		t.Errorf("order = [%s, %s], want newest first [c, b]", runs[0].ID, runs[1].ID)
	}
	if runs[0].Metrics.TotalReturn != 2.5 {
		t.Errorf("TotalReturn = %v, want 2.5", runs[0].Metrics.TotalReturn)
	}
	if !runs[0].CreatedAt.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("CreatedAt = %v, want %v", runs[0].CreatedAt, base.Add(2*time.Minute))
	}
}

func TestSQLiteStoreListEmpty(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()

	runs, err := s.ListRuns(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("got %d runs, want none", len(runs))
	}
}
