package domain

import (
	"testing"
	"time"
)

func TestYMD(t *testing.T) {
	ts := time.Date(2024, 3, 7, 20, 0, 0, 0, time.UTC)
	if got := YMD(ts); got != "2024-03-07" {
		t.Errorf("YMD = %q, want 2024-03-07", got)
	}

	// Non-UTC timestamps normalize to the UTC date.
	ny, _ := time.LoadLocation("America/New_York")
	if got := YMD(time.Date(2024, 3, 7, 22, 0, 0, 0, ny)); got != "2024-03-08" {
		t.Errorf("YMD for a late-evening New York time = %q, want the UTC date 2024-03-08", got)
	}
}

func TestBarDate(t *testing.T) {
	b := Bar{Symbol: "SPY", Timestamp: time.Date(2024, 1, 2, 5, 0, 0, 0, time.UTC)}
	if got := b.Date(); got != "2024-01-02" {
		t.Errorf("Date = %q, want 2024-01-02", got)
	}
}
