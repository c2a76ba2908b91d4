package backtest

import (
	"math"
	"testing"

	"maestro/internal/domain"
)

func zeroMetrics() domain.Metrics { return domain.Metrics{} }

func TestComputeMetricsTwoPointCurve(t *testing.T) {
	m := ComputeMetrics([]float64{1.0, 1.10})
	if math.Abs(m.TotalReturn-0.10) > 1e-12 {
		t.Errorf("TotalReturn = %v, want 0.10", m.TotalReturn)
	}
	wantCAGR := math.Pow(1.10, 252) - 1
	if math.Abs(m.CAGR-wantCAGR) > 1e-6 {
		t.Errorf("CAGR = %v, want %v", m.CAGR, wantCAGR)
	}
	// A single return has zero variance: the ratio metrics stay zero.
	if m.AnnualVolatility != 0 || m.Sharpe != 0 {
		t.Errorf("zero-variance curve: vol=%v sharpe=%v, want 0", m.AnnualVolatility, m.Sharpe)
	}
}

func TestComputeMetricsFlatCurve(t *testing.T) {
	m := ComputeMetrics([]float64{1.0, 1.0, 1.0, 1.0})
	if m != (zeroMetrics()) {
		t.Errorf("flat curve metrics = %+v, want all zero", m)
	}
}

func TestComputeMetricsMaxDrawdown(t *testing.T) {
	m := ComputeMetrics([]float64{1.0, 1.2, 0.9, 1.5})
	want := (0.9 - 1.2) / 1.2
	if math.Abs(m.MaxDrawdown-want) > 1e-12 {
		t.Errorf("MaxDrawdown = %v, want %v", m.MaxDrawdown, want)
	}
}

func TestComputeMetricsMonotonicRiseHasNoDrawdown(t *testing.T) {
	m := ComputeMetrics([]float64{1.0, 1.1, 1.2, 1.3})
	if m.MaxDrawdown != 0 {
		t.Errorf("MaxDrawdown = %v, want 0", m.MaxDrawdown)
	}
	if m.AnnualVolatility <= 0 || m.Sharpe <= 0 {
		t.Errorf("rising curve: vol=%v sharpe=%v, want positive", m.AnnualVolatility, m.Sharpe)
	}
	// No negative returns: downside deviation is zero, so Sortino stays
	// at its zero value rather than dividing by the floor.
	if m.Sortino != 0 {
		t.Errorf("Sortino = %v, want 0 when no negative returns exist", m.Sortino)
	}
}

func TestComputeMetricsSortino(t *testing.T) {
	equity := []float64{1.0, 1.1, 1.045, 1.15}
	m := ComputeMetrics(equity)
	if m.Sortino == 0 {
		t.Fatal("Sortino should be computed when negative returns exist")
	}
	if m.Sortino <= m.Sharpe {
		// One mild down day versus two up days: downside deviation is
		// smaller than total volatility, so Sortino exceeds Sharpe.
		t.Errorf("Sortino (%v) should exceed Sharpe (%v) here", m.Sortino, m.Sharpe)
	}
}

func TestComputeMetricsDegenerateInputs(t *testing.T) {
	zero := zeroMetrics()
	for name, equity := range map[string][]float64{
		"empty":        nil,
		"single point": {1.0},
		"all zeros":    {0, 0, 0},
		"all NaN":      {math.NaN(), math.NaN()},
	} {
		if m := ComputeMetrics(equity); m != zero {
			t.Errorf("%s: metrics = %+v, want all zero", name, m)
		}
	}
}

func TestComputeMetricsSkipsEdgeZeros(t *testing.T) {
	m := ComputeMetrics([]float64{0, 1.0, 1.10, 0})
	if math.Abs(m.TotalReturn-0.10) > 1e-12 {
		t.Errorf("TotalReturn = %v, want 0.10 from the inner endpoints", m.TotalReturn)
	}
}

func TestDailyReturnsFiltering(t *testing.T) {
	returns := dailyReturns([]float64{1.0, 1.1, math.NaN(), 1.2, 0, 1.3})
	// NaN members and zero previous values break their adjacencies; the
	// surviving pairs are (1.0, 1.1) and (1.2, 0).
	if len(returns) != 2 {
		t.Fatalf("got %d returns, want 2: %v", len(returns), returns)
	}
	if math.Abs(returns[0]-0.1) > 1e-12 || returns[1] != -1 {
		t.Errorf("returns = %v, want [0.1, -1]", returns)
	}
}
