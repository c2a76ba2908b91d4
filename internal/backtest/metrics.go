package backtest

import (
	"math"

	"maestro/internal/domain"
)

// tradingDaysPerYear is the annualization base for daily series.
const tradingDaysPerYear = 252

// denomFloor guards every metric denominator against division by zero.
const denomFloor = 1e-9

// ComputeMetrics summarizes an equity curve of cumulative growth factors.
//
// Daily returns are adjacent ratios with non-finite and zero-previous pairs
// filtered out; variance is population variance (denominator n). Total
// return uses the first and last finite, non-zero equity values found by
// scanning from the ends inward. Sortino replaces volatility with downside
// deviation computed over negative returns only. Curves with fewer than two
// valid points yield the zero-value struct.
func ComputeMetrics(equity []float64) domain.Metrics {
	var m domain.Metrics
	if len(equity) < 2 {
		return m
	}

	first, last, ok := endpointValues(equity)
	if !ok {
		return m
	}

	returns := dailyReturns(equity)
	n := len(returns)
	if n == 0 {
		return m
	}

	m.TotalReturn = last/first - 1
	if growth := last / first; growth > 0 {
		m.CAGR = math.Pow(growth, tradingDaysPerYear/float64(n)) - 1
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(n)

	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(n)
	dailyVol := math.Sqrt(variance)

	if dailyVol > 0 {
		m.AnnualVolatility = dailyVol * math.Sqrt(tradingDaysPerYear)
		m.Sharpe = mean / math.Max(dailyVol, denomFloor) * math.Sqrt(tradingDaysPerYear)
	}

	// Downside deviation: population mean square of the negative returns,
	// denominator floored at one when no negatives exist.
	var downSq float64
	negatives := 0
	for _, r := range returns {
		if r < 0 {
			downSq += r * r
			negatives++
		}
	}
	downDenom := negatives
	if downDenom == 0 {
		downDenom = 1
	}
	downsideDev := math.Sqrt(downSq / float64(downDenom))
	if downsideDev > 0 {
		m.Sortino = mean / math.Max(downsideDev, denomFloor) * math.Sqrt(tradingDaysPerYear)
	}

	m.MaxDrawdown = maxDrawdown(equity)
	return m
}

// dailyReturns derives adjacent-ratio returns, skipping pairs with a
// non-finite member, a zero previous value, or a non-finite ratio.
func dailyReturns(equity []float64) []float64 {
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev, cur := equity[i-1], equity[i]
		if !isFinite(prev) || !isFinite(cur) || prev == 0 {
			continue
		}
		r := cur/prev - 1
		if !isFinite(r) {
			continue
		}
		returns = append(returns, r)
	}
	return returns
}

// endpointValues scans from both ends inward for the first and last finite,
// non-zero equity values, guarding against stray zeros at the edges.
func endpointValues(equity []float64) (first, last float64, ok bool) {
	i := 0
	for i < len(equity) && (!isFinite(equity[i]) || equity[i] == 0) {
		i++
	}
	j := len(equity) - 1
	for j >= 0 && (!isFinite(equity[j]) || equity[j] == 0) {
		j--
	}
	if i >= j {
		return 0, 0, false
	}
	return equity[i], equity[j], true
}

// maxDrawdown tracks a running peak over strictly positive finite values and
// returns the most negative (v-peak)/peak observed.
func maxDrawdown(equity []float64) float64 {
	peak := 0.0
	worst := 0.0
	for _, v := range equity {
		if !isFinite(v) || v <= 0 {
			continue
		}
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (v - peak) / math.Max(peak, denomFloor); dd < worst {
				worst = dd
			}
		}
	}
	return worst
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
