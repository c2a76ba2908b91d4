// Package marketdata fetches daily bars and cash dividends from the Alpaca
// market-data API and prepares them for simulation: date-keyed close maps,
// forward-filled grids, and dividend-adjusted day returns.
package marketdata

import (
	"math"

	"maestro/internal/domain"
)

// CloseMap converts a bar series into a date→close map.
func CloseMap(bars []domain.Bar) map[string]float64 {
	out := make(map[string]float64, len(bars))
	for _, b := range bars {
		out[b.Date()] = b.Close
	}
	return out
}

// ForwardFill returns a copy of closes aligned to the grid, carrying the
// last observed close across gaps. Grid dates before the first observation
// stay absent.
func ForwardFill(closes map[string]float64, grid []string) map[string]float64 {
	out := make(map[string]float64, len(grid))
	last := math.NaN()
	for _, date := range grid {
		if v, ok := closes[date]; ok && isFinite(v) {
			last = v
		}
		if !math.IsNaN(last) {
			out[date] = last
		}
	}
	return out
}

// DayReturn computes the total return realized from the decision date's
// close to the held date's close: price return plus any cash dividend going
// ex on the held date, reinvested at the decision-date close.
//
// Missing or non-finite prices on either date yield zero: the symbol is
// treated as flat for the day, not as an error.
func DayReturn(closes map[string]float64, divs domain.DividendMap, decision, held string) float64 {
	prev, okPrev := closes[decision]
	cur, okCur := closes[held]
	if !okPrev || !okCur || !isFinite(prev) || !isFinite(cur) || prev <= 0 {
		return 0
	}

	ret := cur/prev - 1
	if cash, ok := divs[held]; ok && isFinite(cash) {
		ret += cash / prev
	}
	if !isFinite(ret) {
		return 0
	}
	return ret
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
