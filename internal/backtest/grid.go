// Package backtest runs historical simulations of declarative strategies:
// it builds the valid trading-date grid, steps the equity loop one day at a
// time without look-ahead, and summarizes the resulting curve.
package backtest

import (
	"fmt"
	"sort"

	"maestro/internal/domain"
	"maestro/internal/indicator"
)

// BuildDateGrid computes the ordered trading-date grid for a simulation.
//
// Candidate start dates are every ticker's first available bar and every
// indicator's first computable date; the effective start is the latest of
// them, since any earlier date would push undefined values into the
// simulation.
// A requested start later than that floor wins; an earlier one is silently
// raised. The grid itself is the date sequence of the reference series (the
// benchmark when it is present, otherwise the lexicographically first
// ticker), clipped to [effectiveStart, requestedEnd].
func BuildDateGrid(
	bars map[string][]domain.Bar,
	firstComputable map[indicator.Key]string,
	requestedStart, requestedEnd string,
	benchmark string,
) ([]string, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("no price series available")
	}

	effectiveStart := ""
	for symbol, series := range bars {
		if len(series) == 0 {
			return nil, fmt.Errorf("symbol %s has no bars", symbol)
		}
		if first := series[0].Date(); first > effectiveStart {
			effectiveStart = first
		}
	}
	for key, first := range firstComputable {
		if first == "" {
			return nil, fmt.Errorf("indicator %s never becomes computable in the fetched history", key)
		}
		if first > effectiveStart {
			effectiveStart = first
		}
	}
	if requestedStart > effectiveStart {
		effectiveStart = requestedStart
	}

	reference := benchmark
	if _, ok := bars[reference]; !ok {
		symbols := make([]string, 0, len(bars))
		for symbol := range bars {
			symbols = append(symbols, symbol)
		}
		sort.Strings(symbols)
		reference = symbols[0]
	}

	var grid []string
	prev := ""
	for _, b := range bars[reference] {
		date := b.Date()
		if date < effectiveStart {
			continue
		}
		if requestedEnd != "" && date > requestedEnd {
			break
		}
		if date == prev {
			continue
		}
		grid = append(grid, date)
		prev = date
	}
	if len(grid) == 0 {
		return nil, fmt.Errorf("no trading dates in [%s, %s]", effectiveStart, requestedEnd)
	}
	return grid, nil
}
