package backtest

import (
	"maestro/internal/domain"
	"maestro/internal/marketdata"
)

// EvalFunc evaluates the strategy for one decision date, returning the
// normalized target allocation plus any evaluation errors for that date.
type EvalFunc func(date string) ([]domain.Position, []string, error)

// Simulate steps the date grid one trading day at a time. For each pair
// (decisionDate = grid[i-1], heldDate = grid[i]) the strategy is evaluated
// with information available as of the decision date only, and the chosen
// allocation realizes the return from decision close to held close. Equity
// compounds multiplicatively from 1.0 on the first grid date.
//
// closes must already be forward-filled over the grid. A symbol with no
// usable price on either date contributes zero return for that day.
func Simulate(
	eval EvalFunc,
	closes map[string]map[string]float64,
	divs map[string]domain.DividendMap,
	grid []string,
	debug bool,
) ([]float64, []domain.DayDetail, error) {
	if len(grid) == 0 {
		return nil, nil, nil
	}

	equity := make([]float64, len(grid))
	equity[0] = 1.0

	var days []domain.DayDetail
	if debug {
		days = make([]domain.DayDetail, 0, len(grid)-1)
	}

	for i := 1; i < len(grid); i++ {
		decision, held := grid[i-1], grid[i]

		positions, evalErrs, err := eval(decision)
		if err != nil {
			return nil, nil, err
		}

		var dayReturn float64
		for _, pos := range positions {
			symCloses, ok := closes[pos.Symbol]
			if !ok {
				continue
			}
			dayReturn += pos.Weight / 100 * marketdata.DayReturn(symCloses, divs[pos.Symbol], decision, held)
		}

		equity[i] = equity[i-1] * (1 + dayReturn)

		if debug {
			days = append(days, domain.DayDetail{
				DecisionDate: decision,
				HeldDate:     held,
				Positions:    positions,
				DayReturn:    dayReturn,
				Equity:       equity[i],
				Errors:       evalErrs,
			})
		}
	}
	return equity, days, nil
}

// SimulateHold runs the same loop with a fixed 100% allocation to one
// symbol. It produces benchmark curves over the identical date grid.
func SimulateHold(symbol string, closes map[string]map[string]float64, divs map[string]domain.DividendMap, grid []string) []float64 {
	fixed := []domain.Position{{Symbol: symbol, Weight: 100}}
	equity, _, _ := Simulate(func(string) ([]domain.Position, []string, error) {
		return fixed, nil, nil
	}, closes, divs, grid, false)
	return equity
}
