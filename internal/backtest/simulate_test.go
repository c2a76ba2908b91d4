package backtest

import (
	"math"
	"testing"

	"maestro/internal/domain"
)

func holdAll(symbol string) EvalFunc {
	return func(string) ([]domain.Position, []string, error) {
		return []domain.Position{{Symbol: symbol, Weight: 100}}, nil, nil
	}
}

func TestSimulateTwoDayCurve(t *testing.T) {
	grid := []string{"d0", "d1"}
	closes := map[string]map[string]float64{"X": {"d0": 100, "d1": 110}}

	equity, _, err := Simulate(holdAll("X"), closes, nil, grid, false)
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	if len(equity) != 2 || equity[0] != 1.0 {
		t.Fatalf("equity = %v, want [1.0, 1.10]", equity)
	}
	if math.Abs(equity[1]-1.10) > 1e-12 {
		t.Errorf("equity[1] = %v, want 1.10", equity[1])
	}

	m := ComputeMetrics(equity)
	if math.Abs(m.TotalReturn-0.10) > 1e-12 {
		t.Errorf("TotalReturn = %v, want 0.10", m.TotalReturn)
	}
}

func TestSimulateDividendReinvested(t *testing.T) {
	grid := []string{"d0", "d1"}
	closes := map[string]map[string]float64{"X": {"d0": 100, "d1": 110}}
	divs := map[string]domain.DividendMap{"X": {"d1": 2}}

	equity, _, err := Simulate(holdAll("X"), closes, divs, grid, false)
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	if math.Abs(equity[1]-1.12) > 1e-12 {
		t.Errorf("equity[1] = %v, want 1.12 (0.10 price + 0.02 dividend)", equity[1])
	}
}

func TestSimulateUsesDecisionDateOnly(t *testing.T) {
	// The evaluator must never be asked about the held date: each step may
	// only see information as of the decision date.
	grid := []string{"d0", "d1", "d2"}
	closes := map[string]map[string]float64{"X": {"d0": 100, "d1": 100, "d2": 100}}

	var asked []string
	eval := func(date string) ([]domain.Position, []string, error) {
		asked = append(asked, date)
		return []domain.Position{{Symbol: "X", Weight: 100}}, nil, nil
	}

	if _, _, err := Simulate(eval, closes, nil, grid, false); err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	if len(asked) != 2 || asked[0] != "d0" || asked[1] != "d1" {
		t.Errorf("evaluated dates = %v, want [d0 d1]", asked)
	}
}

func TestSimulateBlendedAllocation(t *testing.T) {
	grid := []string{"d0", "d1"}
	closes := map[string]map[string]float64{
		"X": {"d0": 100, "d1": 110}, // +10%
		"Y": {"d0": 50, "d1": 49},   // -2%
	}
	eval := func(string) ([]domain.Position, []string, error) {
		return []domain.Position{
			{Symbol: "X", Weight: 60},
			{Symbol: "Y", Weight: 40},
		}, nil, nil
	}

	equity, _, err := Simulate(eval, closes, nil, grid, false)
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	want := 1 + 0.6*0.10 + 0.4*(-0.02)
	if math.Abs(equity[1]-want) > 1e-12 {
		t.Errorf("equity[1] = %v, want %v", equity[1], want)
	}
}

func TestSimulateMissingSymbolIsFlat(t *testing.T) {
	grid := []string{"d0", "d1"}
	closes := map[string]map[string]float64{"X": {"d0": 100, "d1": 110}}
	eval := func(string) ([]domain.Position, []string, error) {
		return []domain.Position{
			{Symbol: "X", Weight: 50},
			{Symbol: "GHOST", Weight: 50},
		}, nil, nil
	}

	equity, _, err := Simulate(eval, closes, nil, grid, false)
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	if math.Abs(equity[1]-1.05) > 1e-12 {
		t.Errorf("equity[1] = %v, want 1.05 with the unpriced half flat", equity[1])
	}
}

func TestSimulateDebugDetails(t *testing.T) {
	grid := []string{"d0", "d1", "d2"}
	closes := map[string]map[string]float64{"X": {"d0": 100, "d1": 110, "d2": 121}}

	equity, days, err := Simulate(holdAll("X"), closes, nil, grid, true)
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	if len(days) != 2 {
		t.Fatalf("got %d day details, want 2", len(days))
	}
	first := days[0]
	if first.DecisionDate != "d0" || first.HeldDate != "d1" {
		t.Errorf("day 0 dates = %s/%s, want d0/d1", first.DecisionDate, first.HeldDate)
	}
	if math.Abs(first.DayReturn-0.10) > 1e-12 {
		t.Errorf("day 0 return = %v, want 0.10", first.DayReturn)
	}
	if first.Equity != equity[1] {
		t.Errorf("day 0 equity = %v, want %v", first.Equity, equity[1])
	}
}

func TestSimulateHoldMatchesFixedAllocation(t *testing.T) {
	grid := []string{"d0", "d1", "d2"}
	closes := map[string]map[string]float64{"SPY": {"d0": 100, "d1": 102, "d2": 99}}

	held := SimulateHold("SPY", closes, nil, grid)
	direct, _, err := Simulate(holdAll("SPY"), closes, nil, grid, false)
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	for i := range held {
		if held[i] != direct[i] {
			t.Errorf("equity[%d] = %v vs %v", i, held[i], direct[i])
		}
	}
}

func TestSimulateEmptyGrid(t *testing.T) {
	equity, days, err := Simulate(holdAll("X"), nil, nil, nil, true)
	if err != nil || equity != nil || days != nil {
		t.Errorf("empty grid: equity=%v days=%v err=%v, want all nil", equity, days, err)
	}
}
