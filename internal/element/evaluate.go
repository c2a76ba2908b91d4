package element

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"maestro/internal/domain"
	"maestro/internal/indicator"
)

// weightEpsilon bounds the rounding slack tolerated when summing declared
// sibling weights and when deciding whether the final total is zero.
const weightEpsilon = 1e-6

// ErrEmptyStrategy is returned when the element list has no nodes.
var ErrEmptyStrategy = errors.New("strategy has no elements")

// Evaluate interprets the strategy tree against one point-in-time snapshot
// of indicator values and returns the resulting ticker allocation.
//
// It is pure and synchronous. Each top-level element starts with an
// inherited weight of 100, distributed downward multiplicatively. Faults
// local to one sub-tree (missing indicator value, degenerate scale range)
// are recorded in Errors and that sub-tree contributes nothing; siblings
// keep evaluating. Structural faults (empty tree, unknown element type)
// fail the whole evaluation.
func Evaluate(elements []Element, values indicator.Values) (domain.EvaluationResult, error) {
	if len(elements) == 0 {
		return domain.EvaluationResult{}, ErrEmptyStrategy
	}

	w := &walker{values: values, weights: make(map[string]float64)}
	for _, el := range elements {
		if err := w.visit(el, 100); err != nil {
			return domain.EvaluationResult{}, err
		}
	}

	return domain.EvaluationResult{
		Positions: w.normalized(),
		Trace:     w.trace,
		Errors:    w.errs,
	}, nil
}

type walker struct {
	values  indicator.Values
	weights map[string]float64
	order   []string // symbols in first-contribution order
	trace   []string
	errs    []string
}

func (w *walker) tracef(format string, args ...any) {
	w.trace = append(w.trace, fmt.Sprintf(format, args...))
}

func (w *walker) faultf(format string, args ...any) {
	w.errs = append(w.errs, fmt.Sprintf(format, args...))
}

// visit dispatches on the element type. The returned error is structural and
// aborts the whole evaluation; local faults are absorbed into w.errs.
func (w *walker) visit(el Element, inherited float64) error {
	if inherited <= 0 {
		return nil
	}

	switch el.Type {
	case TypeTicker:
		w.addPosition(el.Symbol, inherited)
		return nil
	case TypeWeight:
		return w.visitWeight(el, inherited)
	case TypeGate:
		return w.visitGate(el, inherited)
	case TypeScale:
		return w.visitScale(el, inherited)
	case TypeSort:
		return w.visitSort(el, inherited)
	}
	return fmt.Errorf("unknown element type %q", el.Type)
}

func (w *walker) addPosition(symbol string, weight float64) {
	if _, seen := w.weights[symbol]; !seen {
		w.order = append(w.order, symbol)
	}
	w.weights[symbol] += weight
}

func (w *walker) visitWeight(el Element, inherited float64) error {
	if len(el.Children) == 0 {
		w.faultf("%s: no children", el.label())
		return nil
	}

	switch el.Mode {
	case ModeEqual, "":
		share := inherited / float64(len(el.Children))
		for _, child := range el.Children {
			if err := w.visit(child, share); err != nil {
				return err
			}
		}
	case ModeDefined:
		for _, child := range el.Children {
			if err := w.visit(child, inherited*child.Weight/100); err != nil {
				return err
			}
		}
	default:
		w.faultf("%s: unknown weight mode %q", el.label(), el.Mode)
	}
	return nil
}

// visitBranch carries the full branch weight into the children, re-normalized
// by their declared weights. A lone child, or siblings whose declared weights
// do not add up to anything usable, split evenly.
func (w *walker) visitBranch(children []Element, inherited float64) error {
	if len(children) == 0 {
		return nil
	}

	var declared float64
	for _, child := range children {
		declared += child.Weight
	}
	if declared <= weightEpsilon {
		share := inherited / float64(len(children))
		for _, child := range children {
			if err := w.visit(child, share); err != nil {
				return err
			}
		}
		return nil
	}

	for _, child := range children {
		if err := w.visit(child, inherited*child.Weight/declared); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) visitGate(el Element, inherited float64) error {
	if len(el.Conditions) == 0 {
		w.faultf("%s: gate has no conditions", el.label())
		return nil
	}

	passed, ok := w.combineConditions(el)
	if !ok {
		// Unresolvable condition: deterministic fallback to the else branch.
		w.faultf("%s: condition unresolvable, falling back to else", el.label())
		passed = false
	}

	branch := el.Else
	branchName := "else"
	if passed {
		branch = el.Then
		branchName = "then"
	}
	w.tracef("%s → %s", el.label(), branchName)
	return w.visitBranch(branch, inherited)
}

// combineConditions resolves the gate's condition list under its condition
// mode. The second return value is false when any needed operand is not a
// finite number on this snapshot.
func (w *walker) combineConditions(el Element) (bool, bool) {
	mode := el.ConditionMode
	if mode == "" {
		mode = CondModeIf
	}

	if mode == CondModeIf {
		return w.evalCondition(el, el.Conditions[0])
	}

	results := make([]bool, len(el.Conditions))
	for i, cond := range el.Conditions {
		r, ok := w.evalCondition(el, cond)
		if !ok {
			return false, false
		}
		results[i] = r
	}

	switch mode {
	case CondModeIfAll:
		for _, r := range results {
			if !r {
				return false, true
			}
		}
		return true, true
	case CondModeIfAny:
		for _, r := range results {
			if r {
				return true, true
			}
		}
		return false, true
	case CondModeIfNone:
		for _, r := range results {
			if r {
				return false, true
			}
		}
		return true, true
	}
	w.faultf("%s: unknown condition mode %q", el.label(), mode)
	return false, false
}

func (w *walker) evalCondition(el Element, cond Condition) (bool, bool) {
	left, ok := w.lookup(el, cond.Left)
	if !ok {
		return false, false
	}

	var right float64
	switch {
	case cond.Right != nil:
		right, ok = w.lookup(el, *cond.Right)
		if !ok {
			return false, false
		}
	case cond.Threshold != nil:
		right = *cond.Threshold
		if math.IsNaN(right) || math.IsInf(right, 0) {
			return false, false
		}
	default:
		w.faultf("%s: condition has neither threshold nor right reference", el.label())
		return false, false
	}

	result, ok := Compare(left, cond.Operator, right)
	if !ok {
		w.faultf("%s: unknown operator %q", el.label(), cond.Operator)
		return false, false
	}
	w.tracef("%s: %s (%.4f) %s %.4f = %t", el.label(), cond.Left.Request().Key(), left, cond.Operator, right, result)
	return result, true
}

func (w *walker) lookup(el Element, ref IndicatorRef) (float64, bool) {
	v, ok := w.values.Get(ref.Request().Key())
	if !ok {
		w.faultf("%s: no value for %s", el.label(), ref.Request().Key())
		return 0, false
	}
	return v, true
}

// Compare applies a comparison operator to two operands. The second return
// value is false for unknown operators. The flow-graph evaluator shares this
// so both representations resolve conditions identically.
func Compare(left float64, op string, right float64) (bool, bool) {
	switch op {
	case OpGT:
		return left > right, true
	case OpLT:
		return left < right, true
	case OpGTE:
		return left >= right, true
	case OpLTE:
		return left <= right, true
	case OpEQ:
		return left == right, true
	case OpNEQ:
		return left != right, true
	}
	return false, false
}

func (w *walker) visitScale(el Element, inherited float64) error {
	if el.Scale == nil {
		w.faultf("%s: missing scale config", el.label())
		return nil
	}
	cfg := el.Scale
	span := cfg.RangeMax - cfg.RangeMin
	if span <= 0 {
		w.faultf("%s: degenerate range [%v, %v]", el.label(), cfg.RangeMin, cfg.RangeMax)
		return nil
	}

	ref := IndicatorRef{Symbol: cfg.Symbol, Type: cfg.Type, Params: cfg.Params}
	v, ok := w.lookup(el, ref)
	if !ok {
		return nil
	}

	f := (v - cfg.RangeMin) / span
	if f < 0 {
		f = 0
	} else if f > 1 {
		f = 1
	}
	w.tracef("%s: %s (%.4f) → blend %.4f", el.label(), ref.Request().Key(), v, f)

	if err := w.visitBranch(el.From, inherited*(1-f)); err != nil {
		return err
	}
	return w.visitBranch(el.To, inherited*f)
}

func (w *walker) visitSort(el Element, inherited float64) error {
	if el.SortBy == nil {
		w.faultf("%s: missing sort indicator", el.label())
		return nil
	}
	if len(el.Children) == 0 {
		w.faultf("%s: no children", el.label())
		return nil
	}
	count := el.Count
	if count <= 0 || count > len(el.Children) {
		count = len(el.Children)
	}

	// Rank each child by the sort indicator evaluated on the child's own
	// symbol (first reachable ticker). Children with no resolvable value
	// drop out of the ranking.
	type ranked struct {
		idx   int
		value float64
	}
	var rankable []ranked
	for i, child := range el.Children {
		symbol := firstTicker(child)
		if symbol == "" {
			w.faultf("%s: child %s has no reachable ticker", el.label(), child.label())
			continue
		}
		ref := IndicatorRef{Symbol: symbol, Type: el.SortBy.Type, Params: el.SortBy.Params}
		v, ok := w.lookup(el, ref)
		if !ok {
			continue
		}
		rankable = append(rankable, ranked{idx: i, value: v})
	}
	if len(rankable) == 0 {
		return nil
	}

	// Descending by value; ties keep input order.
	sort.SliceStable(rankable, func(a, b int) bool {
		return rankable[a].value > rankable[b].value
	})
	if count > len(rankable) {
		count = len(rankable)
	}

	kept := make([]Element, 0, count)
	keptIdx := make([]int, 0, count)
	for _, r := range rankable[:count] {
		keptIdx = append(keptIdx, r.idx)
	}
	sort.Ints(keptIdx) // retained children keep their original sibling order
	for _, i := range keptIdx {
		kept = append(kept, el.Children[i])
		w.tracef("%s: keeping %s", el.label(), el.Children[i].label())
	}

	return w.visitBranch(kept, inherited)
}

// firstTicker returns the first reachable ticker symbol in the sub-tree, in
// document order.
func firstTicker(el Element) string {
	if el.Type == TypeTicker {
		return el.Symbol
	}
	for _, group := range [][]Element{el.Children, el.Then, el.Else, el.From, el.To} {
		for _, child := range group {
			if s := firstTicker(child); s != "" {
				return s
			}
		}
	}
	return ""
}

// normalized aggregates per-symbol weights and rescales the total to exactly
// 100. A zero total yields an empty position list.
func (w *walker) normalized() []domain.Position {
	var total float64
	for _, weight := range w.weights {
		total += weight
	}
	if total <= weightEpsilon {
		return nil
	}

	positions := make([]domain.Position, 0, len(w.order))
	for _, symbol := range w.order {
		positions = append(positions, domain.Position{
			Symbol: symbol,
			Weight: w.weights[symbol] * 100 / total,
		})
	}
	return positions
}
