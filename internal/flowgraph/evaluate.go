package flowgraph

import (
	"fmt"
	"math"

	"maestro/internal/domain"
	"maestro/internal/element"
	"maestro/internal/indicator"
)

const weightEpsilon = 1e-6

// Evaluate walks the graph once for a single decision date, starting at the
// start node, and returns the resulting ticker allocation. Gate branches are
// resolved against the snapshot values; portfolio nodes emit their declared
// holdings normalized to the weight that reached them.
//
// Converging paths are allowed: a node reached by several branches receives
// each branch's weight. Only a node that reaches itself fails the whole
// evaluation as cyclic.
func Evaluate(g *Graph, values indicator.Values) (domain.EvaluationResult, error) {
	start, err := g.start()
	if err != nil {
		return domain.EvaluationResult{}, err
	}

	w := &walker{
		graph:   g,
		values:  values,
		onPath:  make(map[string]struct{}),
		weights: make(map[string]float64),
	}

	edges := g.outgoing(start.ID)
	if len(edges) != 1 {
		return domain.EvaluationResult{}, fmt.Errorf("start node %s has %d outgoing edges, want 1", start.ID, len(edges))
	}
	if err := w.visit(edges[0].Target, 100); err != nil {
		return domain.EvaluationResult{}, err
	}

	return domain.EvaluationResult{
		Positions: w.normalized(),
		Trace:     w.trace,
		Errors:    w.errs,
	}, nil
}

type walker struct {
	graph   *Graph
	values  indicator.Values
	onPath  map[string]struct{}
	weights map[string]float64
	order   []string
	trace   []string
	errs    []string
}

func (w *walker) tracef(format string, args ...any) {
	w.trace = append(w.trace, fmt.Sprintf(format, args...))
}

func (w *walker) faultf(format string, args ...any) {
	w.errs = append(w.errs, fmt.Sprintf(format, args...))
}

func (w *walker) visit(id string, inherited float64) error {
	if inherited <= 0 {
		return nil
	}
	if _, seen := w.onPath[id]; seen {
		return fmt.Errorf("flow graph cycle at node %s", id)
	}
	w.onPath[id] = struct{}{}
	defer delete(w.onPath, id)

	node, ok := w.graph.node(id)
	if !ok {
		return fmt.Errorf("edge targets unknown node %s", id)
	}

	switch node.Type {
	case TypeGate:
		return w.visitGate(node, inherited)
	case TypeWeights:
		return w.visitWeights(node, inherited)
	case TypePortfolio:
		w.visitPortfolio(node, inherited)
		return nil
	case TypeStart:
		return fmt.Errorf("start node %s reached mid-walk", id)
	}
	return fmt.Errorf("unknown node type %q (node %s)", node.Type, id)
}

// visitGate resolves the node's first condition and follows the then- or
// else-labeled edge. An unresolvable condition falls back to the else edge
// deterministically.
func (w *walker) visitGate(node Node, inherited float64) error {
	if len(node.Conditions) == 0 {
		w.faultf("gate %s: no conditions", node.ID)
		return nil
	}

	passed, ok := w.evalCondition(node, node.Conditions[0])
	if !ok {
		w.faultf("gate %s: condition unresolvable, falling back to else", node.ID)
		passed = false
	}

	label := LabelElse
	if passed {
		label = LabelThen
	}
	w.tracef("gate %s → %s", node.ID, label)

	for _, e := range w.graph.outgoing(node.ID) {
		if e.Label == label {
			return w.visit(e.Target, inherited)
		}
	}
	w.faultf("gate %s: no %s edge", node.ID, label)
	return nil
}

func (w *walker) evalCondition(node Node, cond element.Condition) (bool, bool) {
	left, ok := w.lookup(node.ID, cond.Left)
	if !ok {
		return false, false
	}

	var right float64
	switch {
	case cond.Right != nil:
		right, ok = w.lookup(node.ID, *cond.Right)
		if !ok {
			return false, false
		}
	case cond.Threshold != nil:
		right = *cond.Threshold
		if math.IsNaN(right) || math.IsInf(right, 0) {
			return false, false
		}
	default:
		w.faultf("gate %s: condition has neither threshold nor right reference", node.ID)
		return false, false
	}

	result, ok := element.Compare(left, cond.Operator, right)
	if !ok {
		w.faultf("gate %s: unknown operator %q", node.ID, cond.Operator)
		return false, false
	}
	w.tracef("gate %s: %s (%.4f) %s %.4f = %t", node.ID, cond.Left.Request().Key(), left, cond.Operator, right, result)
	return result, true
}

func (w *walker) lookup(nodeID string, ref element.IndicatorRef) (float64, bool) {
	v, ok := w.values.Get(ref.Request().Key())
	if !ok {
		w.faultf("node %s: no value for %s", nodeID, ref.Request().Key())
		return 0, false
	}
	return v, true
}

// visitWeights fans the inherited weight out along the node's outgoing edges
// by their declared percentages, normalized by their sum. Edges with no
// usable weights split evenly.
func (w *walker) visitWeights(node Node, inherited float64) error {
	edges := w.graph.outgoing(node.ID)
	if len(edges) == 0 {
		w.faultf("weights %s: no outgoing edges", node.ID)
		return nil
	}

	var declared float64
	for _, e := range edges {
		declared += e.Weight
	}
	if declared <= weightEpsilon {
		share := inherited / float64(len(edges))
		for _, e := range edges {
			if err := w.visit(e.Target, share); err != nil {
				return err
			}
		}
		return nil
	}

	for _, e := range edges {
		if err := w.visit(e.Target, inherited*e.Weight/declared); err != nil {
			return err
		}
	}
	return nil
}

// visitPortfolio emits the node's holdings, normalized so they split the
// inherited weight in proportion to their declared percentages.
func (w *walker) visitPortfolio(node Node, inherited float64) {
	if len(node.Holdings) == 0 {
		w.faultf("portfolio %s: no holdings", node.ID)
		return
	}

	var declared float64
	for _, h := range node.Holdings {
		declared += h.Percent
	}
	if declared <= weightEpsilon {
		share := inherited / float64(len(node.Holdings))
		for _, h := range node.Holdings {
			w.addPosition(h.Symbol, share)
		}
		return
	}

	for _, h := range node.Holdings {
		w.addPosition(h.Symbol, inherited*h.Percent/declared)
	}
}

func (w *walker) addPosition(symbol string, weight float64) {
	if _, seen := w.weights[symbol]; !seen {
		w.order = append(w.order, symbol)
	}
	w.weights[symbol] += weight
}

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
