// Package flowgraph evaluates the node/edge representation of a strategy: a
// directed graph of start, gate, weights, and portfolio nodes connected by
// labeled edges. It solves the same allocation problem as the element tree
// and produces the same result shape.
package flowgraph

import (
	"encoding/json"
	"fmt"
	"os"

	"maestro/internal/element"
	"maestro/internal/indicator"
)

// Node type tags.
const (
	TypeStart     = "start"
	TypeGate      = "gate"
	TypeWeights   = "weights"
	TypePortfolio = "portfolio"
)

// Edge labels used by gate nodes.
const (
	LabelThen = "then"
	LabelElse = "else"
)

// Holding is one ticker/percentage pair declared by a portfolio node.
type Holding struct {
	Symbol  string  `json:"symbol"`
	Percent float64 `json:"percent"`
}

// Node is one vertex of the flow graph. Type selects which fields apply.
type Node struct {
	ID         string              `json:"id"`
	Type       string              `json:"type"`
	Conditions []element.Condition `json:"conditions,omitempty"` // gate
	Holdings   []Holding           `json:"holdings,omitempty"`   // portfolio
}

// Edge is a directed connection between two nodes. Weights-node edges carry
// the percentage routed along them; gate-node edges carry a then/else label.
type Edge struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Label  string  `json:"label,omitempty"`
	Weight float64 `json:"weight,omitempty"`
}

// Graph is a complete flow-graph strategy definition.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// LoadFile reads a flow-graph strategy definition from disk.
func LoadFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing flow graph %s: %w", path, err)
	}
	return &g, nil
}

// node returns the node with the given id.
func (g *Graph) node(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// outgoing returns all edges leaving the given node, in declaration order.
func (g *Graph) outgoing(id string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.Source == id {
			out = append(out, e)
		}
	}
	return out
}

// start returns the single start node.
func (g *Graph) start() (Node, error) {
	var found []Node
	for _, n := range g.Nodes {
		if n.Type == TypeStart {
			found = append(found, n)
		}
	}
	switch len(found) {
	case 0:
		return Node{}, fmt.Errorf("flow graph has no start node")
	case 1:
		return found[0], nil
	}
	return Node{}, fmt.Errorf("flow graph has %d start nodes, want 1", len(found))
}

// CollectIndicators gathers every indicator reference in the graph exactly
// once per canonical key: gate condition operands plus a CURRENT_PRICE
// request per portfolio holding.
func CollectIndicators(g *Graph) []indicator.Request {
	var reqs []indicator.Request
	for _, n := range g.Nodes {
		switch n.Type {
		case TypeGate:
			for _, cond := range n.Conditions {
				reqs = append(reqs, cond.Left.Request())
				if cond.Right != nil {
					reqs = append(reqs, cond.Right.Request())
				}
			}
		case TypePortfolio:
			for _, h := range n.Holdings {
				reqs = append(reqs, indicator.Request{Symbol: h.Symbol, Type: "CURRENT_PRICE"})
			}
		}
	}
	return indicator.Dedupe(reqs)
}

// Symbols returns every ticker symbol held by any portfolio node,
// deduplicated in declaration order.
func Symbols(g *Graph) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, n := range g.Nodes {
		if n.Type != TypePortfolio {
			continue
		}
		for _, h := range n.Holdings {
			if _, dup := seen[h.Symbol]; dup {
				continue
			}
			seen[h.Symbol] = struct{}{}
			out = append(out, h.Symbol)
		}
	}
	return out
}
