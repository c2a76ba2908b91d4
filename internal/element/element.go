// Package element defines the declarative strategy tree (ticker, weight,
// gate, scale, and sort nodes) together with its evaluator, structural
// validator, and indicator-requirement collector.
package element

import (
	"encoding/json"
	"fmt"
	"os"

	"maestro/internal/indicator"
)

// Element type tags. The set is closed: the validator and the evaluator both
// switch over exactly these values, and anything else is a structural error.
const (
	TypeTicker = "ticker"
	TypeWeight = "weight"
	TypeGate   = "gate"
	TypeScale  = "scale"
	TypeSort   = "sort"
)

// Weight-node distribution modes.
const (
	ModeEqual   = "equal"
	ModeDefined = "defined"
)

// Gate condition modes.
const (
	CondModeIf     = "if"
	CondModeIfAll  = "if_all"
	CondModeIfAny  = "if_any"
	CondModeIfNone = "if_none"
)

// Comparison operators.
const (
	OpGT  = "gt"
	OpLT  = "lt"
	OpGTE = "gte"
	OpLTE = "lte"
	OpEQ  = "eq"
	OpNEQ = "neq"
)

// IndicatorRef references one indicator series: a symbol, an indicator type,
// and parameters. Sort nodes leave Symbol empty and resolve it per child.
type IndicatorRef struct {
	Symbol string             `json:"symbol,omitempty"`
	Type   string             `json:"indicator_type"`
	Params map[string]float64 `json:"params,omitempty"`
}

// Request converts the reference into an indicator.Request.
func (r IndicatorRef) Request() indicator.Request {
	return indicator.Request{Symbol: r.Symbol, Type: r.Type, Params: r.Params}
}

// Condition is one indicator comparison inside a gate. The right-hand side
// is either a fixed threshold or another indicator reference.
type Condition struct {
	Left      IndicatorRef  `json:"left"`
	Operator  string        `json:"operator"`
	Threshold *float64      `json:"threshold,omitempty"`
	Right     *IndicatorRef `json:"right,omitempty"`
}

// ScaleConfig drives a scale node: the blend fraction is where the indicator
// value falls within [RangeMin, RangeMax], clamped at the ends.
type ScaleConfig struct {
	Symbol   string             `json:"symbol"`
	Type     string             `json:"indicator_type"`
	Params   map[string]float64 `json:"params,omitempty"`
	RangeMin float64            `json:"range_min"`
	RangeMax float64            `json:"range_max"`
}

// Element is one node of the strategy tree. Type selects which fields are
// meaningful; the validator enforces per-type requirements.
type Element struct {
	ID     string  `json:"id,omitempty"`
	Type   string  `json:"type"`
	Weight float64 `json:"weight,omitempty"` // declared share within the parent fan-out, percent

	// ticker
	Symbol string `json:"symbol,omitempty"`

	// weight
	Mode     string    `json:"mode,omitempty"`
	Children []Element `json:"children,omitempty"`

	// gate
	Conditions    []Condition `json:"conditions,omitempty"`
	ConditionMode string      `json:"condition_mode,omitempty"`
	Then          []Element   `json:"then_children,omitempty"`
	Else          []Element   `json:"else_children,omitempty"`

	// scale
	Scale *ScaleConfig `json:"scale,omitempty"`
	From  []Element    `json:"from_children,omitempty"`
	To    []Element    `json:"to_children,omitempty"`

	// sort
	SortBy *IndicatorRef `json:"sort_by,omitempty"`
	Count  int           `json:"count,omitempty"`
}

// label identifies an element in traces and error messages.
func (e Element) label() string {
	if e.ID != "" {
		return fmt.Sprintf("%s[%s]", e.Type, e.ID)
	}
	return e.Type
}

// LoadFile reads a strategy definition (a JSON array of elements) from disk.
func LoadFile(path string) ([]Element, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var elements []Element
	if err := json.Unmarshal(data, &elements); err != nil {
		return nil, fmt.Errorf("parsing strategy %s: %w", path, err)
	}
	return elements, nil
}
