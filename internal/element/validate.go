package element

import (
	"fmt"
	"math"
)

// ValidationResult reports structural problems in a strategy definition.
// Errors make the strategy unusable; warnings flag suspicious but runnable
// constructs.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Validate runs the structural checks consumed upstream of evaluation: the
// element list is non-empty, every type is known, per-type required fields
// are present, defined sibling weights sum to 100, and every tree reaches at
// least one ticker.
func Validate(elements []Element) ValidationResult {
	v := &validator{}

	if len(elements) == 0 {
		v.errorf("strategy has no elements")
	}
	for _, el := range elements {
		v.check(el)
		if firstTicker(el) == "" {
			v.errorf("%s: no reachable ticker", el.label())
		}
	}

	return ValidationResult{
		Valid:    len(v.errors) == 0,
		Errors:   v.errors,
		Warnings: v.warnings,
	}
}

type validator struct {
	errors   []string
	warnings []string
}

func (v *validator) errorf(format string, args ...any) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}

func (v *validator) warnf(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

func (v *validator) check(el Element) {
	switch el.Type {
	case TypeTicker:
		if el.Symbol == "" {
			v.errorf("%s: ticker requires a symbol", el.label())
		}
	case TypeWeight:
		v.checkWeight(el)
	case TypeGate:
		v.checkGate(el)
	case TypeScale:
		v.checkScale(el)
	case TypeSort:
		v.checkSort(el)
	default:
		v.errorf("unknown element type %q", el.Type)
	}

	for _, group := range [][]Element{el.Children, el.Then, el.Else, el.From, el.To} {
		for _, child := range group {
			v.check(child)
		}
	}
}

func (v *validator) checkWeight(el Element) {
	if len(el.Children) == 0 {
		v.errorf("%s: weight node requires children", el.label())
		return
	}
	switch el.Mode {
	case ModeEqual, "":
	case ModeDefined:
		v.checkDeclaredSum(el, el.Children)
	default:
		v.errorf("%s: unknown weight mode %q", el.label(), el.Mode)
	}
}

// checkDeclaredSum warns when defined sibling weights at a fan-out drift from
// 100 beyond rounding slack.
func (v *validator) checkDeclaredSum(el Element, children []Element) {
	var sum float64
	for _, child := range children {
		sum += child.Weight
	}
	if math.Abs(sum-100) > 1e-3 {
		v.warnf("%s: defined child weights sum to %v, want 100", el.label(), sum)
	}
}

func (v *validator) checkGate(el Element) {
	if len(el.Conditions) == 0 {
		v.errorf("%s: gate requires at least one condition", el.label())
	}
	for i, cond := range el.Conditions {
		if cond.Left.Type == "" {
			v.errorf("%s: condition %d missing left indicator type", el.label(), i)
		}
		if cond.Left.Symbol == "" {
			v.errorf("%s: condition %d missing left symbol", el.label(), i)
		}
		if cond.Threshold == nil && cond.Right == nil {
			v.errorf("%s: condition %d needs a threshold or a right reference", el.label(), i)
		}
		switch cond.Operator {
		case OpGT, OpLT, OpGTE, OpLTE, OpEQ, OpNEQ:
		default:
			v.errorf("%s: condition %d has unknown operator %q", el.label(), i, cond.Operator)
		}
	}
	switch el.ConditionMode {
	case "", CondModeIf, CondModeIfAll, CondModeIfAny, CondModeIfNone:
	default:
		v.errorf("%s: unknown condition mode %q", el.label(), el.ConditionMode)
	}
	if len(el.Then) == 0 && len(el.Else) == 0 {
		v.errorf("%s: gate requires a then or else branch", el.label())
	}
}

func (v *validator) checkScale(el Element) {
	if el.Scale == nil {
		v.errorf("%s: scale requires a config", el.label())
		return
	}
	if el.Scale.Symbol == "" || el.Scale.Type == "" {
		v.errorf("%s: scale config requires a symbol and indicator type", el.label())
	}
	if el.Scale.RangeMax <= el.Scale.RangeMin {
		v.errorf("%s: scale range max (%v) must exceed min (%v)", el.label(), el.Scale.RangeMax, el.Scale.RangeMin)
	}
	if len(el.From) == 0 && len(el.To) == 0 {
		v.errorf("%s: scale requires from or to children", el.label())
	}
}

func (v *validator) checkSort(el Element) {
	if el.SortBy == nil || el.SortBy.Type == "" {
		v.errorf("%s: sort requires an indicator", el.label())
	}
	if len(el.Children) == 0 {
		v.errorf("%s: sort requires children", el.label())
	}
	if el.Count < 1 {
		v.errorf("%s: sort count must be at least 1", el.label())
	} else if el.Count > len(el.Children) {
		v.warnf("%s: sort count %d exceeds %d children", el.label(), el.Count, len(el.Children))
	}
}
