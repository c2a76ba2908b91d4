package element

import "maestro/internal/indicator"

// CollectIndicators walks every element (including nested branches) and
// gathers every indicator reference exactly once per canonical key. Ticker
// leaves contribute a CURRENT_PRICE request so the simulator always has a
// priced series for every allocatable symbol.
func CollectIndicators(elements []Element) []indicator.Request {
	var reqs []indicator.Request
	for _, el := range elements {
		reqs = collectFrom(el, reqs)
	}
	return indicator.Dedupe(reqs)
}

func collectFrom(el Element, reqs []indicator.Request) []indicator.Request {
	switch el.Type {
	case TypeTicker:
		reqs = append(reqs, indicator.Request{Symbol: el.Symbol, Type: "CURRENT_PRICE"})
	case TypeGate:
		for _, cond := range el.Conditions {
			reqs = append(reqs, cond.Left.Request())
			if cond.Right != nil {
				reqs = append(reqs, cond.Right.Request())
			}
		}
	case TypeScale:
		if el.Scale != nil {
			reqs = append(reqs, indicator.Request{
				Symbol: el.Scale.Symbol,
				Type:   el.Scale.Type,
				Params: el.Scale.Params,
			})
		}
	case TypeSort:
		if el.SortBy != nil {
			for _, child := range el.Children {
				if symbol := firstTicker(child); symbol != "" {
					reqs = append(reqs, indicator.Request{
						Symbol: symbol,
						Type:   el.SortBy.Type,
						Params: el.SortBy.Params,
					})
				}
			}
		}
	}

	for _, group := range [][]Element{el.Children, el.Then, el.Else, el.From, el.To} {
		for _, child := range group {
			reqs = collectFrom(child, reqs)
		}
	}
	return reqs
}

// Symbols returns every ticker symbol reachable in the trees, deduplicated
// in document order.
func Symbols(elements []Element) []string {
	seen := make(map[string]struct{})
	var out []string
	var walk func(el Element)
	walk = func(el Element) {
		if el.Type == TypeTicker && el.Symbol != "" {
			if _, dup := seen[el.Symbol]; !dup {
				seen[el.Symbol] = struct{}{}
				out = append(out, el.Symbol)
			}
		}
		for _, group := range [][]Element{el.Children, el.Then, el.Else, el.From, el.To} {
			for _, child := range group {
				walk(child)
			}
		}
	}
	for _, el := range elements {
		walk(el)
	}
	return out
}
