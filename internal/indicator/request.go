// Package indicator defines indicator requests with canonical composite keys,
// per-indicator warm-up lookbacks, and the HTTP client for the external
// indicator-calculation service.
package indicator

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Family describes which price arrays an indicator consumes.
type Family int

const (
	// FamilyClose indicators consume only the close series.
	FamilyClose Family = iota
	// FamilyHLC indicators consume high, low, and close.
	FamilyHLC
	// FamilyHLCV indicators consume high, low, close, and volume.
	FamilyHLCV
	// FamilyCloseVolume indicators consume close and volume.
	FamilyCloseVolume
)

// Request identifies one indicator series: a symbol, an indicator type, and
// its parameters.
type Request struct {
	Symbol string             `json:"symbol"`
	Type   string             `json:"indicator_type"`
	Params map[string]float64 `json:"params,omitempty"`
}

// Key is the canonical composite key for a Request. It is a comparable
// struct, so it can be used directly as a map key without the collision risk
// of ad-hoc string concatenation.
type Key struct {
	Symbol string
	Type   string
	Params string
}

// Key returns the canonical key for the request. Params are rendered with
// sorted keys so that equivalent requests always produce equal keys.
func (r Request) Key() Key {
	return Key{
		Symbol: strings.ToUpper(r.Symbol),
		Type:   strings.ToUpper(r.Type),
		Params: canonicalParams(r.Params),
	}
}

// String renders the key for traces and error messages.
func (k Key) String() string {
	if k.Params == "" {
		return k.Symbol + "|" + k.Type
	}
	return k.Symbol + "|" + k.Type + "|" + k.Params
}

func canonicalParams(params map[string]float64) string {
	if len(params) == 0 {
		return ""
	}
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+strconv.FormatFloat(params[name], 'f', -1, 64))
	}
	return strings.Join(parts, ",")
}

// FamilyOf returns the input family for the given indicator type.
func FamilyOf(indicatorType string) (Family, error) {
	switch strings.ToUpper(indicatorType) {
	case "CURRENT_PRICE", "PRICE", "CLOSE", "LAST",
		"RSI", "SMA", "EMA",
		"MACD", "MACD_HIST", "MACD_LINE", "MACD_SIGNAL",
		"PPO", "PPO_LINE", "PPO_SIGNAL", "PPO_HIST",
		"BBANDS_UPPER", "BBANDS_MIDDLE", "BBANDS_LOWER",
		"CUMULATIVE_RETURN", "VOLATILITY":
		return FamilyClose, nil
	case "ADX", "STOCH_K", "AROON_UP", "AROON_DOWN", "AROONOSC",
		"WILLR", "CCI", "NATR":
		return FamilyHLC, nil
	case "MFI", "AD", "ADOSC":
		return FamilyHLCV, nil
	case "OBV":
		return FamilyCloseVolume, nil
	}
	return 0, fmt.Errorf("unknown indicator type %q", indicatorType)
}

// Param reads a parameter with a default when absent.
func (r Request) Param(name string, def float64) float64 {
	if v, ok := r.Params[name]; ok {
		return v
	}
	return def
}

// Dedupe returns the requests with duplicate canonical keys removed,
// preserving first-seen order.
func Dedupe(reqs []Request) []Request {
	seen := make(map[Key]struct{}, len(reqs))
	out := make([]Request, 0, len(reqs))
	for _, r := range reqs {
		k := r.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}
