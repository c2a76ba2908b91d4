package indicator

import (
	"strings"

	"maestro/internal/domain"
)

// BarsNeeded returns the minimum number of leading bars that must exist
// before the indicator's value is trustworthy. It is used both to size the
// historical fetch window and to determine each series' first computable
// date.
func BarsNeeded(indicatorType string, params map[string]float64) int {
	p := func(name string, def float64) int {
		if v, ok := params[name]; ok {
			return int(v)
		}
		return int(def)
	}

	switch strings.ToUpper(indicatorType) {
	case "RSI", "SMA", "EMA":
		return maxInt(2, p("period", 14))
	case "BBANDS_UPPER", "BBANDS_MIDDLE", "BBANDS_LOWER":
		return maxInt(2, p("period", 20))
	case "MACD", "MACD_HIST", "MACD_LINE", "MACD_SIGNAL",
		"PPO", "PPO_LINE", "PPO_SIGNAL", "PPO_HIST":
		return p("slowperiod", 26) + p("signalperiod", 9)
	case "STOCH_K":
		return p("fastk_period", 14) + p("slowk_period", 3) + p("slowd_period", 3)
	case "ADX":
		// Wilder smoothing needs roughly two full periods before it settles.
		return 2 * p("period", 14)
	case "AROON_UP", "AROON_DOWN", "AROONOSC", "VOLATILITY":
		return p("period", 14) + 1
	case "WILLR", "CCI", "NATR", "MFI":
		return maxInt(2, p("period", 14))
	case "ADOSC":
		return maxInt(2, p("slowperiod", 10))
	case "AD", "OBV", "CURRENT_PRICE", "PRICE", "CLOSE", "LAST", "CUMULATIVE_RETURN":
		return 2
	}
	return 2
}

// FirstComputable returns the first date (YYYY-MM-DD) at which the requested
// indicator has enough prior history to be valid, or "" when the bar series
// is too short.
func FirstComputable(bars []domain.Bar, req Request) string {
	need := BarsNeeded(req.Type, req.Params)
	if need >= len(bars) {
		return ""
	}
	return bars[need].Date()
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
