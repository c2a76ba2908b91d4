// Package domain defines the core data types shared across the maestro
// platform: price bars, dividend events, strategy positions, and backtest
// metrics.
package domain

import "time"

// YMDLayout is the canonical date format for all date-keyed maps and grids.
const YMDLayout = "2006-01-02"

// YMD formats t as a canonical YYYY-MM-DD date string.
func YMD(t time.Time) string {
	return t.UTC().Format(YMDLayout)
}

// Bar is one trading day of OHLCV data for a single symbol.
type Bar struct {
	Symbol     string    `json:"symbol"`
	Timestamp  time.Time `json:"timestamp"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     int64     `json:"volume"`
	TradeCount int64     `json:"trade_count"`
	VWAP       float64   `json:"vwap"`
}

// Date returns the bar's trading date as YYYY-MM-DD.
func (b Bar) Date() string {
	return YMD(b.Timestamp)
}

// DividendMap holds cash-dividend events for one symbol, keyed by ex-date
// (YYYY-MM-DD) with the cash amount per share.
type DividendMap map[string]float64

// Position is a single ticker allocation expressed as a percentage weight.
type Position struct {
	Symbol string  `json:"symbol"`
	Weight float64 `json:"weight"`
}

// EvaluationResult is the output of evaluating a strategy (tree or graph)
// against one indicator snapshot.
type EvaluationResult struct {
	Positions []Position `json:"positions"`
	Trace     []string   `json:"trace"`
	Errors    []string   `json:"errors"`
}

// Metrics summarizes a backtest equity curve. All rates are annualized with
// 252 trading days.
type Metrics struct {
	TotalReturn      float64 `json:"total_return"`
	CAGR             float64 `json:"cagr"`
	AnnualVolatility float64 `json:"annual_volatility"`
	Sharpe           float64 `json:"sharpe"`
	Sortino          float64 `json:"sortino"`
	MaxDrawdown      float64 `json:"max_drawdown"`
}

// DayDetail records the per-day debug output of a simulation: what the
// strategy decided on the decision date and what it earned on the held date.
type DayDetail struct {
	DecisionDate string     `json:"decision_date"`
	HeldDate     string     `json:"held_date"`
	Positions    []Position `json:"positions"`
	DayReturn    float64    `json:"day_return"`
	Equity       float64    `json:"equity"`
	Errors       []string   `json:"errors,omitempty"`
}
