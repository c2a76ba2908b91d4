package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"maestro/internal/domain"
	"maestro/internal/element"
	"maestro/internal/flowgraph"
	"maestro/internal/indicator"
	"maestro/internal/marketdata"
	"maestro/internal/store"
)

// defaultHistoryStart bounds the fetch window when no start date is given.
const defaultHistoryStart = "2000-01-03"

// RunRequest describes one backtest: a strategy in either representation, a
// date range, and an optional benchmark.
type RunRequest struct {
	Elements  []element.Element
	Graph     *flowgraph.Graph
	StartDate string // YYYY-MM-DD, optional
	EndDate   string // YYYY-MM-DD, optional (defaults to today)
	Benchmark string // optional benchmark symbol
	Debug     bool
}

// RunResult is a complete backtest outcome. Callers receive either this in
// full or an error, never a partial curve.
type RunResult struct {
	RunID            string             `json:"run_id"`
	Dates            []string           `json:"dates"`
	Equity           []float64          `json:"equity"`
	Metrics          domain.Metrics     `json:"metrics"`
	BenchmarkEquity  []float64          `json:"benchmark_equity,omitempty"`
	BenchmarkMetrics *domain.Metrics    `json:"benchmark_metrics,omitempty"`
	DebugDays        []domain.DayDetail `json:"debug_days,omitempty"`
}

// Runner wires the data dependencies of a backtest together: the market-data
// fetcher, the indicator-service client, and an optional run ledger.
type Runner struct {
	fetcher      *marketdata.Fetcher
	indicators   *indicator.Client
	runs         store.RunStore // nil disables the ledger
	indicatorPar int
	log          *slog.Logger
}

// NewRunner creates a Runner. runs may be nil when no ledger is configured.
func NewRunner(fetcher *marketdata.Fetcher, indicators *indicator.Client, runs store.RunStore, indicatorWorkers int) *Runner {
	if indicatorWorkers <= 0 {
		indicatorWorkers = 4
	}
	return &Runner{
		fetcher:      fetcher,
		indicators:   indicators,
		runs:         runs,
		indicatorPar: indicatorWorkers,
		log:          slog.Default().With("component", "backtest"),
	}
}

// Run executes one backtest end to end: collect indicator requirements,
// fetch and prepare series, build the date grid, simulate day by day, and
// summarize the curve.
func (r *Runner) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	req.Benchmark = strings.ToUpper(req.Benchmark)
	reqs, symbols, evalAt, err := prepareStrategy(req)
	if err != nil {
		return nil, err
	}
	if req.Benchmark != "" {
		symbols = appendUnique(symbols, req.Benchmark)
	}

	fetchStart, fetchEnd, err := fetchWindow(req.StartDate, req.EndDate, reqs)
	if err != nil {
		return nil, err
	}

	bars, divs, err := r.fetcher.FetchAll(ctx, symbols, fetchStart, fetchEnd)
	if err != nil {
		return nil, err
	}

	snapshot, firstComputable, err := r.computeIndicators(ctx, reqs, bars)
	if err != nil {
		return nil, err
	}

	grid, err := BuildDateGrid(bars, firstComputable, req.StartDate, req.EndDate, req.Benchmark)
	if err != nil {
		return nil, err
	}

	closes := make(map[string]map[string]float64, len(bars))
	for symbol, series := range bars {
		closes[symbol] = marketdata.ForwardFill(marketdata.CloseMap(series), grid)
	}

	eval := func(date string) ([]domain.Position, []string, error) {
		result, err := evalAt(snapshot.ValuesAt(date))
		if err != nil {
			return nil, nil, err
		}
		return result.Positions, result.Errors, nil
	}

	equity, days, err := Simulate(eval, closes, divs, grid, req.Debug)
	if err != nil {
		return nil, err
	}

	result := &RunResult{
		RunID:     uuid.NewString(),
		Dates:     grid,
		Equity:    equity,
		Metrics:   ComputeMetrics(equity),
		DebugDays: days,
	}

	if req.Benchmark != "" {
		benchEquity := SimulateHold(req.Benchmark, closes, divs, grid)
		benchMetrics := ComputeMetrics(benchEquity)
		result.BenchmarkEquity = benchEquity
		result.BenchmarkMetrics = &benchMetrics
	}

	r.recordRun(ctx, req, result)

	r.log.Info("backtest complete",
		"run", result.RunID,
		"days", len(grid),
		"totalReturn", result.Metrics.TotalReturn,
		"maxDrawdown", result.Metrics.MaxDrawdown,
	)
	return result, nil
}

// EvaluateNow evaluates the strategy once against the latest date on which
// every required indicator has a value. This is the live-trading entry point
// that produces a target allocation for order placement. Unless a start date
// is given, the fetch covers only the warm-up for the largest indicator.
func (r *Runner) EvaluateNow(ctx context.Context, req RunRequest) (string, domain.EvaluationResult, error) {
	reqs, symbols, evalAt, err := prepareStrategy(req)
	if err != nil {
		return "", domain.EvaluationResult{}, err
	}

	fetchStart, fetchEnd, err := liveWindow(req.EndDate, reqs)
	if req.StartDate != "" {
		fetchStart, fetchEnd, err = fetchWindow(req.StartDate, req.EndDate, reqs)
	}
	if err != nil {
		return "", domain.EvaluationResult{}, err
	}

	bars, _, err := r.fetcher.FetchAll(ctx, symbols, fetchStart, fetchEnd)
	if err != nil {
		return "", domain.EvaluationResult{}, err
	}

	snapshot, _, err := r.computeIndicators(ctx, reqs, bars)
	if err != nil {
		return "", domain.EvaluationResult{}, err
	}

	date := latestCommonDate(snapshot)
	if date == "" {
		return "", domain.EvaluationResult{}, errors.New("no date with values for every indicator")
	}

	result, err := evalAt(snapshot.ValuesAt(date))
	return date, result, err
}

// prepareStrategy validates the request's strategy representation and
// returns its indicator requirements, referenced symbols, and an evaluation
// closure over one snapshot view.
func prepareStrategy(req RunRequest) ([]indicator.Request, []string, func(indicator.Values) (domain.EvaluationResult, error), error) {
	switch {
	case len(req.Elements) > 0 && req.Graph != nil:
		return nil, nil, nil, errors.New("strategy has both element and flow-graph forms; choose one")
	case len(req.Elements) > 0:
		if v := element.Validate(req.Elements); !v.Valid {
			return nil, nil, nil, fmt.Errorf("invalid strategy: %v", v.Errors)
		}
		eval := func(values indicator.Values) (domain.EvaluationResult, error) {
			result, err := element.Evaluate(req.Elements, values)
			upperPositions(result.Positions)
			return result, err
		}
		return element.CollectIndicators(req.Elements), upperSymbols(element.Symbols(req.Elements)), eval, nil
	case req.Graph != nil:
		eval := func(values indicator.Values) (domain.EvaluationResult, error) {
			result, err := flowgraph.Evaluate(req.Graph, values)
			upperPositions(result.Positions)
			return result, err
		}
		return flowgraph.CollectIndicators(req.Graph), upperSymbols(flowgraph.Symbols(req.Graph)), eval, nil
	}
	return nil, nil, nil, errors.New("strategy definition is empty")
}

// Fetched bars and indicator series are keyed by uppercase symbol, so symbol
// case is folded once at the strategy boundary: the symbol list that drives
// fetching and the positions the evaluators emit both come out uppercase. A
// strategy declaring "spy" prices exactly like one declaring "SPY".
func upperSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := symbols[:0]
	for _, s := range symbols {
		u := strings.ToUpper(s)
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

func upperPositions(positions []domain.Position) {
	for i := range positions {
		positions[i].Symbol = strings.ToUpper(positions[i].Symbol)
	}
}

// computeIndicators fans out over the requests with a bounded worker pool,
// producing one series per canonical key plus each key's first computable
// date. Per-request failures are isolated and aggregated.
func (r *Runner) computeIndicators(ctx context.Context, reqs []indicator.Request, bars map[string][]domain.Bar) (indicator.Snapshot, map[indicator.Key]string, error) {
	type outcome struct {
		series indicator.Series
		first  string
	}
	results := make([]outcome, len(reqs))
	errs := make([]error, len(reqs))

	jobs := make(chan int, len(reqs))
	for i := range reqs {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	workers := r.indicatorPar
	if workers > len(reqs) {
		workers = len(reqs)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				req := reqs[i]
				symbolBars, ok := bars[req.Key().Symbol]
				if !ok || len(symbolBars) == 0 {
					errs[i] = fmt.Errorf("%s: no bars for indicator", req.Key())
					continue
				}
				series, err := r.indicators.Compute(ctx, req, symbolBars)
				if err != nil {
					errs[i] = err
					continue
				}
				results[i] = outcome{
					series: series,
					first:  indicator.FirstComputable(symbolBars, req),
				}
			}
		}()
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, nil, fmt.Errorf("computing indicators: %w", err)
	}

	snapshot := make(indicator.Snapshot, len(reqs))
	firstComputable := make(map[indicator.Key]string, len(reqs))
	for i, req := range reqs {
		key := req.Key()
		snapshot[key] = results[i].series
		firstComputable[key] = results[i].first
	}
	return snapshot, firstComputable, nil
}

func (r *Runner) recordRun(ctx context.Context, req RunRequest, result *RunResult) {
	if r.runs == nil {
		return
	}
	record := store.RunRecord{
		ID:        result.RunID,
		CreatedAt: time.Now(),
		StartDate: result.Dates[0],
		EndDate:   result.Dates[len(result.Dates)-1],
		Benchmark: req.Benchmark,
		Days:      len(result.Dates),
		Metrics:   result.Metrics,
	}
	if err := r.runs.SaveRun(ctx, record); err != nil {
		r.log.Warn("recording run failed", "run", result.RunID, "err", err)
	}
}

// fetchWindow sizes the historical fetch: the start is pushed back far
// enough before the requested start to cover the largest indicator warm-up
// (trading days padded to calendar days), the end defaults to today.
func fetchWindow(startDate, endDate string, reqs []indicator.Request) (time.Time, time.Time, error) {
	if startDate == "" {
		startDate = defaultHistoryStart
	}
	start, err := time.Parse(domain.YMDLayout, startDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parsing start date %q: %w", startDate, err)
	}

	end := time.Now().UTC()
	if endDate != "" {
		end, err = time.Parse(domain.YMDLayout, endDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parsing end date %q: %w", endDate, err)
		}
	}

	return start.AddDate(0, 0, -warmupPadDays(reqs)), end, nil
}

// liveWindow sizes the fetch for a single present-day evaluation: just
// enough history before the end date to warm up the largest indicator.
func liveWindow(endDate string, reqs []indicator.Request) (time.Time, time.Time, error) {
	end := time.Now().UTC()
	if endDate != "" {
		var err error
		end, err = time.Parse(domain.YMDLayout, endDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parsing end date %q: %w", endDate, err)
		}
	}
	return end.AddDate(0, 0, -warmupPadDays(reqs)), end, nil
}

// warmupPadDays converts the largest warm-up in trading days to calendar
// days: roughly 1.6 calendar days per trading day, plus slack for holidays.
func warmupPadDays(reqs []indicator.Request) int {
	maxNeed := 0
	for _, req := range reqs {
		if n := indicator.BarsNeeded(req.Type, req.Params); n > maxNeed {
			maxNeed = n
		}
	}
	return maxNeed*2 + 14
}

func latestCommonDate(snapshot indicator.Snapshot) string {
	latest := ""
	for date := range firstSeries(snapshot) {
		if date <= latest {
			continue
		}
		if _, complete := allHaveDate(snapshot, date); complete {
			latest = date
		}
	}
	return latest
}

func firstSeries(snapshot indicator.Snapshot) indicator.Series {
	for _, series := range snapshot {
		return series
	}
	return nil
}

func allHaveDate(snapshot indicator.Snapshot, date string) (string, bool) {
	for _, series := range snapshot {
		if _, ok := series[date]; !ok {
			return date, false
		}
	}
	return date, true
}

func appendUnique(symbols []string, symbol string) []string {
	for _, s := range symbols {
		if s == symbol {
			return symbols
		}
	}
	return append(symbols, symbol)
}
