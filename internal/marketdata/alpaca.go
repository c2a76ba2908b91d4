package marketdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"maestro/internal/domain"
	"maestro/internal/store"
	"maestro/internal/util"
)

const fetchAttempts = 3

// Fetcher pulls daily bars and cash dividends from the Alpaca market-data
// API, fanning out over symbols with a bounded worker pool and writing
// fetched bars through to an optional Parquet cache.
type Fetcher struct {
	client     *marketdata.Client
	cache      store.BarCache // nil disables caching
	limiter    *util.RateLimiter
	maxWorkers int
	log        *slog.Logger
}

// NewFetcher creates a Fetcher configured with the given Alpaca credentials,
// optional bar cache, worker bound, and per-minute rate limit.
func NewFetcher(apiKey, apiSecret, dataURL string, cache store.BarCache, maxWorkers, rateLimitPerMin int) *Fetcher {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	if rateLimitPerMin <= 0 {
		rateLimitPerMin = 200
	}

	return &Fetcher{
		client:     marketdata.NewClient(opts),
		cache:      cache,
		limiter:    util.NewRateLimiter(rateLimitPerMin),
		maxWorkers: maxWorkers,
		log:        slog.Default().With("component", "marketdata"),
	}
}

// symbolData is one symbol's fetch result.
type symbolData struct {
	bars []domain.Bar
	divs domain.DividendMap
}

// FetchAll fetches bars and dividends for every symbol in [start, end].
// Symbols are fetched in parallel; each failure is isolated to its own
// symbol and aggregated at the end. Any failure fails the whole call, since
// a backtest cannot run on a partial universe, but completed series are
// never corrupted by a sibling's failure.
func (f *Fetcher) FetchAll(ctx context.Context, symbols []string, start, end time.Time) (map[string][]domain.Bar, map[string]domain.DividendMap, error) {
	symbols = dedupeUpper(symbols)
	if len(symbols) == 0 {
		return nil, nil, errors.New("no symbols to fetch")
	}

	results := make([]symbolData, len(symbols))
	errs := make([]error, len(symbols))

	jobs := make(chan int, len(symbols))
	for i := range symbols {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	workers := f.maxWorkers
	if workers > len(symbols) {
		workers = len(symbols)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					errs[i] = ctx.Err()
					continue
				}
				data, err := f.fetchSymbol(ctx, symbols[i], start, end)
				if err != nil {
					errs[i] = fmt.Errorf("%s: %w", symbols[i], err)
					continue
				}
				results[i] = data
			}
		}()
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, nil, fmt.Errorf("fetching market data: %w", err)
	}

	bars := make(map[string][]domain.Bar, len(symbols))
	divs := make(map[string]domain.DividendMap, len(symbols))
	for i, symbol := range symbols {
		bars[symbol] = results[i].bars
		divs[symbol] = results[i].divs
	}
	return bars, divs, nil
}

// fetchSymbol loads one symbol's bars (cache first) and dividends.
func (f *Fetcher) fetchSymbol(ctx context.Context, symbol string, start, end time.Time) (symbolData, error) {
	bars, err := f.fetchBars(ctx, symbol, start, end)
	if err != nil {
		return symbolData{}, err
	}
	if len(bars) == 0 {
		return symbolData{}, fmt.Errorf("no bars in [%s, %s]", domain.YMD(start), domain.YMD(end))
	}

	divs, err := f.fetchDividends(ctx, symbol, start, end)
	if err != nil {
		return symbolData{}, err
	}
	return symbolData{bars: bars, divs: divs}, nil
}

func (f *Fetcher) fetchBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	if f.cache != nil && f.cache.Covers(ctx, symbol, start, end) {
		bars, err := f.cache.ReadBars(ctx, symbol, start, end)
		if err == nil && len(bars) > 0 {
			f.log.Debug("cache hit", "symbol", symbol, "bars", len(bars))
			return bars, nil
		}
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var alpacaBars []marketdata.Bar
	err := util.Retry(ctx, fetchAttempts, time.Second, func() error {
		var reqErr error
		alpacaBars, reqErr = f.client.GetBars(symbol, marketdata.GetBarsRequest{
			TimeFrame:  marketdata.OneDay,
			Start:      start,
			End:        end,
			Adjustment: marketdata.Split,
			Feed:       "sip",
		})
		return reqErr
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars: %w", err)
	}

	bars := make([]domain.Bar, 0, len(alpacaBars))
	for _, ab := range alpacaBars {
		bars = append(bars, domain.Bar{
			Symbol:     symbol,
			Timestamp:  ab.Timestamp,
			Open:       ab.Open,
			High:       ab.High,
			Low:        ab.Low,
			Close:      ab.Close,
			Volume:     int64(ab.Volume),
			TradeCount: int64(ab.TradeCount),
			VWAP:       ab.VWAP,
		})
	}
	sort.Slice(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})

	if f.cache != nil {
		if err := f.cache.WriteBars(ctx, bars); err != nil {
			f.log.Warn("caching bars failed", "symbol", symbol, "err", err)
		}
	}
	return bars, nil
}

func (f *Fetcher) fetchDividends(ctx context.Context, symbol string, start, end time.Time) (domain.DividendMap, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var actions marketdata.CorporateActions
	err := util.Retry(ctx, fetchAttempts, time.Second, func() error {
		var reqErr error
		actions, reqErr = f.client.GetCorporateActions(marketdata.GetCorporateActionsRequest{
			Symbols: []string{symbol},
			Types:   []string{"cash_dividend"},
			Start:   civil.DateOf(start),
			End:     civil.DateOf(end),
		})
		return reqErr
	})
	if err != nil {
		return nil, fmt.Errorf("GetCorporateActions: %w", err)
	}

	divs := make(domain.DividendMap, len(actions.CashDividends))
	for _, d := range actions.CashDividends {
		if d.Rate <= 0 {
			continue
		}
		// Dividends are credited on their ex-date; multiple events on the
		// same date accumulate.
		divs[d.ExDate.String()] += d.Rate
	}
	return divs, nil
}

func dedupeUpper(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
