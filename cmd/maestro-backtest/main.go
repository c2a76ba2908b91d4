package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"maestro/internal/backtest"
	"maestro/internal/config"
	"maestro/internal/element"
	"maestro/internal/flowgraph"
	"maestro/internal/indicator"
	"maestro/internal/marketdata"
	"maestro/internal/store"
	"maestro/internal/util"
)

func main() {
	strategyPath := flag.String("strategy", "", "path to a strategy definition (JSON array of elements)")
	graphPath := flag.String("graph", "", "path to a flow-graph strategy definition (JSON)")
	startDate := flag.String("start", "", "simulation start date (YYYY-MM-DD)")
	endDate := flag.String("end", "", "simulation end date (YYYY-MM-DD)")
	benchmark := flag.String("benchmark", "", "benchmark symbol (overrides config)")
	csvPath := flag.String("csv", "", "write the equity curve to this CSV file")
	debug := flag.Bool("debug", false, "collect per-day decision detail")
	flag.Parse()

	if *strategyPath == "" && *graphPath == "" {
		log.Fatal("one of -strategy or -graph is required")
	}

	cfgPath := "config/maestro.yaml"
	if p := os.Getenv("MAESTRO_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	req := backtest.RunRequest{
		StartDate: *startDate,
		EndDate:   *endDate,
		Benchmark: cfg.Backtest.Benchmark,
		Debug:     *debug,
	}
	if *benchmark != "" {
		req.Benchmark = *benchmark
	}

	if *strategyPath != "" {
		req.Elements, err = element.LoadFile(*strategyPath)
		if err != nil {
			log.Fatalf("failed to load strategy: %v", err)
		}
	} else {
		req.Graph, err = flowgraph.LoadFile(*graphPath)
		if err != nil {
			log.Fatalf("failed to load flow graph: %v", err)
		}
	}

	runner, cleanup, err := buildRunner(cfg)
	if err != nil {
		log.Fatalf("failed to set up runner: %v", err)
	}
	defer cleanup()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	result, err := runner.Run(ctx, req)
	if err != nil {
		log.Fatalf("backtest failed: %v", err)
	}

	slog.Info("metrics",
		"totalReturn", result.Metrics.TotalReturn,
		"cagr", result.Metrics.CAGR,
		"annualVolatility", result.Metrics.AnnualVolatility,
		"sharpe", result.Metrics.Sharpe,
		"sortino", result.Metrics.Sortino,
		"maxDrawdown", result.Metrics.MaxDrawdown,
	)
	if result.BenchmarkMetrics != nil {
		slog.Info("benchmark",
			"symbol", req.Benchmark,
			"totalReturn", result.BenchmarkMetrics.TotalReturn,
			"maxDrawdown", result.BenchmarkMetrics.MaxDrawdown,
		)
	}

	if *csvPath != "" {
		if err := backtest.WriteCSV(*csvPath, result.Dates, result.Equity, result.BenchmarkEquity); err != nil {
			log.Fatalf("writing CSV: %v", err)
		}
		slog.Info("wrote equity curve", "path", *csvPath, "rows", len(result.Dates))
	}
}

// buildRunner wires the fetcher, indicator client, and run ledger from
// config. The cleanup closes the ledger.
func buildRunner(cfg *config.Config) (*backtest.Runner, func(), error) {
	var cache store.BarCache
	if cfg.Storage.DataDir != "" {
		cache = store.NewParquetStore(cfg.Storage.DataDir)
	}

	fetcher := marketdata.NewFetcher(
		cfg.Alpaca.APIKey,
		cfg.Alpaca.APISecret,
		cfg.Alpaca.DataURL,
		cache,
		cfg.Backtest.MaxFetchWorkers,
		cfg.Backtest.RateLimitPerMin,
	)
	indicators := indicator.NewClient(cfg.Indicator.BaseURL, time.Duration(cfg.Indicator.TimeoutSeconds)*time.Second)

	cleanup := func() {}
	var runs store.RunStore
	if cfg.Storage.SQLitePath != "" {
		sqlStore, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		runs = sqlStore
		cleanup = func() { sqlStore.Close() }
	}

	return backtest.NewRunner(fetcher, indicators, runs, cfg.Backtest.IndicatorWorkers), cleanup, nil
}
