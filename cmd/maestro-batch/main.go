package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"maestro/internal/backtest"
	"maestro/internal/config"
	"maestro/internal/indicator"
	"maestro/internal/marketdata"
	"maestro/internal/store"
	"maestro/internal/util"
)

func main() {
	templatePath := flag.String("template", "", "path to a strategy template (JSON array of elements, with $name placeholders)")
	varsPath := flag.String("vars", "", "path to a JSON array of variable assignments")
	startDate := flag.String("start", "", "backtest start date (YYYY-MM-DD)")
	endDate := flag.String("end", "", "backtest end date (YYYY-MM-DD)")
	benchmark := flag.String("benchmark", "", "benchmark symbol")
	flag.Parse()

	if *templatePath == "" || *varsPath == "" {
		log.Fatal("-template and -vars are required")
	}

	cfgPath := "config/maestro.yaml"
	if p := os.Getenv("MAESTRO_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	util.SetDefault(util.NewLogger(cfg.Logging.Level, cfg.Logging.Format))

	template, err := os.ReadFile(*templatePath)
	if err != nil {
		log.Fatalf("failed to read template: %v", err)
	}
	varsRaw, err := os.ReadFile(*varsPath)
	if err != nil {
		log.Fatalf("failed to read variables: %v", err)
	}
	var assignments []backtest.Assignment
	if err := json.Unmarshal(varsRaw, &assignments); err != nil {
		log.Fatalf("failed to parse variables: %v", err)
	}

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

	var runs store.RunStore
	if cfg.Storage.SQLitePath != "" {
		s, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatalf("failed to open run store: %v", err)
		}
		defer s.Close()
		runs = s
	}
	runner := backtest.NewRunner(fetcher, indicators, runs, cfg.Backtest.IndicatorWorkers)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	base := backtest.RunRequest{
		StartDate: *startDate,
		EndDate:   *endDate,
		Benchmark: *benchmark,
	}
	if base.Benchmark == "" {
		base.Benchmark = cfg.Backtest.Benchmark
	}
	opts := backtest.BatchOptions{
		ChunkSize:  cfg.Backtest.BatchChunkSize,
		MaxWorkers: cfg.Backtest.BatchMaxWorkers,
	}

	started := time.Now()
	items, summary, err := backtest.RunBatch(ctx, runner, template, assignments, base, opts)
	if err != nil {
		log.Fatalf("batch failed: %v", err)
	}

	for _, item := range items {
		if item.Err != nil {
			fmt.Fprintf(os.Stderr, "variant %d failed: %v\n", item.Index, item.Err)
			continue
		}
		fmt.Printf("variant %3d  totalReturn=%+.4f  cagr=%+.4f  maxDrawdown=%+.4f\n",
			item.Index,
			item.Result.Metrics.TotalReturn,
			item.Result.Metrics.CAGR,
			item.Result.Metrics.MaxDrawdown)
	}
	fmt.Printf("runs=%d avg=%+.4f best=%+.4f worst=%+.4f\n",
		summary.TotalRuns,
		summary.AvgTotalReturn,
		summary.BestTotalReturn,
		summary.WorstTotalReturn)
	slog.Info("batch complete",
		"variants", len(items),
		"succeeded", summary.TotalRuns,
		"elapsed", time.Since(started).Round(time.Millisecond))
}
