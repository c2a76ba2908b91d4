package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"maestro/internal/backtest"
	"maestro/internal/config"
	"maestro/internal/element"
	"maestro/internal/indicator"
	"maestro/internal/marketdata"
	"maestro/internal/store"
	"maestro/internal/util"
)

func main() {
	strategyPath := flag.String("strategy", "", "path to a strategy definition (JSON array of elements)")
	validateOnly := flag.Bool("validate", false, "only run structural validation and exit")
	flag.Parse()

	if *strategyPath == "" {
		log.Fatal("-strategy is required")
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

	elements, err := element.LoadFile(*strategyPath)
	if err != nil {
		log.Fatalf("failed to load strategy: %v", err)
	}

	validation := element.Validate(elements)
	for _, warning := range validation.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", warning)
	}
	if !validation.Valid {
		for _, e := range validation.Errors {
			fmt.Fprintf(os.Stderr, "error: %s\n", e)
		}
		os.Exit(1)
	}
	if *validateOnly {
		fmt.Println("strategy is valid")
		return
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
	runner := backtest.NewRunner(fetcher, indicators, nil, cfg.Backtest.IndicatorWorkers)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	date, result, err := runner.EvaluateNow(ctx, backtest.RunRequest{Elements: elements})
	if err != nil {
		log.Fatalf("evaluation failed: %v", err)
	}

	fmt.Printf("target allocation as of %s:\n", date)
	for _, pos := range result.Positions {
		fmt.Printf("  %-8s %7.2f%%\n", pos.Symbol, pos.Weight)
	}
	for _, e := range result.Errors {
		fmt.Fprintf(os.Stderr, "evaluation note: %s\n", e)
	}
}
