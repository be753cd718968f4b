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

	"rsiScanner/config"
	"rsiScanner/internal/adapters/binanceclient"
	"rsiScanner/internal/adapters/logger"
	"rsiScanner/internal/cache"
	"rsiScanner/internal/domain"
	"rsiScanner/internal/fetcher"
	"rsiScanner/internal/indicators"
	"rsiScanner/internal/retry"
	"rsiScanner/internal/scanner"
	"rsiScanner/internal/utils"
)

func main() {
	csvPath := flag.String("csv", "", "Write the resulting snapshot to this CSV file")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger, err := logger.New(cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}

	// 3. Initialize Exchange Client and Fetcher
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	policy := retry.NewPolicy(appLogger, nil)
	policy.MaxAttempts = cfg.RetryMaxAttempts
	policy.InitialDelay = cfg.RetryInitialDelay
	policy.BanWait = cfg.RetryBanWait
	policy.ResetAfter = cfg.RetryResetAfter
	klineFetcher, err := fetcher.New(fetcher.Config{
		Client:     binanceClient,
		Policy:     policy,
		QuoteAsset: cfg.QuoteAsset,
		Logger:     appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize fetcher: %v", err)
	}

	// 4. Initialize Pipeline. Trends need history across cycles, so a single pass skips them.
	snapshotCache := cache.New()
	pipeline, err := scanner.New(scanner.Config{
		Fetcher:   klineFetcher,
		Publisher: snapshotCache,
		RSI: indicators.NewRSI(indicators.RSIConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: cfg.RSIPeriod},
			Overbought:      cfg.RSIOverbought,
			Oversold:        cfg.RSIOversold,
		}),
		BatchSize:    cfg.BatchSize,
		KlineLimit:   cfg.KlineLimit,
		RequestPause: cfg.RequestPause,
		BatchPause:   cfg.BatchPause,
		Logger:       appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize scan pipeline: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 5. Run one cycle
	summary, err := pipeline.RunCycle(ctx)
	if err != nil {
		appLogger.Error(ctx, err, "Scan cycle failed")
		os.Exit(1)
	}

	snap := snapshotCache.Snapshot()
	printBucket("OVERBOUGHT", snap.Overbought)
	printBucket("OVERSOLD", snap.Oversold)
	fmt.Printf("\nScanned %d of %d instruments (%d skipped) in %s\n",
		summary.Scanned, summary.Universe, summary.Skipped, summary.Duration().Round(time.Millisecond))

	if *csvPath != "" {
		if err := utils.WriteSnapshotToCSV(snap, *csvPath); err != nil {
			log.Fatalf("Error writing CSV: %v", err)
		}
		appLogger.Info(ctx, "Saved to", map[string]interface{}{"filename": *csvPath})
	}
}

func printBucket(title string, rows []domain.ResultRow) {
	fmt.Printf("\n%s (%d)\n", title, len(rows))
	fmt.Printf("%-16s %14s %8s %8s %8s\n", "SYMBOL", "PRICE", "RSI "+domain.Primary.Interval, domain.Secondary.Interval, domain.Tertiary.Interval)
	for _, r := range rows {
		fmt.Printf("%-16s %14.4f %8.2f %8.2f %8.2f\n", r.Symbol, r.Price, r.RSI, r.RSISecondary, r.RSITertiary)
	}
}
