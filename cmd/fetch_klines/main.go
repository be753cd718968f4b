package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"rsiScanner/config"
	"rsiScanner/internal/adapters/binanceclient"
	"rsiScanner/internal/adapters/logger"
	"rsiScanner/internal/domain"
	"rsiScanner/internal/fetcher"
	"rsiScanner/internal/indicators"
	"rsiScanner/internal/retry"
	"rsiScanner/internal/utils"
)

func main() {
	symbol := flag.String("symbol", "ETHUSDT", "Perpetual symbol to fetch")
	interval := flag.String("interval", domain.Primary.Interval, "Kline interval")
	limit := flag.Int("limit", 100, "Number of klines to fetch")
	out := flag.String("out", "", "CSV output file (default data/<symbol>_<interval>_<date>.csv)")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	appLogger.Info(context.Background(), "Binance client initialized")

	// 4. Initialize Fetcher
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

	sym := strings.ToUpper(*symbol)
	fmt.Printf("Fetching %d klines for %s %s...\n", *limit, sym, *interval)
	klines, err := klineFetcher.FetchKlines(context.Background(), sym, *interval, *limit)
	if err != nil {
		appLogger.Error(context.Background(), err, "Error fetching klines")
		log.Fatalf("Error fetching klines: %v", err)
	}
	appLogger.Info(context.Background(), "Fetched klines", map[string]interface{}{"count": len(klines)})

	if rsi, ok := indicators.ComputeRSI(domain.Closes(klines), cfg.RSIPeriod); ok {
		fmt.Printf("RSI(%d) %s %s: %.2f\n", cfg.RSIPeriod, sym, *interval, rsi)
	} else {
		fmt.Printf("RSI(%d) %s %s: not enough data\n", cfg.RSIPeriod, sym, *interval)
	}

	filename := *out
	if filename == "" {
		filename = fmt.Sprintf("data/%s_%s_%s.csv", sym, *interval, time.Now().UTC().Format("20060102_1504"))
	}
	err = utils.WriteKlinesToCSV(klines, filename)
	if err != nil {
		appLogger.Error(context.Background(), err, "Error writing CSV")
		log.Fatalf("Error writing CSV: %v", err)
	}
	appLogger.Info(context.Background(), "Saved to", map[string]interface{}{"filename": filename})
}
