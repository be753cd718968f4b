package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"rsiScanner/config"
	"rsiScanner/internal/adapters/binanceclient"
	"rsiScanner/internal/adapters/logger"
	"rsiScanner/internal/adapters/sqlite"
	"rsiScanner/internal/app"
	"rsiScanner/internal/cache"
	"rsiScanner/internal/fetcher"
	"rsiScanner/internal/indicators"
	"rsiScanner/internal/metrics"
	"rsiScanner/internal/ports"
	"rsiScanner/internal/retry"
	"rsiScanner/internal/scanner"
	"rsiScanner/internal/stream"
	"rsiScanner/internal/trend"
	"rsiScanner/internal/web"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger, err := logger.New(cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	if zl, ok := appLogger.(*logger.ZapLogger); ok {
		defer zl.Sync()
	}
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String(), "format": cfg.LogFormat})

	// 3. Initialize Metrics
	appMetrics := metrics.NewMetrics(prometheus.DefaultRegisterer)

	// 4. Initialize Archive (Database Adapter), optional
	var archive ports.SnapshotArchive
	if cfg.DBPath != "" {
		repo, err := sqlite.NewArchive(sqlite.Config{
			DBPath: cfg.DBPath,
			Logger: appLogger,
		})
		if err != nil {
			appLogger.Error(context.Background(), err, "FATAL: Failed to initialize scan archive")
			log.Fatalf("FATAL: Failed to initialize scan archive: %v", err) // Also log to stderr
		}
		defer func() {
			if err := repo.Close(); err != nil {
				appLogger.Error(context.Background(), err, "Error closing scan archive")
			}
		}()
		archive = repo
		appLogger.Info(context.Background(), "Scan archive initialized")
	} else {
		appLogger.Info(context.Background(), "Scan archive disabled")
	}

	// 5. Initialize Exchange Client (Binance Adapter)
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

	// 6. Initialize Resilient Fetcher
	policy := retry.NewPolicy(appLogger, appMetrics)
	policy.MaxAttempts = cfg.RetryMaxAttempts
	policy.InitialDelay = cfg.RetryInitialDelay
	policy.BanWait = cfg.RetryBanWait
	policy.ResetAfter = cfg.RetryResetAfter

	klineFetcher, err := fetcher.New(fetcher.Config{
		Client:     binanceClient,
		Policy:     policy,
		QuoteAsset: cfg.QuoteAsset,
		Logger:     appLogger,
		Metrics:    appMetrics,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize fetcher")
		log.Fatalf("FATAL: Failed to initialize fetcher: %v", err)
	}

	// 7. Initialize Cache and Scan Pipeline
	snapshotCache := cache.New(cache.WithMetrics(appMetrics))

	var detector *trend.Detector
	if cfg.TrendEnabled {
		detector = trend.NewDetector(cfg.TrendHysteresis)
	}

	pipeline, err := scanner.New(scanner.Config{
		Fetcher:   klineFetcher,
		Publisher: snapshotCache,
		Detector:  detector,
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
		Metrics:      appMetrics,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize scan pipeline")
		log.Fatalf("FATAL: Failed to initialize scan pipeline: %v", err)
	}
	appLogger.Info(context.Background(), "Scan pipeline initialized", map[string]interface{}{
		"overbought": cfg.RSIOverbought,
		"oversold":   cfg.RSIOversold,
		"trends":     cfg.TrendEnabled,
	})

	// 8. Initialize Application Service
	scannerService, err := app.NewScannerService(app.Config{
		Scanner:  pipeline,
		Cache:    snapshotCache,
		Archive:  archive,
		Interval: cfg.ScanInterval,
		Logger:   appLogger,
		Metrics:  appMetrics,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize scanner service")
		log.Fatalf("FATAL: Failed to initialize scanner service: %v", err)
	}

	// 9. Initialize Change Stream and Web Server
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := stream.NewHub(snapshotCache, cfg.StreamPollInterval, appLogger, appMetrics)
	go hub.Run(ctx)

	server, err := web.NewServer(web.Config{
		Port:      cfg.HTTPPort,
		Snapshots: scannerService,
		Stream:    hub,
		Archive:   archive,
		Gatherer:  prometheus.DefaultGatherer,
		Logger:    appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize web server")
		log.Fatalf("FATAL: Failed to initialize web server: %v", err)
	}
	go func() {
		if err := server.Start(); err != nil {
			appLogger.Error(ctx, err, "Web server stopped with error")
			scannerService.RequestShutdown()
		}
	}()

	// 10. Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLogger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
		scannerService.RequestShutdown()
	}()

	// 11. Start the Service (blocks until shutdown)
	if err := scannerService.Start(ctx); err != nil {
		appLogger.Error(ctx, err, "Scanner service exited with error")
	}
	<-scannerService.Done()

	cancel() // Stops the change stream and closes every subscription
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, err, "Web server shutdown failed")
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
