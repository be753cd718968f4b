package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"rsiScanner/internal/adapters/logger" // Import the logger package for LogLevel
	"rsiScanner/internal/ports"
)

// Config holds all application configuration.
type Config struct {
	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Universe
	QuoteAsset string

	// Scan loop
	ScanInterval time.Duration
	BatchSize    int
	KlineLimit   int
	RequestPause time.Duration
	BatchPause   time.Duration

	// Indicator
	RSIPeriod     int
	RSIOverbought float64 // Overbought bucket when primary RSI >= this
	RSIOversold   float64 // Oversold bucket when primary RSI <= this

	// Trend labels
	TrendEnabled    bool
	TrendHysteresis float64

	// Retry policy
	RetryMaxAttempts  int
	RetryInitialDelay time.Duration
	RetryBanWait      time.Duration
	RetryResetAfter   int // Attempt index from which the HTTP session is recreated

	// Change stream
	StreamPollInterval time.Duration

	// Web server
	HTTPPort int

	// Archive. Empty disables it.
	DBPath string

	// Logging
	LogLevel  logger.LogLevel // Use the LogLevel type from the logger adapter
	LogFormat string          // "text" or "json"
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API. Klines and exchange info are public, so keys are optional.
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", false)

	cfg.QuoteAsset = strings.ToUpper(getEnv("QUOTE_ASSET", "USDT"))

	// Scan loop
	scanSeconds, err := getEnvAsIntRequired("SCAN_INTERVAL_SECONDS", 60)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SCAN_INTERVAL_SECONDS: %v", err))
	} else if scanSeconds <= 0 {
		errs = append(errs, "SCAN_INTERVAL_SECONDS must be positive")
	}
	cfg.ScanInterval = time.Duration(scanSeconds) * time.Second

	cfg.BatchSize, err = getEnvAsIntRequired("SCAN_BATCH_SIZE", 20)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SCAN_BATCH_SIZE: %v", err))
	} else if cfg.BatchSize <= 0 {
		errs = append(errs, "SCAN_BATCH_SIZE must be positive")
	}

	cfg.KlineLimit, err = getEnvAsIntRequired("KLINE_LIMIT", 100)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid KLINE_LIMIT: %v", err))
	} else if cfg.KlineLimit <= 0 || cfg.KlineLimit > 1500 {
		errs = append(errs, "KLINE_LIMIT must be between 1 and 1500")
	}

	requestPauseMs := getEnvAsInt("REQUEST_PAUSE_MS", 50)
	if requestPauseMs < 0 {
		errs = append(errs, "REQUEST_PAUSE_MS cannot be negative")
	}
	cfg.RequestPause = time.Duration(requestPauseMs) * time.Millisecond

	batchPauseMs := getEnvAsInt("BATCH_PAUSE_MS", 500)
	if batchPauseMs < 0 {
		errs = append(errs, "BATCH_PAUSE_MS cannot be negative")
	}
	cfg.BatchPause = time.Duration(batchPauseMs) * time.Millisecond

	// Indicator
	cfg.RSIPeriod = getEnvAsInt("RSI_PERIOD", 14)
	cfg.RSIOverbought, err = getEnvAsFloatRequired("RSI_OVERBOUGHT", 65.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RSI_OVERBOUGHT: %v", err))
	}
	cfg.RSIOversold, err = getEnvAsFloatRequired("RSI_OVERSOLD", 28.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RSI_OVERSOLD: %v", err))
	}

	if cfg.RSIPeriod <= 0 {
		errs = append(errs, "RSI_PERIOD must be positive")
	} else if cfg.KlineLimit <= cfg.RSIPeriod {
		errs = append(errs, "KLINE_LIMIT must be greater than RSI_PERIOD")
	}
	if cfg.RSIOverbought <= cfg.RSIOversold || cfg.RSIOverbought > 100 || cfg.RSIOversold < 0 {
		errs = append(errs, "invalid RSI thresholds (Overbought must be > Oversold, between 0-100)")
	}

	// Trend labels
	cfg.TrendEnabled = getEnvAsBool("TREND_ENABLED", true)
	cfg.TrendHysteresis = getEnvAsFloat("TREND_HYSTERESIS", 0.5)
	if cfg.TrendHysteresis < 0 {
		errs = append(errs, "TREND_HYSTERESIS cannot be negative")
	}

	// Retry policy
	cfg.RetryMaxAttempts = getEnvAsInt("RETRY_MAX_ATTEMPTS", 7)
	if cfg.RetryMaxAttempts <= 0 {
		errs = append(errs, "RETRY_MAX_ATTEMPTS must be positive")
	}
	initialDelayMs := getEnvAsInt("RETRY_INITIAL_DELAY_MS", 1000)
	if initialDelayMs <= 0 {
		errs = append(errs, "RETRY_INITIAL_DELAY_MS must be positive")
	}
	cfg.RetryInitialDelay = time.Duration(initialDelayMs) * time.Millisecond

	banWaitSeconds := getEnvAsInt("RETRY_BAN_WAIT_SECONDS", 300)
	if banWaitSeconds <= 0 {
		errs = append(errs, "RETRY_BAN_WAIT_SECONDS must be positive")
	}
	cfg.RetryBanWait = time.Duration(banWaitSeconds) * time.Second

	cfg.RetryResetAfter = getEnvAsInt("RETRY_RESET_AFTER_ATTEMPT", 2)
	if cfg.RetryResetAfter < 0 {
		errs = append(errs, "RETRY_RESET_AFTER_ATTEMPT cannot be negative")
	}

	// Change stream
	streamPollMs := getEnvAsInt("STREAM_POLL_MS", 1000)
	if streamPollMs <= 0 {
		errs = append(errs, "STREAM_POLL_MS must be positive")
	}
	cfg.StreamPollInterval = time.Duration(streamPollMs) * time.Millisecond

	// Web server
	cfg.HTTPPort, err = getEnvAsIntRequired("HTTP_PORT", 5002)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid HTTP_PORT: %v", err))
	} else if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		errs = append(errs, "HTTP_PORT must be between 1 and 65535")
	}

	// Archive
	cfg.DBPath = getEnvAllowEmpty("ARCHIVE_DB_PATH", "./data/rsi_scanner.db")

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", "text"))
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		errs = append(errs, "LOG_FORMAT must be 'text' or 'json'")
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: validation failed: %s", ports.ErrConfigurationError, strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAllowEmpty distinguishes an unset variable from one explicitly set to "".
func getEnvAllowEmpty(key, defaultValue string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	return strings.TrimSpace(value)
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
