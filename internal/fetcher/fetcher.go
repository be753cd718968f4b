// Package fetcher wraps the upstream client with the shared retry policy.
package fetcher

import (
	"context"
	"errors"
	"fmt"

	"rsiScanner/internal/domain"
	"rsiScanner/internal/metrics"
	"rsiScanner/internal/ports"
	"rsiScanner/internal/retry"
)

// minKlines is the smallest kline response treated as usable.
const minKlines = 2

var fallbackSymbols = []string{
	"BTCUSDT", "ETHUSDT", "BNBUSDT", "SOLUSDT", "XRPUSDT",
	"ADAUSDT", "DOGEUSDT", "AVAXUSDT", "DOTUSDT", "LINKUSDT",
}

// FallbackInstruments is the universe used when the listing cannot be fetched at all.
func FallbackInstruments() []domain.Instrument {
	out := make([]domain.Instrument, 0, len(fallbackSymbols))
	for _, s := range fallbackSymbols {
		out = append(out, domain.Instrument{
			Symbol:       s,
			Status:       domain.StatusTrading,
			ContractType: domain.ContractPerpetual,
			BaseAsset:    s[:len(s)-len(domain.DefaultQuoteAsset)],
			QuoteAsset:   domain.DefaultQuoteAsset,
		})
	}
	return out
}

// Config holds the fetcher dependencies.
type Config struct {
	Client     ports.UpstreamClient
	Policy     *retry.Policy
	QuoteAsset string
	Logger     ports.Logger
	Metrics    *metrics.Metrics
}

// Fetcher retrieves the universe and klines with retries and degradation.
type Fetcher struct {
	client     ports.UpstreamClient
	policy     *retry.Policy
	quoteAsset string
	logger     ports.Logger
	metrics    *metrics.Metrics
}

// New creates a Fetcher. A nil policy uses retry.NewPolicy defaults.
func New(cfg Config) (*Fetcher, error) {
	if cfg.Client == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("fetcher requires an upstream client and a logger")
	}
	policy := cfg.Policy
	if policy == nil {
		policy = retry.NewPolicy(cfg.Logger, cfg.Metrics)
	}
	quote := cfg.QuoteAsset
	if quote == "" {
		quote = domain.DefaultQuoteAsset
	}
	return &Fetcher{
		client:     cfg.Client,
		policy:     policy,
		quoteAsset: quote,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}, nil
}

// FetchUniverse returns the tradable perpetual instruments quoted in the configured asset.
// When every attempt fails it returns FallbackInstruments. The error is only set on cancellation.
func (f *Fetcher) FetchUniverse(ctx context.Context) ([]domain.Instrument, error) {
	var listing []domain.Instrument
	err := f.policy.Do(ctx, "universe", func(ctx context.Context, attempt int) error {
		var err error
		listing, err = f.client.ListPerpetualInstruments(ctx)
		return err
	}, f.client.ResetSession)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		fallback := FallbackInstruments()
		f.metrics.FallbackUsed()
		f.logger.Error(ctx, err, "Universe listing unavailable, using fallback symbols", map[string]interface{}{"symbols": len(fallback)})
		return fallback, nil
	}

	universe := make([]domain.Instrument, 0, len(listing))
	for _, inst := range listing {
		if inst.Tradable(f.quoteAsset) {
			universe = append(universe, inst)
		}
	}
	f.logger.Info(ctx, "Universe resolved", map[string]interface{}{"listed": len(listing), "tradable": len(universe), "quote": f.quoteAsset})
	return universe, nil
}

// FetchKlines returns at least two klines for symbol/interval, or an error wrapping
// ports.ErrNoData once the attempt budget is spent.
func (f *Fetcher) FetchKlines(ctx context.Context, symbol, interval string, limit int) ([]*domain.Kline, error) {
	var klines []*domain.Kline
	err := f.policy.Do(ctx, "klines", func(ctx context.Context, attempt int) error {
		got, err := f.client.GetKlines(ctx, symbol, interval, limit)
		if err != nil {
			return err
		}
		if len(got) < minKlines {
			return fmt.Errorf("%w: %d klines for %s %s", ports.ErrMalformedData, len(got), symbol, interval)
		}
		klines = got
		return nil
	}, f.client.ResetSession)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, retry.ErrExhausted) {
			f.logger.Warn(ctx, "No kline data after retries", map[string]interface{}{"symbol": symbol, "interval": interval, "error": err.Error()})
		}
		return nil, fmt.Errorf("%s %s: %w: %w", symbol, interval, ports.ErrNoData, err)
	}
	return klines, nil
}
