// Package scanner runs one batch-wise scan of the futures universe and publishes
// the classified buckets after every batch.
package scanner

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"rsiScanner/internal/domain"
	"rsiScanner/internal/indicators"
	"rsiScanner/internal/metrics"
	"rsiScanner/internal/ports"
	"rsiScanner/internal/retry"
	"rsiScanner/internal/trend"
)

// Defaults of the scan loop.
const (
	DefaultBatchSize    = 20
	DefaultKlineLimit   = 100
	DefaultRequestPause = 50 * time.Millisecond
	DefaultBatchPause   = 500 * time.Millisecond
)

// Skip reasons reported to metrics.
const (
	skipPrimary = "primary_unavailable"
	skipRSI     = "rsi_undefined"
	skipPanic   = "panic"
)

// Source is the subset of the fetcher the pipeline needs.
type Source interface {
	FetchUniverse(ctx context.Context) ([]domain.Instrument, error)
	FetchKlines(ctx context.Context, symbol, interval string, limit int) ([]*domain.Kline, error)
}

// Config holds the pipeline dependencies and tuning.
type Config struct {
	Fetcher      Source
	Publisher    ports.SnapshotPublisher
	Detector     *trend.Detector // nil disables trend labels
	RSI          *indicators.RSI
	BatchSize    int
	KlineLimit   int
	RequestPause time.Duration
	BatchPause   time.Duration
	Logger       ports.Logger
	Metrics      *metrics.Metrics
	Sleep        retry.SleepFunc
}

// Pipeline scans the universe in batches. RunCycle must not be called concurrently:
// the pipeline is the single writer of the cache and the trend detector.
type Pipeline struct {
	source       Source
	publisher    ports.SnapshotPublisher
	detector     *trend.Detector
	rsi          *indicators.RSI
	batchSize    int
	klineLimit   int
	requestPause time.Duration
	batchPause   time.Duration
	logger       ports.Logger
	metrics      *metrics.Metrics
	sleep        retry.SleepFunc
	now          func() time.Time
}

// New validates cfg and fills in defaults.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Fetcher == nil || cfg.Publisher == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("scanner requires a fetcher, a publisher and a logger")
	}
	rsi := cfg.RSI
	if rsi == nil {
		rsi = indicators.NewRSI(indicators.RSIConfig{Overbought: 65, Oversold: 28})
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.KlineLimit <= 0 {
		cfg.KlineLimit = DefaultKlineLimit
	}
	if cfg.KlineLimit <= rsi.Period() {
		return nil, fmt.Errorf("kline limit %d must exceed RSI period %d", cfg.KlineLimit, rsi.Period())
	}
	if cfg.RequestPause < 0 {
		cfg.RequestPause = DefaultRequestPause
	}
	if cfg.BatchPause < 0 {
		cfg.BatchPause = DefaultBatchPause
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = retry.Sleep
	}
	return &Pipeline{
		source:       cfg.Fetcher,
		publisher:    cfg.Publisher,
		detector:     cfg.Detector,
		rsi:          rsi,
		batchSize:    cfg.BatchSize,
		klineLimit:   cfg.KlineLimit,
		requestPause: cfg.RequestPause,
		batchPause:   cfg.BatchPause,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		sleep:        sleep,
		now:          time.Now,
	}, nil
}

type bucket int

const (
	bucketNone bucket = iota
	bucketOverbought
	bucketOversold
)

// RunCycle scans the whole universe once. It returns ports.ErrUniverseUnavailable
// when there is nothing to scan and ctx.Err() on cancellation; in both cases the
// previously published snapshot is left as it is.
func (p *Pipeline) RunCycle(ctx context.Context) (domain.CycleSummary, error) {
	summary := domain.CycleSummary{StartedAt: p.now()}

	universe, err := p.source.FetchUniverse(ctx)
	if err != nil {
		p.metrics.ObserveCycle("canceled", 0)
		return summary, err
	}
	if len(universe) == 0 {
		p.metrics.ObserveCycle("aborted", 0)
		return summary, fmt.Errorf("scan cycle aborted: %w", ports.ErrUniverseUnavailable)
	}
	summary.Universe = len(universe)
	p.logger.Info(ctx, "Scan cycle started", map[string]interface{}{"symbols": len(universe), "batchSize": p.batchSize})

	var overbought, oversold []domain.ResultRow
	processed := 0

	for start := 0; start < len(universe); start += p.batchSize {
		if err := ctx.Err(); err != nil {
			return p.canceled(ctx, summary, err)
		}
		end := min(start+p.batchSize, len(universe))

		for _, inst := range universe[start:end] {
			if err := ctx.Err(); err != nil {
				return p.canceled(ctx, summary, err)
			}

			row, b, err := p.scanSymbol(ctx, inst.Symbol)
			processed++
			if ctxErr := ctx.Err(); ctxErr != nil {
				return p.canceled(ctx, summary, ctxErr)
			}
			if err != nil {
				summary.Skipped++
				p.logger.Debug(ctx, "Symbol skipped", map[string]interface{}{"symbol": inst.Symbol, "error": err.Error()})
				continue
			}
			summary.Scanned++
			p.metrics.SymbolScanned()
			switch b {
			case bucketOverbought:
				overbought = append(overbought, row)
			case bucketOversold:
				oversold = append(oversold, row)
			}
			p.logger.Debug(ctx, "Symbol processed", map[string]interface{}{
				"symbol":   inst.Symbol,
				"progress": fmt.Sprintf("%d/%d", processed, len(universe)),
			})
		}

		sortBuckets(overbought, oversold)
		snap := p.publisher.Publish(cloneRows(overbought), cloneRows(oversold))
		summary.Version = snap.Version
		p.metrics.BatchDone()
		p.logger.Debug(ctx, "Batch published", map[string]interface{}{
			"version":    snap.Version,
			"overbought": len(overbought),
			"oversold":   len(oversold),
		})

		if end < len(universe) {
			if err := p.sleep(ctx, p.batchPause); err != nil {
				return p.canceled(ctx, summary, err)
			}
		}
	}

	summary.FinishedAt = p.now()
	summary.Overbought = len(overbought)
	summary.Oversold = len(oversold)
	p.metrics.ObserveCycle("ok", summary.Duration())
	p.logger.Info(ctx, "Scan cycle completed", map[string]interface{}{
		"scanned":    summary.Scanned,
		"skipped":    summary.Skipped,
		"overbought": summary.Overbought,
		"oversold":   summary.Oversold,
		"version":    summary.Version,
		"elapsed":    summary.Duration().Round(time.Millisecond).String(),
	})
	return summary, nil
}

func (p *Pipeline) canceled(ctx context.Context, summary domain.CycleSummary, err error) (domain.CycleSummary, error) {
	summary.FinishedAt = p.now()
	p.metrics.ObserveCycle("canceled", summary.Duration())
	p.logger.Info(ctx, "Scan cycle canceled", map[string]interface{}{"scanned": summary.Scanned})
	return summary, err
}

// scanSymbol builds the row of one symbol. A panic is turned into an error so
// one bad symbol never takes down the cycle.
func (p *Pipeline) scanSymbol(ctx context.Context, symbol string) (row domain.ResultRow, b bucket, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.metrics.SymbolSkipped(skipPanic)
			p.logger.Error(ctx, fmt.Errorf("panic: %v", r), "Recovered while scanning symbol", map[string]interface{}{"symbol": symbol})
			row, b, err = domain.ResultRow{}, bucketNone, fmt.Errorf("scanning %s panicked: %v", symbol, r)
		}
	}()

	primary, err := p.fetch(ctx, symbol, domain.Primary.Interval)
	if err != nil {
		p.metrics.SymbolSkipped(skipPrimary)
		return domain.ResultRow{}, bucketNone, err
	}
	primaryRSI, err := p.rsi.Calculate(ctx, primary)
	if err != nil {
		p.metrics.SymbolSkipped(skipRSI)
		return domain.ResultRow{}, bucketNone, err
	}

	secondaryRSI, secondaryOK := p.optionalRSI(ctx, symbol, domain.Secondary.Interval)
	tertiaryRSI, tertiaryOK := p.optionalRSI(ctx, symbol, domain.Tertiary.Interval)

	row = domain.ResultRow{
		Symbol:       symbol,
		Price:        domain.LastClose(primary),
		RSI:          round2(primaryRSI),
		RSISecondary: round2(secondaryRSI),
		RSITertiary:  round2(tertiaryRSI),
	}
	if p.detector != nil {
		row.Trend = p.detector.Observe(symbol, domain.Primary.Interval, primaryRSI).Display()
		row.TrendSecondary = domain.TrendStable
		row.TrendTertiary = domain.TrendStable
		if secondaryOK {
			row.TrendSecondary = p.detector.Observe(symbol, domain.Secondary.Interval, secondaryRSI).Display()
		}
		if tertiaryOK {
			row.TrendTertiary = p.detector.Observe(symbol, domain.Tertiary.Interval, tertiaryRSI).Display()
		}
	}

	switch {
	case p.rsi.IsOverbought(primaryRSI):
		return row, bucketOverbought, nil
	case p.rsi.IsOversold(primaryRSI):
		return row, bucketOversold, nil
	default:
		return row, bucketNone, nil
	}
}

// optionalRSI returns the RSI of a non-primary timeframe, or 0 when it is unavailable.
func (p *Pipeline) optionalRSI(ctx context.Context, symbol, interval string) (float64, bool) {
	klines, err := p.fetch(ctx, symbol, interval)
	if err != nil {
		p.logger.Debug(ctx, "Timeframe unavailable, using 0", map[string]interface{}{"symbol": symbol, "interval": interval})
		return 0, false
	}
	value, err := p.rsi.Calculate(ctx, klines)
	if err != nil {
		return 0, false
	}
	return value, true
}

// fetch requests klines and then pauses to stay under the upstream weight limits.
func (p *Pipeline) fetch(ctx context.Context, symbol, interval string) ([]*domain.Kline, error) {
	klines, err := p.source.FetchKlines(ctx, symbol, interval, p.klineLimit)
	if sleepErr := p.sleep(ctx, p.requestPause); sleepErr != nil {
		return nil, sleepErr
	}
	return klines, err
}

// sortBuckets orders overbought by RSI descending and oversold ascending, keeping ties in scan order.
func sortBuckets(overbought, oversold []domain.ResultRow) {
	sort.SliceStable(overbought, func(i, j int) bool { return overbought[i].RSI > overbought[j].RSI })
	sort.SliceStable(oversold, func(i, j int) bool { return oversold[i].RSI < oversold[j].RSI })
}

func cloneRows(rows []domain.ResultRow) []domain.ResultRow {
	return append(make([]domain.ResultRow, 0, len(rows)), rows...)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
