package indicators

import (
	"context"
	"fmt"
	"math"

	"rsiScanner/internal/domain"
	"rsiScanner/internal/ports"
)

// DefaultRSIPeriod is Wilder's original lookback.
const DefaultRSIPeriod = 14

// zeroLossRS is used as RS when the smoothed average loss is zero.
// It yields 100 - 100/101 ≈ 99.01 instead of a division by zero.
const zeroLossRS = 100.0

// ComputeRSI returns Wilder's smoothed RSI of closes, oldest first.
// The boolean is false when there are fewer than period+1 closes or the result is NaN.
func ComputeRSI(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period+1 {
		return 0, false
	}

	p := float64(period)
	var avgGain, avgLoss float64

	// Seed with the simple mean of the first period differences.
	for i := 1; i <= period; i++ {
		gain, loss := split(closes[i] - closes[i-1])
		avgGain += gain
		avgLoss += loss
	}
	avgGain /= p
	avgLoss /= p

	// Wilder smoothing over the remaining differences, strictly in order.
	for i := period + 1; i < len(closes); i++ {
		gain, loss := split(closes[i] - closes[i-1])
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
	}

	rs := zeroLossRS
	if avgLoss != 0 {
		rs = avgGain / avgLoss
	}
	rsi := 100 - 100/(1+rs)
	if math.IsNaN(rsi) || math.IsInf(rsi, 0) {
		return 0, false
	}
	return rsi, true
}

func split(change float64) (gain, loss float64) {
	if change > 0 {
		return change, 0
	}
	if change < 0 {
		return 0, -change
	}
	return 0, 0
}

// RSIConfig holds configuration for the RSI indicator
type RSIConfig struct {
	IndicatorConfig
	Overbought float64
	Oversold   float64
}

// RSI implements the Relative Strength Index indicator and its bucket thresholds.
type RSI struct {
	BaseIndicator
	config RSIConfig
}

var _ Indicator = (*RSI)(nil)

// NewRSI creates a new RSI indicator instance. A non-positive period falls back to DefaultRSIPeriod.
func NewRSI(config RSIConfig) *RSI {
	if config.Period <= 0 {
		config.Period = DefaultRSIPeriod
	}
	return &RSI{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
		config:        config,
	}
}

// Name returns the name of the indicator
func (r *RSI) Name() string {
	return "RSI"
}

// Period returns the configured lookback.
func (r *RSI) Period() int {
	return r.Config.Period
}

// Calculate computes the RSI value of the kline closes.
func (r *RSI) Calculate(ctx context.Context, klines []*domain.Kline) (float64, error) {
	value, ok := ComputeRSI(domain.Closes(klines), r.Config.Period)
	if !ok {
		return 0, fmt.Errorf("%w: %d klines for RSI period %d", ports.ErrInsufficientData, len(klines), r.Config.Period)
	}
	return value, nil
}

// IsOverbought checks if the RSI value indicates an overbought condition
func (r *RSI) IsOverbought(value float64) bool {
	return value >= r.config.Overbought
}

// IsOversold checks if the RSI value indicates an oversold condition
func (r *RSI) IsOversold(value float64) bool {
	return value <= r.config.Oversold
}
