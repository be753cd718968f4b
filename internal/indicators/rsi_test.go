package indicators

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rsiScanner/internal/domain"
	"rsiScanner/internal/ports"
)

var textbookCloses = []float64{44, 44.34, 44.09, 44.15, 43.61, 44.33, 44.83, 45.10, 45.42, 45.84, 46.08, 45.89, 46.03, 45.61, 46.28}

func risingCloses(n int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + float64(i)*1.5
	}
	return closes
}

func fallingCloses(n int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 500 - float64(i)*2
	}
	return closes
}

func TestComputeRSI(t *testing.T) {
	tests := []struct {
		name     string
		closes   []float64
		period   int
		expected float64
		ok       bool
	}{
		{
			name:     "textbook series",
			closes:   textbookCloses,
			period:   14,
			expected: 72.440945,
			ok:       true,
		},
		{
			name:     "short period with smoothing",
			closes:   []float64{100, 102, 101, 103, 102, 104},
			period:   3,
			expected: 77.272727,
			ok:       true,
		},
		{
			name:     "only gains uses RS sentinel",
			closes:   []float64{100, 102, 104, 106},
			period:   3,
			expected: 100 - 100.0/101.0,
			ok:       true,
		},
		{
			name:     "only losses",
			closes:   []float64{106, 104, 102, 100},
			period:   3,
			expected: 0,
			ok:       true,
		},
		{
			name:   "one point short",
			closes: textbookCloses[:14],
			period: 14,
			ok:     false,
		},
		{
			name:   "empty input",
			closes: nil,
			period: 14,
			ok:     false,
		},
		{
			name:   "non-positive period",
			closes: textbookCloses,
			period: 0,
			ok:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, ok := ComputeRSI(tt.closes, tt.period)
			require.Equal(t, tt.ok, ok)
			if !tt.ok {
				return
			}
			assert.InDelta(t, tt.expected, value, 0.0001)
		})
	}
}

func TestComputeRSI_UndefinedBelowWarmup(t *testing.T) {
	for period := 1; period <= 20; period++ {
		for n := 0; n <= period; n++ {
			_, ok := ComputeRSI(risingCloses(n), period)
			assert.False(t, ok, "period %d with %d closes", period, n)
		}
	}
}

func TestComputeRSI_Bounds(t *testing.T) {
	for _, n := range []int{15, 30, 100, 200} {
		up, ok := ComputeRSI(risingCloses(n), 14)
		require.True(t, ok)
		assert.Greater(t, up, 99.0)
		assert.LessOrEqual(t, up, 100.0)

		down, ok := ComputeRSI(fallingCloses(n), 14)
		require.True(t, ok)
		assert.GreaterOrEqual(t, down, 0.0)
		assert.Less(t, down, 1.0)
	}
}

func TestComputeRSI_ZeroLossIsFinite(t *testing.T) {
	value, ok := ComputeRSI(risingCloses(50), 14)
	require.True(t, ok)
	assert.False(t, math.IsNaN(value))
	assert.False(t, math.IsInf(value, 0))
	assert.Less(t, value, 100.0)

	// A flat series has no losses either, so it also takes the sentinel path.
	flat := []float64{10, 10, 10, 10, 10}
	value, ok = ComputeRSI(flat, 3)
	require.True(t, ok)
	assert.InDelta(t, 100-100.0/101.0, value, 1e-9)
}

func TestComputeRSI_OrderMatters(t *testing.T) {
	reversed := make([]float64, len(textbookCloses))
	for i, c := range textbookCloses {
		reversed[len(reversed)-1-i] = c
	}

	forward, ok := ComputeRSI(textbookCloses, 14)
	require.True(t, ok)
	backward, ok := ComputeRSI(reversed, 14)
	require.True(t, ok)
	assert.NotEqual(t, forward, backward)
}

func TestComputeRSI_NonFiniteIsUndefined(t *testing.T) {
	closes := risingCloses(20)
	closes[5] = math.Inf(1)
	_, ok := ComputeRSI(closes, 14)
	assert.False(t, ok)
}

func TestComputeRSI_Deterministic(t *testing.T) {
	first, _ := ComputeRSI(textbookCloses, 14)
	for i := 0; i < 10; i++ {
		again, _ := ComputeRSI(textbookCloses, 14)
		assert.Equal(t, first, again)
	}
}

func TestRSI_Calculate(t *testing.T) {
	now := time.Now()
	klines := make([]*domain.Kline, 0, len(textbookCloses))
	for i, c := range textbookCloses {
		klines = append(klines, &domain.Kline{OpenTime: now.Add(time.Duration(i-len(textbookCloses)) * time.Hour), Close: c})
	}

	rsi := NewRSI(RSIConfig{IndicatorConfig: IndicatorConfig{Period: 14}, Overbought: 65, Oversold: 28})
	value, err := rsi.Calculate(context.Background(), klines)
	require.NoError(t, err)
	assert.InDelta(t, 72.440945, value, 0.0001)
	assert.Equal(t, 15, rsi.RequiredDataPoints())

	_, err = rsi.Calculate(context.Background(), klines[:10])
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrInsufficientData))
}

func TestRSI_IsOverboughtOversold(t *testing.T) {
	config := RSIConfig{
		IndicatorConfig: IndicatorConfig{Period: 14},
		Overbought:      65,
		Oversold:        28,
	}

	tests := []struct {
		name         string
		value        float64
		isOverbought bool
		isOversold   bool
	}{
		{name: "Overbought condition", value: 75.0, isOverbought: true},
		{name: "Oversold condition", value: 20.0, isOversold: true},
		{name: "Neutral condition", value: 50.0},
		{name: "Exact overbought threshold", value: 65.0, isOverbought: true},
		{name: "Exact oversold threshold", value: 28.0, isOversold: true},
		{name: "Just inside neutral band", value: 28.01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rsi := NewRSI(config)
			assert.Equal(t, tt.isOverbought, rsi.IsOverbought(tt.value), "IsOverbought(%f)", tt.value)
			assert.Equal(t, tt.isOversold, rsi.IsOversold(tt.value), "IsOversold(%f)", tt.value)
		})
	}
}

func TestRSI_Defaults(t *testing.T) {
	rsi := NewRSI(RSIConfig{})
	assert.Equal(t, "RSI", rsi.Name())
	assert.Equal(t, DefaultRSIPeriod, rsi.Period())
}
