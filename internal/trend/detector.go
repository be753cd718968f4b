// Package trend turns successive RSI readings into directional labels.
package trend

import "rsiScanner/internal/domain"

// DefaultHysteresis is the RSI move required before a change counts as up or down.
const DefaultHysteresis = 0.5

type key struct {
	symbol   string
	interval string
}

// Detector remembers the last RSI seen per symbol and interval for the life of the process.
// It is not safe for concurrent use: the scan loop is its only caller.
type Detector struct {
	hysteresis float64
	last       map[key]float64
}

// NewDetector creates a detector. A negative band falls back to DefaultHysteresis.
func NewDetector(hysteresis float64) *Detector {
	if hysteresis < 0 {
		hysteresis = DefaultHysteresis
	}
	return &Detector{
		hysteresis: hysteresis,
		last:       make(map[key]float64),
	}
}

// Observe compares rsi with the previous reading for the same key and stores rsi
// as the new baseline. The first reading for a key returns TrendInitial.
func (d *Detector) Observe(symbol, interval string, rsi float64) domain.Trend {
	k := key{symbol: symbol, interval: interval}
	prev, seen := d.last[k]
	d.last[k] = rsi
	if !seen {
		return domain.TrendInitial
	}

	switch {
	case rsi > prev+d.hysteresis:
		return domain.TrendUp
	case rsi < prev-d.hysteresis:
		return domain.TrendDown
	default:
		return domain.TrendStable
	}
}

// Len returns the number of tracked symbol/interval pairs.
func (d *Detector) Len() int {
	return len(d.last)
}
