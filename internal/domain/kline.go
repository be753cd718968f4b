package domain

import "time"

// Kline represents a single candlestick.
type Kline struct {
	OpenTime  time.Time // Start time of the interval
	CloseTime time.Time // End time of the interval
	Symbol    string    // Trading symbol
	Interval  string    // Kline interval (e.g., "15m", "1h")
	Open      float64
	High      float64
	Low       float64
	Close     float64 // Only the close feeds the indicators
	Volume    float64
	IsFinal   bool // False for the still-forming last candle of a REST response
}

// Closes extracts closing prices, preserving order (oldest first).
func Closes(klines []*Kline) []float64 {
	closes := make([]float64, 0, len(klines))
	for _, k := range klines {
		if k == nil {
			continue
		}
		closes = append(closes, k.Close)
	}
	return closes
}

// LastClose returns the close of the newest kline, or 0 for an empty slice.
func LastClose(klines []*Kline) float64 {
	for i := len(klines) - 1; i >= 0; i-- {
		if klines[i] != nil {
			return klines[i].Close
		}
	}
	return 0
}
