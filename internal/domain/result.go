package domain

import "time"

// ResultRow is one classified instrument of a scan cycle.
// RSISecondary and RSITertiary hold 0 when their timeframe could not be fetched.
type ResultRow struct {
	Symbol         string  `json:"symbol"`
	Price          float64 `json:"price"`
	RSI            float64 `json:"rsi"`
	RSISecondary   float64 `json:"rsi_15m"`
	RSITertiary    float64 `json:"rsi_1d"`
	Trend          Trend   `json:"trend,omitempty"`
	TrendSecondary Trend   `json:"trend_15m,omitempty"`
	TrendTertiary  Trend   `json:"trend_1d,omitempty"`
}

// Snapshot is the published state of the versioned cache.
type Snapshot struct {
	Overbought []ResultRow `json:"overbought"`
	Oversold   []ResultRow `json:"oversold"`
	LastUpdate *time.Time  `json:"last_update"`
	Version    uint64      `json:"version"`
}

// Ready reports whether at least one publish has happened.
func (s Snapshot) Ready() bool {
	return s.LastUpdate != nil
}

// CycleSummary describes one completed scan cycle.
type CycleSummary struct {
	ID         int64     `json:"id,omitempty"`
	Version    uint64    `json:"version"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Universe   int       `json:"universe"`
	Scanned    int       `json:"scanned"`
	Skipped    int       `json:"skipped"`
	Overbought int       `json:"overbought"`
	Oversold   int       `json:"oversold"`
}

// Duration returns how long the cycle took.
func (c CycleSummary) Duration() time.Duration {
	return c.FinishedAt.Sub(c.StartedAt)
}
