package domain

// Trend is the direction of an RSI value relative to the previous scan.
type Trend string

const (
	TrendInitial Trend = "initial" // First observation, no history yet
	TrendUp      Trend = "up"
	TrendDown    Trend = "down"
	TrendStable  Trend = "stable"
)

// Display returns the label shown to readers. A missing signal is shown as stable.
func (t Trend) Display() Trend {
	if t == TrendInitial || t == "" {
		return TrendStable
	}
	return t
}
