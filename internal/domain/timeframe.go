package domain

// Timeframe pairs a scan role with the upstream kline interval it uses.
type Timeframe struct {
	Role     TimeframeRole
	Interval string
}

// TimeframeRole identifies a timeframe within a result row.
type TimeframeRole string

const (
	RolePrimary   TimeframeRole = "primary"
	RoleSecondary TimeframeRole = "secondary"
	RoleTertiary  TimeframeRole = "tertiary"
)

// Kline intervals understood by the upstream client.
const (
	Interval15m = "15m"
	Interval1h  = "1h"
	Interval1d  = "1d"
)

var (
	Primary   = Timeframe{Role: RolePrimary, Interval: Interval1h}
	Secondary = Timeframe{Role: RoleSecondary, Interval: Interval15m}
	Tertiary  = Timeframe{Role: RoleTertiary, Interval: Interval1d}
)
