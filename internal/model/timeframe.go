package model

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe is the chart window a caller asks prices for.
type Timeframe string

const (
	Timeframe24h Timeframe = "24h"
	Timeframe7d  Timeframe = "7d"
	Timeframe30d Timeframe = "30d"
	Timeframe1y  Timeframe = "1y"
)

// Timeframes lists every supported timeframe, shortest first.
var Timeframes = []Timeframe{Timeframe24h, Timeframe7d, Timeframe30d, Timeframe1y}

// ErrUnknownTimeframe is returned by ParseTimeframe.
var ErrUnknownTimeframe = fmt.Errorf("unknown timeframe")

// ParseTimeframe accepts both the chart spellings (24h, 7d, 30d, 1y) and the
// upstream price API spellings (24H, 1W, 1M, 1Y).
func ParseTimeframe(s string) (Timeframe, error) {
	switch strings.TrimSpace(s) {
	case "24h", "24H", "1d", "1D":
		return Timeframe24h, nil
	case "7d", "7D", "1W", "1w":
		return Timeframe7d, nil
	case "30d", "30D", "1M":
		return Timeframe30d, nil
	case "1y", "1Y":
		return Timeframe1y, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTimeframe, s)
}

// Lookback is how far back from now the timeframe reaches.
func (tf Timeframe) Lookback() time.Duration {
	switch tf {
	case Timeframe7d:
		return 7 * 24 * time.Hour
	case Timeframe30d:
		return 30 * 24 * time.Hour
	case Timeframe1y:
		return 365 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// CacheTTL is how long a fetched price series for this timeframe stays fresh.
// Longer windows move less per minute, so they are cached longer.
func (tf Timeframe) CacheTTL() time.Duration {
	switch tf {
	case Timeframe7d:
		return 15 * time.Minute
	case Timeframe30d:
		return time.Hour
	case Timeframe1y:
		return 24 * time.Hour
	default:
		return 5 * time.Minute
	}
}

// From returns the start of the window ending at now.
func (tf Timeframe) From(now time.Time) time.Time {
	return now.Add(-tf.Lookback())
}
