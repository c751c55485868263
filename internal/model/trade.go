package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownSide is returned when a trade side is neither BUY nor SELL.
var ErrUnknownSide = errors.New("unknown trade side")

// TradeSide is the direction of a simulated trade.
type TradeSide string

const (
	SideBuy  TradeSide = "BUY"
	SideSell TradeSide = "SELL"
)

// ParseTradeSide accepts "buy"/"sell" in any case.
func ParseTradeSide(s string) (TradeSide, error) {
	switch side := TradeSide(strings.ToUpper(strings.TrimSpace(s))); side {
	case SideBuy, SideSell:
		return side, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSide, s)
}

// Trade is one simulated fill. Price is the pair's latest price at the time
// the trade was placed.
type Trade struct {
	ID      int64     `json:"id"`
	Account string    `json:"account"`
	Pair    string    `json:"pair"`
	Side    TradeSide `json:"side"`
	Qty     float64   `json:"qty"`
	Price   float64   `json:"price"`
	TS      time.Time `json:"ts"`
}
