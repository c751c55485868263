// Package portfolio simulates buy/sell trades at live prices and values
// the resulting positions.
package portfolio

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"memetrader/internal/model"
)

var (
	// ErrInvalidTrade covers malformed orders: missing account or pair,
	// non-positive quantity, unknown side.
	ErrInvalidTrade = errors.New("invalid trade")

	// ErrInsufficientQty is returned when a sell exceeds the open position.
	ErrInsufficientQty = errors.New("insufficient quantity")
)

// Position is an open holding in one pair.
type Position struct {
	Pair     string  `json:"pair"`
	Qty      float64 `json:"qty"`
	AvgPrice float64 `json:"avg_price"`
}

type costEntry struct {
	qty      decimal.Decimal
	avgPrice decimal.Decimal
}

// Ledger replays trades into per-pair cost basis and realized P&L.
// Arithmetic is decimal so repeated averaging does not drift.
type Ledger struct {
	costBasis map[string]costEntry
	realized  decimal.Decimal
	trades    int
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{costBasis: make(map[string]costEntry)}
}

// Apply records t and returns the P&L it realized (zero for buys). A sell
// larger than the open quantity is rejected and leaves the ledger unchanged.
func (l *Ledger) Apply(t model.Trade) (float64, error) {
	if !(t.Qty > 0) || math.IsInf(t.Qty, 0) {
		return 0, fmt.Errorf("%w: qty must be positive, got %v", ErrInvalidTrade, t.Qty)
	}
	if !(t.Price >= 0) || math.IsInf(t.Price, 0) {
		return 0, fmt.Errorf("%w: bad price %v", ErrInvalidTrade, t.Price)
	}
	qty := decimal.NewFromFloat(t.Qty)
	price := decimal.NewFromFloat(t.Price)
	entry := l.costBasis[t.Pair]

	var realized decimal.Decimal
	switch t.Side {
	case model.SideBuy:
		total := entry.avgPrice.Mul(entry.qty).Add(price.Mul(qty))
		entry.qty = entry.qty.Add(qty)
		entry.avgPrice = total.Div(entry.qty)
	case model.SideSell:
		if qty.GreaterThan(entry.qty) {
			return 0, fmt.Errorf("%w: sell %s %s, holding %s", ErrInsufficientQty, qty, t.Pair, entry.qty)
		}
		realized = price.Sub(entry.avgPrice).Mul(qty)
		entry.qty = entry.qty.Sub(qty)
		if entry.qty.IsZero() {
			entry.avgPrice = decimal.Zero
		}
		l.realized = l.realized.Add(realized)
	default:
		return 0, fmt.Errorf("%w: %w: %q", ErrInvalidTrade, model.ErrUnknownSide, t.Side)
	}

	l.costBasis[t.Pair] = entry
	l.trades++
	return realized.InexactFloat64(), nil
}

// Open returns positions with a non-zero quantity, sorted by pair.
func (l *Ledger) Open() []Position {
	out := make([]Position, 0, len(l.costBasis))
	for pair, e := range l.costBasis {
		if !e.qty.IsPositive() {
			continue
		}
		out = append(out, Position{Pair: pair, Qty: e.qty.InexactFloat64(), AvgPrice: e.avgPrice.InexactFloat64()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pair < out[j].Pair })
	return out
}

// Realized returns total realized P&L.
func (l *Ledger) Realized() float64 { return l.realized.InexactFloat64() }

// Trades returns how many trades were applied.
func (l *Ledger) Trades() int { return l.trades }
