package portfolio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"memetrader/internal/logger"
	"memetrader/internal/metrics"
	"memetrader/internal/model"
)

// ErrNoPrice is returned when a pair has no samples to trade or value at.
var ErrNoPrice = errors.New("no price available")

// PriceSource supplies price series. *chart.Service satisfies it.
type PriceSource interface {
	Prices(ctx context.Context, pair string, tf model.Timeframe) ([]model.PriceSample, error)
}

// Order is a request to trade at the pair's latest price.
type Order struct {
	Account string          `json:"-"`
	Pair    string          `json:"pair"`
	Side    model.TradeSide `json:"side"`
	Qty     float64         `json:"qty"`
}

// Holding is an open position valued at the latest price.
type Holding struct {
	Position
	CurrentPrice      float64 `json:"current_price"`
	Value             float64 `json:"value"`
	ProfitLoss        float64 `json:"profit_loss"`
	ProfitLossPercent float64 `json:"profit_loss_percent"`

	// Stale is set when the latest price could not be fetched and the
	// holding is valued at cost.
	Stale bool `json:"stale,omitempty"`
}

// Summary is an account's holdings and P&L.
type Summary struct {
	Account       string    `json:"account"`
	Holdings      []Holding `json:"holdings"`
	Value         float64   `json:"value"`
	RealizedPnL   float64   `json:"realized_pnl"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	TotalPnL      float64   `json:"total_pnl"`
	Trades        int       `json:"trades"`
}

// ValuePoint is the account's market value at one sample time.
type ValuePoint struct {
	TS    time.Time `json:"ts"`
	Value float64   `json:"value"`
}

// Options configures a Service.
type Options struct {
	Metrics     *metrics.Metrics
	Concurrency int // parallel price lookups; default 4
}

// Service places simulated trades and values accounts.
type Service struct {
	prices      PriceSource
	store       model.TradeStore
	m           *metrics.Metrics
	concurrency int

	// mu serializes Place so two sells cannot both pass the quantity check.
	mu  sync.Mutex
	now func() time.Time
}

// New creates a Service.
func New(prices PriceSource, store model.TradeStore, opts Options) *Service {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Service{
		prices:      prices,
		store:       store,
		m:           opts.Metrics,
		concurrency: opts.Concurrency,
		now:         time.Now,
	}
}

// Place fills o at the pair's latest 24h price and records the trade.
func (s *Service) Place(ctx context.Context, o Order) (model.Trade, error) {
	o.Account = strings.TrimSpace(o.Account)
	o.Pair = strings.TrimSpace(o.Pair)
	if o.Account == "" || o.Pair == "" {
		return model.Trade{}, fmt.Errorf("%w: account and pair are required", ErrInvalidTrade)
	}
	side, err := model.ParseTradeSide(string(o.Side))
	if err != nil {
		return model.Trade{}, fmt.Errorf("%w: %w", ErrInvalidTrade, err)
	}

	price, err := s.latest(ctx, o.Pair)
	if err != nil {
		return model.Trade{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ledger, err := s.ledger(ctx, o.Account)
	if err != nil {
		return model.Trade{}, err
	}
	t := model.Trade{
		Account: o.Account,
		Pair:    o.Pair,
		Side:    side,
		Qty:     o.Qty,
		Price:   price,
		TS:      s.now().UTC(),
	}
	if _, err := ledger.Apply(t); err != nil {
		return model.Trade{}, err
	}
	if t, err = s.store.SaveTrade(ctx, t); err != nil {
		return model.Trade{}, err
	}

	if s.m != nil {
		s.m.Trades.WithLabelValues(string(side)).Inc()
	}
	slog.Info("[portfolio] trade placed",
		append(logger.LogWithTrace(ctx),
			"account", t.Account, "pair", t.Pair, "side", t.Side, "qty", t.Qty, "price", t.Price)...)
	return t, nil
}

// Trades lists an account's trades, oldest first.
func (s *Service) Trades(ctx context.Context, account string) ([]model.Trade, error) {
	trades, err := s.store.Trades(ctx, account)
	if err != nil {
		return nil, err
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	return trades, nil
}

// Holdings values every open position at its latest price. A pair whose
// price cannot be fetched is valued at cost and marked stale.
func (s *Service) Holdings(ctx context.Context, account string) (Summary, error) {
	ledger, err := s.ledger(ctx, account)
	if err != nil {
		return Summary{}, err
	}

	open := ledger.Open()
	holdings := make([]Holding, len(open))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, pos := range open {
		g.Go(func() error {
			h := Holding{Position: pos, CurrentPrice: pos.AvgPrice}
			price, err := s.latest(ctx, pos.Pair)
			if err != nil {
				slog.Warn("[portfolio] pricing failed, valuing at cost",
					append(logger.LogWithTrace(ctx), "pair", pos.Pair, "error", err)...)
				h.Stale = true
			} else {
				h.CurrentPrice = price
			}
			holdings[i] = h
			return nil
		})
	}
	g.Wait()

	sum := Summary{
		Account:     account,
		Holdings:    holdings,
		RealizedPnL: ledger.Realized(),
		Trades:      ledger.Trades(),
	}
	for i := range holdings {
		h := &holdings[i]
		h.Value = h.Qty * h.CurrentPrice
		h.ProfitLoss = (h.CurrentPrice - h.AvgPrice) * h.Qty
		if h.AvgPrice != 0 {
			h.ProfitLossPercent = (h.CurrentPrice - h.AvgPrice) / h.AvgPrice * 100
		}
		sum.Value += h.Value
		sum.UnrealizedPnL += h.ProfitLoss
	}
	sum.TotalPnL = sum.RealizedPnL + sum.UnrealizedPnL
	return sum, nil
}

// History returns the account's market value at each price sample in the
// timeframe, across all pairs it has traded. Points before the first trade
// are zero.
func (s *Service) History(ctx context.Context, account string, tf model.Timeframe) ([]ValuePoint, error) {
	trades, err := s.store.Trades(ctx, account)
	if err != nil {
		return nil, err
	}
	if len(trades) == 0 {
		return []ValuePoint{}, nil
	}

	var pairs []string
	seen := make(map[string]bool)
	for _, t := range trades {
		if !seen[t.Pair] {
			seen[t.Pair] = true
			pairs = append(pairs, t.Pair)
		}
	}
	sort.Strings(pairs)

	series := make([][]model.PriceSample, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, pair := range pairs {
		g.Go(func() error {
			samples, err := s.prices.Prices(gctx, pair, tf)
			if err != nil {
				return fmt.Errorf("prices %s: %w", pair, err)
			}
			series[i] = samples
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return valueOverTime(trades, pairs, series), nil
}

// valueOverTime walks the union of sample times, applying trades and the
// latest price per pair as of each time.
func valueOverTime(trades []model.Trade, pairs []string, series [][]model.PriceSample) []ValuePoint {
	var grid []time.Time
	for _, ser := range series {
		for _, smp := range ser {
			grid = append(grid, smp.TS)
		}
	}
	sort.Slice(grid, func(i, j int) bool { return grid[i].Before(grid[j]) })

	held := make(map[string]float64, len(pairs))
	last := make([]float64, len(pairs))
	next := make([]int, len(pairs))
	ti := 0

	points := make([]ValuePoint, 0, len(grid))
	for i, ts := range grid {
		if i > 0 && ts.Equal(grid[i-1]) {
			continue
		}
		for ; ti < len(trades) && !trades[ti].TS.After(ts); ti++ {
			t := trades[ti]
			if t.Side == model.SideSell {
				held[t.Pair] -= t.Qty
			} else {
				held[t.Pair] += t.Qty
			}
		}
		var v float64
		for p, pair := range pairs {
			for next[p] < len(series[p]) && !series[p][next[p]].TS.After(ts) {
				last[p] = series[p][next[p]].Price
				next[p]++
			}
			v += held[pair] * last[p]
		}
		points = append(points, ValuePoint{TS: ts, Value: v})
	}
	return points
}

func (s *Service) latest(ctx context.Context, pair string) (float64, error) {
	samples, err := s.prices.Prices(ctx, pair, model.Timeframe24h)
	if err != nil {
		return 0, err
	}
	if len(samples) == 0 {
		return 0, fmt.Errorf("%w for %s", ErrNoPrice, pair)
	}
	return samples[len(samples)-1].Price, nil
}

func (s *Service) ledger(ctx context.Context, account string) (*Ledger, error) {
	trades, err := s.store.Trades(ctx, account)
	if err != nil {
		return nil, err
	}
	l := NewLedger()
	for _, t := range trades {
		if _, err := l.Apply(t); err != nil {
			return nil, fmt.Errorf("replay trade %d: %w", t.ID, err)
		}
	}
	return l, nil
}
