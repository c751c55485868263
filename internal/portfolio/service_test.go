package portfolio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memetrader/internal/metrics"
	"memetrader/internal/model"
)

// ── fakes ──

type fakePrices struct {
	mu     sync.Mutex
	series map[string][]model.PriceSample
	fail   map[string]error
}

func (f *fakePrices) Prices(_ context.Context, pair string, _ model.Timeframe) ([]model.PriceSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[pair]; err != nil {
		return nil, err
	}
	return f.series[pair], nil
}

type memTrades struct {
	mu     sync.Mutex
	trades []model.Trade
}

func (m *memTrades) SaveTrade(_ context.Context, t model.Trade) (model.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = int64(len(m.trades) + 1)
	m.trades = append(m.trades, t)
	return t, nil
}

func (m *memTrades) Trades(_ context.Context, account string) ([]model.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Trade
	for _, t := range m.trades {
		if t.Account == account {
			out = append(out, t)
		}
	}
	return out, nil
}

var t0 = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func at(min int, price float64) model.PriceSample {
	return model.PriceSample{TS: t0.Add(time.Duration(min) * time.Minute), Price: price}
}

func newTestService(t *testing.T, prices *fakePrices) (*Service, *memTrades, *metrics.Metrics) {
	t.Helper()
	store := &memTrades{}
	m := metrics.NewMetrics(prometheus.NewRegistry())
	svc := New(prices, store, Options{Metrics: m})
	svc.now = func() time.Time { return t0.Add(time.Hour) }
	return svc, store, m
}

func TestPlace_UsesLatestPrice(t *testing.T) {
	prices := &fakePrices{series: map[string][]model.PriceSample{"PEPE": {at(0, 1), at(1, 2.5)}}}
	svc, store, m := newTestService(t, prices)
	ctx := context.Background()

	tr, err := svc.Place(ctx, Order{Account: "alice", Pair: "PEPE", Side: "buy", Qty: 4})
	require.NoError(t, err)
	assert.Equal(t, int64(1), tr.ID)
	assert.Equal(t, model.SideBuy, tr.Side)
	assert.Equal(t, 2.5, tr.Price)
	assert.Equal(t, t0.Add(time.Hour), tr.TS)
	assert.Len(t, store.trades, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Trades.WithLabelValues("BUY")))
}

func TestPlace_Rejects(t *testing.T) {
	prices := &fakePrices{
		series: map[string][]model.PriceSample{"PEPE": {at(0, 1)}, "EMPTY": nil},
		fail:   map[string]error{"DOWN": errors.New("upstream 502")},
	}
	svc, store, _ := newTestService(t, prices)
	ctx := context.Background()

	_, err := svc.Place(ctx, Order{Account: "", Pair: "PEPE", Side: model.SideBuy, Qty: 1})
	assert.ErrorIs(t, err, ErrInvalidTrade)
	_, err = svc.Place(ctx, Order{Account: "alice", Pair: "PEPE", Side: "short", Qty: 1})
	assert.ErrorIs(t, err, ErrInvalidTrade)
	_, err = svc.Place(ctx, Order{Account: "alice", Pair: "PEPE", Side: model.SideBuy, Qty: -1})
	assert.ErrorIs(t, err, ErrInvalidTrade)
	_, err = svc.Place(ctx, Order{Account: "alice", Pair: "PEPE", Side: model.SideSell, Qty: 1})
	assert.ErrorIs(t, err, ErrInsufficientQty)
	_, err = svc.Place(ctx, Order{Account: "alice", Pair: "EMPTY", Side: model.SideBuy, Qty: 1})
	assert.ErrorIs(t, err, ErrNoPrice)
	_, err = svc.Place(ctx, Order{Account: "alice", Pair: "DOWN", Side: model.SideBuy, Qty: 1})
	assert.EqualError(t, err, "upstream 502")

	assert.Empty(t, store.trades)
}

func TestHoldings_ValuesAtLatestPrice(t *testing.T) {
	prices := &fakePrices{series: map[string][]model.PriceSample{
		"PEPE": {at(0, 2)},
		"WIF":  {at(0, 10)},
	}}
	svc, _, _ := newTestService(t, prices)
	ctx := context.Background()

	_, err := svc.Place(ctx, Order{Account: "alice", Pair: "PEPE", Side: model.SideBuy, Qty: 10})
	require.NoError(t, err)
	_, err = svc.Place(ctx, Order{Account: "alice", Pair: "WIF", Side: model.SideBuy, Qty: 1})
	require.NoError(t, err)

	prices.mu.Lock()
	prices.series["PEPE"] = []model.PriceSample{at(0, 2), at(1, 3)}
	prices.mu.Unlock()
	_, err = svc.Place(ctx, Order{Account: "alice", Pair: "PEPE", Side: model.SideSell, Qty: 4})
	require.NoError(t, err)

	prices.mu.Lock()
	prices.fail = map[string]error{"WIF": errors.New("timeout")}
	prices.mu.Unlock()

	sum, err := svc.Holdings(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Trades)
	assert.InDelta(t, 4.0, sum.RealizedPnL, 1e-12)
	require.Len(t, sum.Holdings, 2)

	pepe := sum.Holdings[0]
	assert.Equal(t, "PEPE", pepe.Pair)
	assert.Equal(t, 6.0, pepe.Qty)
	assert.Equal(t, 3.0, pepe.CurrentPrice)
	assert.InDelta(t, 18.0, pepe.Value, 1e-12)
	assert.InDelta(t, 6.0, pepe.ProfitLoss, 1e-12)
	assert.InDelta(t, 50.0, pepe.ProfitLossPercent, 1e-12)
	assert.False(t, pepe.Stale)

	wif := sum.Holdings[1]
	assert.True(t, wif.Stale)
	assert.Equal(t, 10.0, wif.CurrentPrice)

	assert.InDelta(t, 28.0, sum.Value, 1e-12)
	assert.InDelta(t, 6.0, sum.UnrealizedPnL, 1e-12)
	assert.InDelta(t, 10.0, sum.TotalPnL, 1e-12)
}

func TestHoldings_EmptyAccount(t *testing.T) {
	svc, _, _ := newTestService(t, &fakePrices{})
	sum, err := svc.Holdings(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, sum.Holdings)
	assert.Zero(t, sum.Value)
}

func TestHistory_ValueOverTime(t *testing.T) {
	prices := &fakePrices{series: map[string][]model.PriceSample{
		"PEPE": {at(0, 1), at(2, 2), at(4, 4)},
		"WIF":  {at(1, 10), at(3, 20)},
	}}
	svc, store, _ := newTestService(t, prices)

	store.trades = []model.Trade{
		{Account: "alice", Pair: "PEPE", Side: model.SideBuy, Qty: 5, Price: 1, TS: t0.Add(time.Minute)},
		{Account: "alice", Pair: "WIF", Side: model.SideBuy, Qty: 1, Price: 10, TS: t0.Add(2 * time.Minute)},
		{Account: "alice", Pair: "PEPE", Side: model.SideSell, Qty: 2, Price: 4, TS: t0.Add(4 * time.Minute)},
	}

	pts, err := svc.History(context.Background(), "alice", model.Timeframe24h)
	require.NoError(t, err)

	want := []float64{
		0,        // t0: nothing held yet
		5 * 1,    // t1: PEPE bought, still priced at t0
		5*2 + 10, // t2: WIF bought
		5*2 + 20, // t3: WIF moves
		3*4 + 20, // t4: partial PEPE sell
	}
	require.Len(t, pts, len(want))
	for i, w := range want {
		assert.Equal(t, t0.Add(time.Duration(i)*time.Minute), pts[i].TS)
		assert.InDelta(t, w, pts[i].Value, 1e-12, "point %d", i)
	}
}

func TestHistory_NoTradesAndErrors(t *testing.T) {
	prices := &fakePrices{fail: map[string]error{"PEPE": errors.New("boom")}}
	svc, store, _ := newTestService(t, prices)

	pts, err := svc.History(context.Background(), "alice", model.Timeframe7d)
	require.NoError(t, err)
	assert.NotNil(t, pts)
	assert.Empty(t, pts)

	store.trades = []model.Trade{{Account: "alice", Pair: "PEPE", Side: model.SideBuy, Qty: 1, Price: 1, TS: t0}}
	_, err = svc.History(context.Background(), "alice", model.Timeframe7d)
	assert.ErrorContains(t, err, "boom")
}
