package model

import (
	"context"
	"time"
)

// ── Port Interfaces ──
// These interfaces decouple the chart service from concrete implementations
// (HTTP price API, Redis, SQLite).

// PriceSeriesProvider fetches a pair's price history from an upstream API.
type PriceSeriesProvider interface {
	// HistoricalPrices returns samples for the timeframe, ascending by TS.
	HistoricalPrices(ctx context.Context, pair string, tf Timeframe) ([]PriceSample, error)
}

// PriceCache holds recently fetched price series.
type PriceCache interface {
	// GetPrices returns nil, nil on a cache miss.
	GetPrices(ctx context.Context, pair string, tf Timeframe) ([]PriceSample, error)

	// SetPrices stores a series with the timeframe's TTL.
	SetPrices(ctx context.Context, pair string, tf Timeframe, samples []PriceSample) error

	// PublishUpdate notifies subscribers that a pair's prices changed.
	PublishUpdate(ctx context.Context, update PriceUpdate) error
}

// PriceHistory persists price samples across restarts.
type PriceHistory interface {
	// SavePrices upserts samples for a pair.
	SavePrices(ctx context.Context, pair string, samples []PriceSample) error

	// ReadPrices returns samples with TS >= from, ascending.
	ReadPrices(ctx context.Context, pair string, from time.Time) ([]PriceSample, error)
}

// PriceUpdate is the notification payload published after a refresh.
type PriceUpdate struct {
	Pair      string    `json:"pair"`
	Timeframe Timeframe `json:"timeframe"`
	TS        time.Time `json:"ts"`
	Samples   int       `json:"samples"`
}

// TradeStore persists simulated trades.
type TradeStore interface {
	// SaveTrade stores t and returns it with its assigned ID.
	SaveTrade(ctx context.Context, t Trade) (Trade, error)

	// Trades returns an account's trades in the order they were placed.
	Trades(ctx context.Context, account string) ([]Trade, error)
}
