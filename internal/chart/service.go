// Package chart assembles price series and indicator overlays for a pair.
// It reads through the Redis cache to the upstream price API, persists what
// it fetches to SQLite, and falls back to that history when the upstream is
// down.
package chart

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"memetrader/internal/indicator"
	"memetrader/internal/logger"
	"memetrader/internal/metrics"
	"memetrader/internal/model"
)

// ErrEmptyPair is returned when a request names no pair.
var ErrEmptyPair = errors.New("pair is required")

// Chart is one pair's prices for a timeframe plus the requested overlays.
type Chart struct {
	Pair      string                  `json:"pair"`
	Timeframe model.Timeframe         `json:"timeframe"`
	Samples   []model.PriceSample     `json:"samples"`
	Series    []model.IndicatorSeries `json:"series"`
	Stale     bool                    `json:"stale,omitempty"` // served from history after an upstream failure
}

// Options carries the optional collaborators of a Service. Any nil field
// disables that layer.
type Options struct {
	Engine  *indicator.Engine
	Cache   model.PriceCache
	History model.PriceHistory
	Metrics *metrics.Metrics
}

// Service is the chart read path. Safe for concurrent use.
type Service struct {
	upstream model.PriceSeriesProvider
	engine   *indicator.Engine
	cache    model.PriceCache
	history  model.PriceHistory
	prom     *metrics.Metrics
	now      func() time.Time
}

// New creates a Service. upstream is required.
func New(upstream model.PriceSeriesProvider, opts Options) *Service {
	engine := opts.Engine
	if engine == nil {
		engine = indicator.NewEngine(indicator.DefaultConfigs)
	}
	return &Service{
		upstream: upstream,
		engine:   engine,
		cache:    opts.Cache,
		history:  opts.History,
		prom:     opts.Metrics,
		now:      time.Now,
	}
}

// Engine returns the indicator engine the service computes with.
func (s *Service) Engine() *indicator.Engine { return s.engine }

// Prices returns the pair's samples for tf, ascending by timestamp.
func (s *Service) Prices(ctx context.Context, pair string, tf model.Timeframe) ([]model.PriceSample, error) {
	samples, _, err := s.prices(ctx, pair, tf)
	return samples, err
}

// prices reports whether the result came from history after an upstream
// failure.
func (s *Service) prices(ctx context.Context, pair string, tf model.Timeframe) ([]model.PriceSample, bool, error) {
	if pair == "" {
		return nil, false, ErrEmptyPair
	}

	if cached := s.fromCache(ctx, pair, tf); cached != nil {
		return cached, false, nil
	}

	samples, err := s.fetch(ctx, pair, tf)
	if err == nil {
		s.store(ctx, pair, tf, samples)
		return samples, false, nil
	}

	if hist := s.fromHistory(ctx, pair, tf); len(hist) > 0 {
		slog.Warn("[chart] upstream failed, serving history",
			append(logger.LogWithTrace(ctx), "pair", pair, "timeframe", tf, "samples", len(hist), "error", err)...)
		s.countFetch("fallback")
		return hist, true, nil
	}
	return nil, false, err
}

// Indicators returns the pair's prices and the requested indicator series.
func (s *Service) Indicators(ctx context.Context, pair string, tf model.Timeframe, kinds []model.IndicatorKind) (*Chart, error) {
	samples, stale, err := s.prices(ctx, pair, tf)
	if err != nil {
		return nil, err
	}
	return &Chart{
		Pair:      pair,
		Timeframe: tf,
		Samples:   samples,
		Series:    s.Compute(samples, kinds),
		Stale:     stale,
	}, nil
}

// Compute runs the engine over caller-supplied samples. Each requested kind
// is timed separately; the combined output keeps the engine's order.
func (s *Service) Compute(samples []model.PriceSample, kinds []model.IndicatorKind) []model.IndicatorSeries {
	if s.prom == nil {
		return s.engine.Compute(samples, kinds)
	}

	// Kind values ascend in output order, so computing kind by kind in
	// sorted order reproduces the single-call result.
	uniq := make([]model.IndicatorKind, 0, len(kinds))
	seen := make(map[model.IndicatorKind]bool, len(kinds))
	for _, k := range kinds {
		if !seen[k] {
			seen[k] = true
			uniq = append(uniq, k)
		}
	}
	sort.Slice(uniq, func(i, j int) bool { return uniq[i] < uniq[j] })

	out := make([]model.IndicatorSeries, 0, len(uniq))
	for _, k := range uniq {
		start := time.Now()
		series := s.engine.Compute(samples, []model.IndicatorKind{k})
		if len(series) == 0 {
			continue
		}
		s.prom.IndicatorComputeDur.WithLabelValues(k.String()).Observe(time.Since(start).Seconds())
		s.prom.IndicatorSeries.WithLabelValues(k.String()).Add(float64(len(series)))
		out = append(out, series...)
	}
	return out
}

// Refresh bypasses the cache, fetches fresh prices, stores them and
// publishes an update. It returns the number of samples fetched.
func (s *Service) Refresh(ctx context.Context, pair string, tf model.Timeframe) (int, error) {
	if pair == "" {
		return 0, ErrEmptyPair
	}
	samples, err := s.fetch(ctx, pair, tf)
	if err != nil {
		return 0, err
	}
	s.store(ctx, pair, tf, samples)

	if s.cache != nil {
		update := model.PriceUpdate{Pair: pair, Timeframe: tf, TS: s.now().UTC(), Samples: len(samples)}
		if err := s.cache.PublishUpdate(ctx, update); err != nil {
			slog.Warn("[chart] publish update failed",
				append(logger.LogWithTrace(ctx), "pair", pair, "timeframe", tf, "error", err)...)
		}
	}
	return len(samples), nil
}

func (s *Service) fromCache(ctx context.Context, pair string, tf model.Timeframe) []model.PriceSample {
	if s.cache == nil {
		return nil
	}
	cached, err := s.cache.GetPrices(ctx, pair, tf)
	switch {
	case err != nil:
		slog.Warn("[chart] cache read failed",
			append(logger.LogWithTrace(ctx), "pair", pair, "timeframe", tf, "error", err)...)
		s.countCache("error")
		return nil
	case cached == nil:
		s.countCache("miss")
		return nil
	}
	s.countCache("hit")
	return cached
}

func (s *Service) fetch(ctx context.Context, pair string, tf model.Timeframe) ([]model.PriceSample, error) {
	start := time.Now()
	samples, err := s.upstream.HistoricalPrices(ctx, pair, tf)
	if s.prom != nil {
		s.prom.PriceFetchDur.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		s.countFetch("error")
		return nil, err
	}
	s.countFetch("ok")
	return samples, nil
}

// store writes samples through to the cache and the history. Failures are
// logged only; the caller already has the data.
func (s *Service) store(ctx context.Context, pair string, tf model.Timeframe, samples []model.PriceSample) {
	if s.cache != nil {
		if err := s.cache.SetPrices(ctx, pair, tf, samples); err != nil {
			slog.Warn("[chart] cache write failed",
				append(logger.LogWithTrace(ctx), "pair", pair, "timeframe", tf, "error", err)...)
		}
	}
	if s.history != nil && len(samples) > 0 {
		if err := s.history.SavePrices(ctx, pair, samples); err != nil {
			slog.Warn("[chart] history write failed",
				append(logger.LogWithTrace(ctx), "pair", pair, "error", err)...)
		} else if s.prom != nil {
			s.prom.HistoryWrites.Add(float64(len(samples)))
		}
	}
}

func (s *Service) fromHistory(ctx context.Context, pair string, tf model.Timeframe) []model.PriceSample {
	if s.history == nil {
		return nil
	}
	hist, err := s.history.ReadPrices(ctx, pair, tf.From(s.now()))
	if err != nil {
		slog.Warn("[chart] history read failed",
			append(logger.LogWithTrace(ctx), "pair", pair, "error", err)...)
		return nil
	}
	return hist
}

func (s *Service) countCache(result string) {
	if s.prom != nil {
		s.prom.CacheLookups.WithLabelValues(result).Inc()
	}
}

func (s *Service) countFetch(outcome string) {
	if s.prom != nil {
		s.prom.PriceFetches.WithLabelValues(outcome).Inc()
	}
}
