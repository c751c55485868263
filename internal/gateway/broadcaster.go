package gateway

import (
	"context"
	"encoding/json"
	"log/slog"

	"memetrader/internal/logger"
	"memetrader/internal/model"
)

// Notify recomputes indicators for every subscription matching the update
// and pushes the result. Subscriptions selecting the same kinds share one
// computation.
func (h *Hub) Notify(ctx context.Context, u model.PriceUpdate) {
	key := subKey(u.Pair, u.Timeframe)

	groups := make(map[string][]*Client)
	kindsByGroup := make(map[string][]model.IndicatorKind)

	h.mu.RLock()
	for c := range h.clients {
		sub, ok := c.subscription(key)
		if !ok {
			continue
		}
		gk := sub.kindsKey()
		groups[gk] = append(groups[gk], c)
		kindsByGroup[gk] = sub.Kinds
	}
	h.mu.RUnlock()

	if len(groups) == 0 {
		return
	}

	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(u.Pair, u.TS))
	for gk, clients := range groups {
		data, seq, err := h.render(ctx, u.Pair, u.Timeframe, kindsByGroup[gk], "", false)
		if err != nil {
			slog.Warn("[gateway] recompute failed",
				append(logger.LogWithTrace(ctx), "pair", u.Pair, "timeframe", u.Timeframe, "error", err)...)
			continue
		}
		for _, c := range clients {
			if h.deliverSeq(c, key, seq, data) && h.prom != nil {
				h.prom.WSPushes.Inc()
			}
		}
	}
}

// render computes a chart and encodes it as an IndicatorsMessage. The
// message Seq is assigned before computing, so a later-started computation
// always carries a higher Seq.
func (h *Hub) render(ctx context.Context, pair string, tf model.Timeframe, kinds []model.IndicatorKind, reqID string, initial bool) ([]byte, int64, error) {
	seq := h.nextSeq()
	if h.ComputeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.ComputeTimeout)
		defer cancel()
	}

	ch, err := h.src.Indicators(ctx, pair, tf, kinds)
	if err != nil {
		return nil, 0, err
	}
	msg := IndicatorsMessage{
		Type:      TypeIndicators,
		ReqID:     reqID,
		Seq:       seq,
		Pair:      pair,
		Timeframe: tf,
		Initial:   initial,
		Stale:     ch.Stale,
		Samples:   ch.Samples,
		Series:    ch.Series,
	}
	if msg.Samples == nil {
		msg.Samples = []model.PriceSample{}
	}
	data, err := json.Marshal(msg)
	return data, seq, err
}
