package gateway

import (
	"fmt"
	"sort"
	"strings"

	"memetrader/internal/model"
)

// Subscription is one client's interest in a pair's indicators on one
// timeframe.
type Subscription struct {
	Pair      string
	Timeframe model.Timeframe
	Kinds     []model.IndicatorKind // sorted, deduplicated
}

// SubKey identifies the subscription within a client: "pair:timeframe".
// Subscribing again with the same key replaces the kinds.
func (s Subscription) SubKey() string {
	return subKey(s.Pair, s.Timeframe)
}

func subKey(pair string, tf model.Timeframe) string {
	return pair + ":" + string(tf)
}

// kindsKey groups subscriptions that need identical computations.
func (s Subscription) kindsKey() string {
	parts := make([]string, len(s.Kinds))
	for i, k := range s.Kinds {
		parts[i] = k.String()
	}
	return strings.Join(parts, ",")
}

// ParseSubscription validates a subscribe message. An absent timeframe
// defaults to 24h and absent kinds to MA, EMA and RSI.
func ParseSubscription(msg ClientMessage) (Subscription, error) {
	if msg.Pair == "" {
		return Subscription{}, fmt.Errorf("pair is required")
	}
	tf := model.Timeframe24h
	if msg.Timeframe != "" {
		parsed, err := model.ParseTimeframe(msg.Timeframe)
		if err != nil {
			return Subscription{}, err
		}
		tf = parsed
	}

	kinds := []model.IndicatorKind{model.KindMA, model.KindEMA, model.KindRSI}
	if msg.Kinds != nil {
		kinds = make([]model.IndicatorKind, 0, len(msg.Kinds))
		seen := make(map[model.IndicatorKind]bool, len(msg.Kinds))
		for _, raw := range msg.Kinds {
			k, err := model.ParseIndicatorKind(raw)
			if err != nil {
				return Subscription{}, err
			}
			if !seen[k] {
				seen[k] = true
				kinds = append(kinds, k)
			}
		}
		sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	}

	return Subscription{Pair: msg.Pair, Timeframe: tf, Kinds: kinds}, nil
}
