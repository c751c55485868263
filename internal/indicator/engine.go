package indicator

import (
	"fmt"
	"sort"

	"memetrader/internal/model"
)

// IndicatorConfig specifies a single indicator series to compute.
type IndicatorConfig struct {
	Kind   model.IndicatorKind `json:"kind"`
	Period int                 `json:"period"`
}

// DefaultConfigs is the chart's fixed indicator set, already in canonical
// order: two MAs, two EMAs, one RSI.
var DefaultConfigs = []IndicatorConfig{
	{Kind: model.KindMA, Period: 20},
	{Kind: model.KindMA, Period: 50},
	{Kind: model.KindEMA, Period: 12},
	{Kind: model.KindEMA, Period: 26},
	{Kind: model.KindRSI, Period: DefaultRSIPeriod},
}

// funcs maps each computable kind to its implementation. Kinds absent from
// this table (MACD, BB) are selectable but produce nothing.
var funcs = map[model.IndicatorKind]Func{
	model.KindMA:  MA,
	model.KindEMA: EMA,
	model.KindRSI: RSI,
}

// kindRank is the canonical output order.
func kindRank(k model.IndicatorKind) int {
	switch k {
	case model.KindMA:
		return 0
	case model.KindEMA:
		return 1
	case model.KindRSI:
		return 2
	default:
		return 3
	}
}

// Engine computes a configured set of indicator series. It holds only its
// immutable config and is safe for concurrent use.
type Engine struct {
	configs []IndicatorConfig
}

// NewEngine creates an engine for the given configs. Configs are reordered
// into canonical kind order (MA, EMA, RSI); configs of the same kind keep
// their relative order.
func NewEngine(configs []IndicatorConfig) *Engine {
	cp := make([]IndicatorConfig, len(configs))
	copy(cp, configs)
	sort.SliceStable(cp, func(i, j int) bool {
		return kindRank(cp[i].Kind) < kindRank(cp[j].Kind)
	})
	return &Engine{configs: cp}
}

// Configs returns a copy of the engine's configs in output order.
func (e *Engine) Configs() []IndicatorConfig {
	cp := make([]IndicatorConfig, len(e.configs))
	copy(cp, e.configs)
	return cp
}

// Compute returns one series per config whose kind is requested. Output
// order is fixed by the engine, not by the order of kinds. Duplicate kinds
// are ignored, as are kinds with no computation.
func (e *Engine) Compute(samples []model.PriceSample, kinds []model.IndicatorKind) []model.IndicatorSeries {
	if len(kinds) == 0 {
		return []model.IndicatorSeries{}
	}
	requested := make(map[model.IndicatorKind]bool, len(kinds))
	for _, k := range kinds {
		requested[k] = true
	}

	out := make([]model.IndicatorSeries, 0, len(e.configs))
	for _, cfg := range e.configs {
		if !requested[cfg.Kind] {
			continue
		}
		fn, ok := funcs[cfg.Kind]
		if !ok {
			continue
		}
		out = append(out, fn(samples, cfg.Period))
	}
	return out
}

var defaultEngine = NewEngine(DefaultConfigs)

// Compute runs the default indicator set: MA(20), MA(50) for MA; EMA(12),
// EMA(26) for EMA; RSI(14) for RSI.
func Compute(samples []model.PriceSample, kinds []model.IndicatorKind) []model.IndicatorSeries {
	return defaultEngine.Compute(samples, kinds)
}

// ValidateConfigs checks a set of IndicatorConfigs for errors.
func ValidateConfigs(configs []IndicatorConfig) error {
	seen := make(map[IndicatorConfig]bool, len(configs))
	for _, cfg := range configs {
		if _, ok := funcs[cfg.Kind]; !ok {
			return fmt.Errorf("indicator %s has no computation", cfg.Kind)
		}
		if cfg.Period <= 0 {
			return fmt.Errorf("invalid period=%d for %s: must be positive", cfg.Period, cfg.Kind)
		}
		if seen[cfg] {
			return fmt.Errorf("duplicate indicator %s", Label(cfg.Kind, cfg.Period))
		}
		seen[cfg] = true
	}
	return nil
}
