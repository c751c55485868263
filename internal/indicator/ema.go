package indicator

import "memetrader/internal/model"

// EMA calculates the Exponential Moving Average.
//
// Unlike MA there is no warm-up prefix: the series is seeded with the first
// raw price (not a period-long SMA), and every point is defined.
//
//	k = 2 / (period + 1)
//	ema[0] = price[0]
//	ema[i] = price[i]*k + ema[i-1]*(1-k)
func EMA(samples []model.PriceSample, period int) model.IndicatorSeries {
	series := newSeries(model.KindEMA, period, samples)
	if period < 1 || len(samples) == 0 {
		return series
	}

	multiplier := 2.0 / float64(period+1)
	prev := samples[0].Price
	series.Points[0].Y = prev
	series.Points[0].Valid = true

	for i := 1; i < len(samples); i++ {
		// Explicit conversions keep the compiler from fusing into FMA,
		// which would change rounding on arm64.
		prev = float64(samples[i].Price*multiplier) + float64(prev*(1-multiplier))
		series.Points[i].Y = prev
		series.Points[i].Valid = true
	}
	return series
}
