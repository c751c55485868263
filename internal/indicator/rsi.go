package indicator

import "memetrader/internal/model"

// DefaultRSIPeriod is the conventional RSI lookback.
const DefaultRSIPeriod = 14

// RSI calculates the Relative Strength Index using Wilder's smoothing.
//
// Deltas are taken between consecutive prices with delta[0] = 0. The average
// gain/loss is seeded at index period-1 with the plain mean of the first
// period gains/losses (index 0 included), then smoothed:
//
//	avg[i] = (avg[i-1]*(period-1) + value[i]) / period
//
// Points 0..period-1 are undefined. The ratio avgGain/avgLoss is not
// guarded: a window with no losses divides by zero and yields 100, and a
// window with neither gains nor losses yields NaN.
func RSI(samples []model.PriceSample, period int) model.IndicatorSeries {
	series := newSeries(model.KindRSI, period, samples)
	n := len(samples)
	if period < 1 || n <= period {
		return series
	}

	gains := make([]float64, n)
	losses := make([]float64, n)
	for i := 1; i < n; i++ {
		delta := samples[i].Price - samples[i-1].Price
		if delta > 0 {
			gains[i] = delta
		} else if delta < 0 {
			losses[i] = -delta
		}
	}

	var avgGain, avgLoss float64
	for i := 0; i < period; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	p := float64(period)
	for i := period; i < n; i++ {
		avgGain = (float64(avgGain*(p-1)) + gains[i]) / p
		avgLoss = (float64(avgLoss*(p-1)) + losses[i]) / p

		rs := avgGain / avgLoss
		series.Points[i].Y = 100 - 100/(1+rs)
		series.Points[i].Valid = true
	}
	return series
}
