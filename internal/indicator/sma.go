package indicator

import "memetrader/internal/model"

// MA calculates the Simple Moving Average over a trailing window of period
// samples. Points 0..period-2 are undefined.
//
// Each window is summed from scratch, oldest price first, so results are
// bit-identical to a naive mean. A running sum would drift in the last ulp.
func MA(samples []model.PriceSample, period int) model.IndicatorSeries {
	series := newSeries(model.KindMA, period, samples)
	if period < 1 {
		return series
	}

	for i := period - 1; i < len(samples); i++ {
		sum := 0.0
		for j := i - period + 1; j <= i; j++ {
			sum += samples[j].Price
		}
		series.Points[i].Y = sum / float64(period)
		series.Points[i].Valid = true
	}
	return series
}
