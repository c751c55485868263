// Package indicator provides technical indicator calculations over price series.
//
// Every indicator is a pure function of a time-ordered []model.PriceSample
// and a period, returning a model.IndicatorSeries with exactly one point per
// input sample. Points before an indicator has enough history are marked
// undefined (Valid=false). Nothing here mutates its input or holds state, so
// all functions are safe for concurrent use.
package indicator

import (
	"strconv"

	"memetrader/internal/model"
)

// Func computes one indicator series for the given period.
type Func func(samples []model.PriceSample, period int) model.IndicatorSeries

// Label formats the legend text used by chart renderers, e.g. "EMA(12)".
func Label(kind model.IndicatorKind, period int) string {
	return kind.String() + "(" + strconv.Itoa(period) + ")"
}

// newSeries allocates a series whose X values mirror the samples and whose
// points all start undefined.
func newSeries(kind model.IndicatorKind, period int, samples []model.PriceSample) model.IndicatorSeries {
	points := make([]model.Point, len(samples))
	for i, s := range samples {
		points[i].X = s.TS
	}
	return model.IndicatorSeries{
		Label:  Label(kind, period),
		Kind:   kind,
		Period: period,
		Points: points,
	}
}
