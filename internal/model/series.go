package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// IndicatorKind identifies a selectable technical indicator.
type IndicatorKind int

const (
	KindMA IndicatorKind = iota + 1
	KindEMA
	KindRSI
	// KindMACD and KindBB are selectable in the chart controls but have no
	// computation; requesting them yields no series.
	KindMACD
	KindBB
)

func (k IndicatorKind) String() string {
	switch k {
	case KindMA:
		return "MA"
	case KindEMA:
		return "EMA"
	case KindRSI:
		return "RSI"
	case KindMACD:
		return "MACD"
	case KindBB:
		return "BB"
	default:
		return "UNKNOWN"
	}
}

// ErrUnknownKind is returned by ParseIndicatorKind for unrecognised identifiers.
var ErrUnknownKind = fmt.Errorf("unknown indicator kind")

// ParseIndicatorKind maps an identifier such as "ma" or "RSI" to its kind.
func ParseIndicatorKind(s string) (IndicatorKind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MA", "SMA":
		return KindMA, nil
	case "EMA":
		return KindEMA, nil
	case "RSI":
		return KindRSI, nil
	case "MACD":
		return KindMACD, nil
	case "BB":
		return KindBB, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// ParseIndicatorKinds parses a comma-separated list ("MA,EMA,RSI").
// Empty entries are skipped; an empty string yields an empty set.
func ParseIndicatorKinds(s string) ([]IndicatorKind, error) {
	var kinds []IndicatorKind
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		k, err := ParseIndicatorKind(part)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func (k IndicatorKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *IndicatorKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseIndicatorKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Point is one output value of an indicator series. Valid is false during
// the warm-up prefix, where the indicator has no value yet.
type Point struct {
	X     time.Time
	Y     float64
	Valid bool
}

type pointJSON struct {
	X time.Time `json:"x"`
	Y *float64  `json:"y"`
}

// MarshalJSON writes undefined points as {"y": null}. Non-finite values
// (e.g. NaN from a flat RSI window) are also written as null since JSON
// has no representation for them.
func (p Point) MarshalJSON() ([]byte, error) {
	out := pointJSON{X: p.X}
	if p.Valid && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0) {
		y := p.Y
		out.Y = &y
	}
	return json.Marshal(out)
}

func (p *Point) UnmarshalJSON(data []byte) error {
	var in pointJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	p.X = in.X
	p.Valid = in.Y != nil
	p.Y = 0
	if in.Y != nil {
		p.Y = *in.Y
	}
	return nil
}

// IndicatorSeries is a derived series aligned one-to-one with the input
// samples: Points[i].X == samples[i].TS.
type IndicatorSeries struct {
	Label  string        `json:"label"` // legend text, e.g. "MA(20)"
	Kind   IndicatorKind `json:"kind"`
	Period int           `json:"period"`
	Points []Point       `json:"points"`
}

// Last returns the most recent defined point, if any.
func (s *IndicatorSeries) Last() (Point, bool) {
	for i := len(s.Points) - 1; i >= 0; i-- {
		if s.Points[i].Valid {
			return s.Points[i], true
		}
	}
	return Point{}, false
}
