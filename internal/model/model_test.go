package model

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

func TestParseIndicatorKinds(t *testing.T) {
	kinds, err := ParseIndicatorKinds("ma, ema,RSI,,macd")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []IndicatorKind{KindMA, KindEMA, KindRSI, KindMACD}
	if len(kinds) != len(want) {
		t.Fatalf("got %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("kind %d: got %s, want %s", i, kinds[i], want[i])
		}
	}

	if _, err := ParseIndicatorKinds("MA,VWAP"); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
	if kinds, err := ParseIndicatorKinds(""); err != nil || len(kinds) != 0 {
		t.Errorf("expected empty set, got %v, %v", kinds, err)
	}
}

func TestPoint_JSON(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		p    Point
		want string
	}{
		{Point{X: ts, Y: 1.5, Valid: true}, `"y":1.5`},
		{Point{X: ts}, `"y":null`},
		{Point{X: ts, Y: math.NaN(), Valid: true}, `"y":null`},
		{Point{X: ts, Y: math.Inf(1), Valid: true}, `"y":null`},
	}
	for _, tc := range cases {
		b, err := json.Marshal(tc.p)
		if err != nil {
			t.Fatalf("marshal %+v: %v", tc.p, err)
		}
		if !strings.Contains(string(b), tc.want) {
			t.Errorf("marshal %+v: got %s, want %s", tc.p, b, tc.want)
		}
	}

	var p Point
	if err := json.Unmarshal([]byte(`{"x":"2024-03-01T12:00:00Z","y":null}`), &p); err != nil {
		t.Fatal(err)
	}
	if p.Valid {
		t.Error("null y should decode as undefined")
	}
}

func TestPriceSample_UnmarshalTimestamps(t *testing.T) {
	want := time.UnixMilli(1709294400000).UTC()
	for _, in := range []string{
		`{"ts":1709294400000,"price":0.5}`,
		`{"ts":"1709294400000","price":0.5}`,
		`{"ts":"2024-03-01T12:00:00Z","price":0.5}`,
	} {
		var s PriceSample
		if err := json.Unmarshal([]byte(in), &s); err != nil {
			t.Fatalf("%s: %v", in, err)
		}
		if !s.TS.Equal(want) || s.Price != 0.5 {
			t.Errorf("%s: got %+v", in, s)
		}
	}

	var s PriceSample
	if err := json.Unmarshal([]byte(`{"price":1}`), &s); err == nil {
		t.Error("expected error for missing ts")
	}
}

func TestParseTimeframe(t *testing.T) {
	for in, want := range map[string]Timeframe{
		"24h": Timeframe24h, "24H": Timeframe24h,
		"7d": Timeframe7d, "1W": Timeframe7d,
		"30d": Timeframe30d, "1M": Timeframe30d,
		"1y": Timeframe1y, "1Y": Timeframe1y,
	} {
		got, err := ParseTimeframe(in)
		if err != nil || got != want {
			t.Errorf("%q: got %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseTimeframe("5m"); !errors.Is(err, ErrUnknownTimeframe) {
		t.Errorf("expected ErrUnknownTimeframe, got %v", err)
	}
	if Timeframe7d.CacheTTL() != 15*time.Minute {
		t.Errorf("unexpected 7d TTL %v", Timeframe7d.CacheTTL())
	}
}
