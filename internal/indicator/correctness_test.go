package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/markcheno/go-talib"

	"memetrader/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

var t0 = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func samples(prices ...float64) []model.PriceSample {
	out := make([]model.PriceSample, len(prices))
	for i, p := range prices {
		out[i] = model.PriceSample{TS: t0.Add(time.Duration(i) * time.Minute), Price: p}
	}
	return out
}

func rising(n int, start float64) []model.PriceSample {
	prices := make([]float64, n)
	for i := range prices {
		prices[i] = start + float64(i)
	}
	return samples(prices...)
}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.9f, want %.9f (tol=%g, diff=%g)", label, got, want, tol, math.Abs(got-want))
	}
}

func assertUndefined(t *testing.T, s model.IndicatorSeries, upTo int) {
	t.Helper()
	for i := 0; i < upTo && i < len(s.Points); i++ {
		if s.Points[i].Valid {
			t.Errorf("%s point %d: expected undefined, got %.6f", s.Label, i, s.Points[i].Y)
		}
	}
}

// ────────────────────────────────────────────────────────────
// MA Correctness
// ────────────────────────────────────────────────────────────

func TestMA_Correctness_Period3(t *testing.T) {
	// Prices: 10, 20, 15, 25, 30
	// MA(3) at 2: (10+20+15)/3 = 15
	// MA(3) at 3: (20+15+25)/3 = 20
	// MA(3) at 4: (15+25+30)/3 = 23.333...
	s := MA(samples(10, 20, 15, 25, 30), 3)

	if len(s.Points) != 5 {
		t.Fatalf("expected 5 points, got %d", len(s.Points))
	}
	assertUndefined(t, s, 2)

	expected := []float64{0, 0, 15, 20, 70.0 / 3}
	for i := 2; i < 5; i++ {
		if !s.Points[i].Valid {
			t.Fatalf("point %d: expected defined", i)
		}
		assertClose(t, "MA(3)", s.Points[i].Y, expected[i], 1e-9)
	}
	if s.Label != "MA(3)" {
		t.Errorf("expected label MA(3), got %s", s.Label)
	}
}

func TestMA_WarmUpBoundary(t *testing.T) {
	in := rising(25, 100)
	s := MA(in, 20)

	assertUndefined(t, s, 19)
	// mean(100..119) = 109.5
	if !s.Points[19].Valid {
		t.Fatal("point 19: expected first defined value")
	}
	assertClose(t, "MA(20) seed", s.Points[19].Y, 109.5, 1e-9)
}

func TestMA_ShorterThanPeriod(t *testing.T) {
	s := MA(samples(1, 2, 3), 20)
	if len(s.Points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(s.Points))
	}
	assertUndefined(t, s, 3)
}

func TestMA_MatchesNaiveMeanExactly(t *testing.T) {
	prices := []float64{0.1, 0.2, 0.3, 0.7, 1e-8, 123456.789, 0.3, 0.1, 2.5, 3.3}
	s := MA(samples(prices...), 4)
	for i := 3; i < len(prices); i++ {
		sum := 0.0
		for _, p := range prices[i-3 : i+1] {
			sum += p
		}
		if want := sum / 4; s.Points[i].Y != want {
			t.Errorf("point %d: got %v, want exactly %v", i, s.Points[i].Y, want)
		}
	}
}

func TestMA_MatchesTALib(t *testing.T) {
	in := samples(1.02, 1.05, 0.98, 1.10, 1.21, 1.19, 1.33, 1.30, 1.25, 1.41,
		1.38, 1.52, 1.49, 1.60, 1.55, 1.47, 1.62, 1.70, 1.66, 1.81, 1.79, 1.90)
	for _, period := range []int{3, 5, 20} {
		s := MA(in, period)
		ref := talib.Sma(model.Prices(in), period)
		for i := period - 1; i < len(in); i++ {
			assertClose(t, Label(model.KindMA, period), s.Points[i].Y, ref[i], 1e-9)
		}
	}
}

func TestMA_NonPositivePeriod(t *testing.T) {
	s := MA(samples(1, 2, 3), 0)
	if len(s.Points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(s.Points))
	}
	assertUndefined(t, s, 3)
}

// ────────────────────────────────────────────────────────────
// EMA Correctness
// ────────────────────────────────────────────────────────────

func TestEMA_SeededWithFirstPrice(t *testing.T) {
	// EMA(12): k = 2/13
	// ema[0] = 100
	// ema[1] = 105*k + 100*(1-k) ≈ 100.769
	s := EMA(samples(100, 105), 12)

	k := 2.0 / 13.0
	if !s.Points[0].Valid || s.Points[0].Y != 100 {
		t.Fatalf("ema[0]: got %+v, want exactly 100", s.Points[0])
	}
	assertClose(t, "ema[1]", s.Points[1].Y, 105*k+100*(1-k), 1e-12)
	assertClose(t, "ema[1] approx", s.Points[1].Y, 100.77, 0.01)
}

func TestEMA_Correctness_Period3(t *testing.T) {
	// EMA(3): k = 0.5
	// Prices: 100, 102, 104, 103, 105
	// 100 → 101 → 102.5 → 102.75 → 103.875
	s := EMA(samples(100, 102, 104, 103, 105), 3)
	expected := []float64{100, 101, 102.5, 102.75, 103.875}
	for i, want := range expected {
		if !s.Points[i].Valid {
			t.Fatalf("point %d: EMA has no warm-up, expected defined", i)
		}
		assertClose(t, "EMA(3)", s.Points[i].Y, want, 1e-12)
	}
}

func TestEMA_ConstantSeries(t *testing.T) {
	s := EMA(samples(42, 42, 42, 42, 42, 42), 26)
	for i, p := range s.Points {
		assertClose(t, "EMA(26) flat", p.Y, 42, 1e-12)
		if !p.Valid {
			t.Errorf("point %d: expected defined", i)
		}
	}
}

func TestEMA_Empty(t *testing.T) {
	s := EMA(nil, 12)
	if len(s.Points) != 0 {
		t.Errorf("expected 0 points, got %d", len(s.Points))
	}
}

// ────────────────────────────────────────────────────────────
// RSI Correctness
// ────────────────────────────────────────────────────────────

func TestRSI_AllGains(t *testing.T) {
	// 20 prices rising by 1: zero losses → avgLoss = 0 → rs = +Inf → RSI = 100
	s := RSI(rising(20, 100), 14)

	assertUndefined(t, s, 14)
	for i := 14; i < 20; i++ {
		if !s.Points[i].Valid {
			t.Fatalf("point %d: expected defined", i)
		}
		if s.Points[i].Y != 100 {
			t.Errorf("point %d: expected RSI=100, got %v", i, s.Points[i].Y)
		}
	}
}

func TestRSI_AllLosses(t *testing.T) {
	prices := make([]float64, 20)
	for i := range prices {
		prices[i] = 200 - float64(i)
	}
	s := RSI(samples(prices...), 14)
	for i := 14; i < 20; i++ {
		if s.Points[i].Y != 0 {
			t.Errorf("point %d: expected RSI=0, got %v", i, s.Points[i].Y)
		}
	}
}

func TestRSI_FlatSeriesIsNaN(t *testing.T) {
	// No gains and no losses: 0/0 propagates as NaN.
	s := RSI(samples(5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5), 14)
	for i := 14; i < 16; i++ {
		if !s.Points[i].Valid || !math.IsNaN(s.Points[i].Y) {
			t.Errorf("point %d: expected defined NaN, got %+v", i, s.Points[i])
		}
	}
}

func TestRSI_Period3_HandCalculated(t *testing.T) {
	// Prices: 10, 11, 10, 12, 11
	// deltas: 0, +1, -1, +2, -1
	// seed (i=2): avgGain = (0+1+0)/3 = 1/3, avgLoss = (0+0+1)/3 = 1/3
	// i=3: avgGain = (1/3*2 + 2)/3 = 8/9,  avgLoss = (1/3*2 + 0)/3 = 2/9
	//      rs = 4 → RSI = 80
	// i=4: avgGain = (8/9*2 + 0)/3 = 16/27, avgLoss = (2/9*2 + 1)/3 = 13/27
	//      rs = 16/13 → RSI = 100 - 100/(29/13) = 55.172413...
	s := RSI(samples(10, 11, 10, 12, 11), 3)

	assertUndefined(t, s, 3)
	assertClose(t, "RSI(3) i=3", s.Points[3].Y, 80, 1e-9)
	assertClose(t, "RSI(3) i=4", s.Points[4].Y, 100-100/(1+16.0/13.0), 1e-9)
}

func TestRSI_Bounds(t *testing.T) {
	in := samples(1.00, 1.04, 0.97, 1.12, 1.08, 1.15, 1.02, 0.95, 0.99, 1.20,
		1.18, 1.25, 1.11, 1.30, 1.27, 1.22, 1.35, 1.33, 1.29, 1.40, 1.12, 1.05)
	s := RSI(in, 14)
	for i := 14; i < len(in); i++ {
		y := s.Points[i].Y
		if y < 0 || y > 100 {
			t.Errorf("point %d: RSI %v out of [0,100]", i, y)
		}
	}
	if s.Label != "RSI(14)" {
		t.Errorf("expected label RSI(14), got %s", s.Label)
	}
}

func TestRSI_ExactlyPeriodSamples(t *testing.T) {
	s := RSI(rising(14, 1), 14)
	if len(s.Points) != 14 {
		t.Fatalf("expected 14 points, got %d", len(s.Points))
	}
	assertUndefined(t, s, 14)
}

func TestIndicators_DoNotMutateInput(t *testing.T) {
	in := samples(3, 1, 4, 1, 5, 9, 2, 6, 5, 3, 5, 8, 9, 7, 9, 3, 2, 3, 8, 4)
	snapshot := make([]model.PriceSample, len(in))
	copy(snapshot, in)

	MA(in, 3)
	EMA(in, 3)
	RSI(in, 14)

	for i := range in {
		if in[i] != snapshot[i] {
			t.Fatalf("sample %d mutated: %+v → %+v", i, snapshot[i], in[i])
		}
	}
}
