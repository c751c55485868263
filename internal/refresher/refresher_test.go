package refresher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memetrader/config"
	"memetrader/internal/metrics"
	"memetrader/internal/model"
)

type fakeSource struct {
	mu       sync.Mutex
	seen     []Target
	fail     map[string]bool
	delay    time.Duration
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (f *fakeSource) Refresh(ctx context.Context, pair string, tf model.Timeframe) (int, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.seen = append(f.seen, Target{Pair: pair, Timeframe: tf})
	f.mu.Unlock()

	if f.fail[pair] {
		return 0, errors.New("upstream 503")
	}
	return 10, nil
}

func (f *fakeSource) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

func TestTargetsFromWatchlist(t *testing.T) {
	got := TargetsFromWatchlist([]config.WatchEntry{
		{Pair: "A", Timeframes: []model.Timeframe{model.Timeframe24h, model.Timeframe7d}},
		{Pair: "B", Timeframes: []model.Timeframe{model.Timeframe1y}},
	})
	assert.Equal(t, []Target{
		{"A", model.Timeframe24h},
		{"A", model.Timeframe7d},
		{"B", model.Timeframe1y},
	}, got)
}

func TestRunOnce_FailureDoesNotStopOthers(t *testing.T) {
	src := &fakeSource{fail: map[string]bool{"BAD": true}}
	prom := metrics.NewMetrics(prometheus.NewRegistry())
	health := metrics.NewHealthStatus()
	targets := []Target{{"A", model.Timeframe24h}, {"BAD", model.Timeframe24h}, {"C", model.Timeframe7d}}

	s, err := New(context.Background(), src, targets, Options{Metrics: prom, Health: health})
	require.NoError(t, err)

	err = s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BAD/24h")
	assert.Equal(t, 3, src.count())
	assert.False(t, s.LastRun().IsZero())
	assert.Equal(t, 1.0, testutil.ToFloat64(prom.RefreshRuns.WithLabelValues("error")))

	report, _ := health.Snapshot()
	assert.Equal(t, 3, report.WatchedPairs)
	assert.NotEmpty(t, report.LastRefresh)
}

func TestRunOnce_BoundedConcurrency(t *testing.T) {
	src := &fakeSource{delay: 20 * time.Millisecond}
	var targets []Target
	for i := 0; i < 12; i++ {
		targets = append(targets, Target{Pair: string(rune('A' + i)), Timeframe: model.Timeframe24h})
	}

	s, err := New(context.Background(), src, targets, Options{Concurrency: 3})
	require.NoError(t, err)
	require.NoError(t, s.RunOnce(context.Background()))

	assert.Equal(t, 12, src.count())
	assert.LessOrEqual(t, src.maxSeen.Load(), int32(3))
}

func TestRunOnce_CancelledContextSkipsTargets(t *testing.T) {
	src := &fakeSource{}
	s, err := New(context.Background(), src, []Target{{"A", model.Timeframe24h}}, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, s.RunOnce(ctx))
	assert.Equal(t, 0, src.count())
}

func TestNew_InvalidSpec(t *testing.T) {
	_, err := New(context.Background(), &fakeSource{}, nil, Options{Spec: "every minute"})
	assert.Error(t, err)
}

func TestStart_RunsOnSchedule(t *testing.T) {
	src := &fakeSource{}
	s, err := New(context.Background(), src, []Target{{"A", model.Timeframe24h}}, Options{Spec: "@every 1s"})
	require.NoError(t, err)

	s.Start()
	defer s.Stop()
	require.Eventually(t, func() bool { return src.count() >= 1 }, 3*time.Second, 50*time.Millisecond)
}
