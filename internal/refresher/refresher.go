// Package refresher keeps watchlist pairs warm: on a cron schedule it
// re-fetches every pair/timeframe, which writes through to the cache and
// history and publishes an update for websocket subscribers.
package refresher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"memetrader/config"
	"memetrader/internal/logger"
	"memetrader/internal/metrics"
	"memetrader/internal/model"
)

// Source refreshes one pair/timeframe and reports how many samples it got.
type Source interface {
	Refresh(ctx context.Context, pair string, tf model.Timeframe) (int, error)
}

// Target is one pair/timeframe to refresh.
type Target struct {
	Pair      string
	Timeframe model.Timeframe
}

// TargetsFromWatchlist flattens watchlist entries into refresh targets.
func TargetsFromWatchlist(entries []config.WatchEntry) []Target {
	var out []Target
	for _, e := range entries {
		for _, tf := range e.Timeframes {
			out = append(out, Target{Pair: e.Pair, Timeframe: tf})
		}
	}
	return out
}

// Options configures a Scheduler.
type Options struct {
	Spec        string        // cron spec, default "@every 1m"
	Concurrency int           // max refreshes in flight, default 4
	Timeout     time.Duration // per refresh, default 30s
	Metrics     *metrics.Metrics
	Health      *metrics.HealthStatus
}

// Scheduler runs watchlist refreshes on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	src     Source
	targets []Target
	opts    Options
	ctx     context.Context

	mu      sync.Mutex
	lastRun time.Time
}

// New creates a Scheduler. Refreshes triggered by cron run under ctx.
func New(ctx context.Context, src Source, targets []Target, opts Options) (*Scheduler, error) {
	if opts.Spec == "" {
		opts.Spec = "@every 1m"
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	s := &Scheduler{
		cron: cron.New(
			cron.WithParser(config.CronParser),
			cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
		src:     src,
		targets: targets,
		opts:    opts,
		ctx:     ctx,
	}
	if _, err := s.cron.AddFunc(opts.Spec, s.tick); err != nil {
		return nil, fmt.Errorf("register refresh %q: %w", opts.Spec, err)
	}
	if opts.Health != nil {
		opts.Health.SetWatchedPairs(len(targets))
	}
	return s, nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("[refresher] scheduler started", "spec", s.opts.Spec, "targets", len(s.targets))
}

// Stop stops the scheduler and waits for a running refresh to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("[refresher] scheduler stopped")
}

// LastRun returns when the last refresh run completed.
func (s *Scheduler) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

func (s *Scheduler) tick() {
	if err := s.RunOnce(s.ctx); err != nil {
		slog.Warn("[refresher] refresh run had failures", "error", err)
	}
}

// RunOnce refreshes every target with bounded concurrency. A failing target
// does not stop the others; all failures are joined into the returned error.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(s.opts.Concurrency)

	for _, t := range s.targets {
		t := t
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			tctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
			defer cancel()
			tctx = logger.WithTraceID(tctx, logger.GenerateTraceID(t.Pair, time.Now()))

			n, err := s.src.Refresh(tctx, t.Pair, t.Timeframe)
			if err != nil {
				slog.Warn("[refresher] refresh failed",
					append(logger.LogWithTrace(tctx), "pair", t.Pair, "timeframe", t.Timeframe, "error", err)...)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s/%s: %w", t.Pair, t.Timeframe, err))
				mu.Unlock()
				return nil
			}
			slog.Debug("[refresher] refreshed",
				append(logger.LogWithTrace(tctx), "pair", t.Pair, "timeframe", t.Timeframe, "samples", n)...)
			return nil
		})
	}
	g.Wait()

	now := time.Now()
	s.mu.Lock()
	s.lastRun = now
	s.mu.Unlock()

	outcome := "ok"
	if len(errs) > 0 {
		outcome = "error"
	}
	if s.opts.Metrics != nil {
		s.opts.Metrics.RefreshRuns.WithLabelValues(outcome).Inc()
		s.opts.Metrics.RefreshLastRun.Set(float64(now.Unix()))
	}
	if s.opts.Health != nil {
		s.opts.Health.SetLastRefresh(now)
	}
	slog.Info("[refresher] run complete",
		"targets", len(s.targets), "failed", len(errs), "took", time.Since(start).Round(time.Millisecond))

	return errors.Join(errs...)
}
