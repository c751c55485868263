// cmd/chartd serves price charts with indicator overlays for trading pairs
// over REST and websocket, and keeps watchlist pairs refreshed in the
// background.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"memetrader/config"
	"memetrader/internal/api"
	"memetrader/internal/chart"
	"memetrader/internal/gateway"
	"memetrader/internal/indicator"
	"memetrader/internal/logger"
	"memetrader/internal/metrics"
	"memetrader/internal/portfolio"
	"memetrader/internal/pricefeed"
	"memetrader/internal/refresher"
	redisstore "memetrader/internal/store/redis"
	sqlitestore "memetrader/internal/store/sqlite"
)

// historyRetention bounds the SQLite history to a bit over the longest
// timeframe.
const historyRetention = 400 * 24 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("[chartd] config", "error", err)
		os.Exit(1)
	}

	level := logger.ParseLevel(cfg.LogLevel)
	logger.Init("chartd", level)
	if level > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	slog.Info("[chartd] starting", "http", cfg.HTTPAddr, "watchlist", len(cfg.Watchlist), "indicators", len(cfg.Indicators))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("[chartd] shutdown signal received")
		cancel()
	}()

	// ---- Metrics + health ----
	prom := metrics.NewMetrics(nil)
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health, nil)
	metricsSrv.Start()

	opts := chart.Options{
		Engine:  indicator.NewEngine(cfg.Indicators),
		Metrics: prom,
	}

	// ---- Redis cache (optional) ----
	cache, err := redisstore.New(redisstore.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		slog.Warn("[chartd] redis unavailable, running without cache or live push", "error", err)
		cache = nil
	} else {
		defer cache.Close()
		cache.Breaker().OnStateChange = func(from, to redisstore.State) {
			slog.Warn("[chartd] redis circuit breaker", "from", from.String(), "to", to.String())
			prom.ObserveBreaker(int(to))
		}
		opts.Cache = cache
	}

	// ---- SQLite history (optional) ----
	var store *sqlitestore.Store
	if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
		slog.Warn("[chartd] cannot create data dir", "error", err)
	}
	store, err = sqlitestore.New(sqlitestore.Config{DBPath: cfg.SQLitePath})
	if err != nil {
		slog.Warn("[chartd] sqlite unavailable, running without history fallback or trading", "error", err)
		store = nil
	} else {
		defer store.Close()
		opts.History = store
		go pruneLoop(ctx, store)
	}

	// ---- Chart service ----
	feed := pricefeed.NewClient(pricefeed.Config{
		BaseURL:    cfg.PriceFeedBaseURL,
		APIKey:     cfg.PriceFeedAPIKey,
		Timeout:    cfg.PriceFeedTimeout,
		MaxRetries: cfg.PriceFeedMaxRetries,
	})
	svc := chart.New(feed, opts)

	// ---- Liveness probes ----
	switch {
	case cache != nil && store != nil:
		health.StartLivenessChecker(ctx, cache.Client(), store.DB(), 15*time.Second)
	case cache != nil:
		health.StartLivenessChecker(ctx, cache.Client(), nil, 15*time.Second)
	case store != nil:
		health.StartLivenessChecker(ctx, nil, store.DB(), 15*time.Second)
	}

	// ---- Websocket hub ----
	hub := gateway.NewHub(svc, prom)
	if cache != nil {
		updates, err := cache.SubscribeUpdates(ctx)
		if err != nil {
			slog.Warn("[chartd] price update subscription failed, live push disabled", "error", err)
		} else {
			go hub.Run(ctx, updates)
		}
	}

	// ---- HTTP ----
	handler := api.NewHandler(svc, health)
	if store != nil {
		handler.WithPortfolio(portfolio.New(svc, store, portfolio.Options{Metrics: prom}))
	} else {
		slog.Warn("[chartd] portfolio routes disabled without sqlite")
	}
	router := api.NewRouter(handler)
	router.GET("/ws", gin.WrapF(hub.ServeWS))

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("[chartd] http listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("[chartd] http server error", "error", err)
			cancel()
		}
	}()

	// ---- Background refresh ----
	sched, err := refresher.New(ctx, svc, refresher.TargetsFromWatchlist(cfg.Watchlist), refresher.Options{
		Spec:        cfg.RefreshCron,
		Concurrency: cfg.RefreshConcurrency,
		Metrics:     prom,
		Health:      health,
	})
	if err != nil {
		slog.Error("[chartd] refresher init failed", "error", err)
		os.Exit(1)
	}
	sched.Start()
	go sched.RunOnce(ctx) // warm the cache without waiting for the first tick

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	sched.Stop()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("[chartd] http shutdown", "error", err)
	}
	metricsSrv.Stop(shutdownCtx)
	slog.Info("[chartd] stopped")
}

func pruneLoop(ctx context.Context, store *sqlitestore.Store) {
	ticker := time.NewTicker(6 * time.Hour)
	defer ticker.Stop()
	for {
		n, err := store.Prune(ctx, time.Now().Add(-historyRetention))
		if err != nil {
			slog.Warn("[chartd] history prune failed", "error", err)
		} else if n > 0 {
			slog.Info("[chartd] pruned history", "rows", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
