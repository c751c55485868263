package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the chart service.
type Metrics struct {
	// Indicator engine
	IndicatorComputeDur *prometheus.HistogramVec // labels: kind
	IndicatorSeries     *prometheus.CounterVec   // labels: kind

	// Price sources
	PriceFetches   *prometheus.CounterVec // labels: outcome=ok|not_found|error|fallback
	PriceFetchDur  prometheus.Histogram
	CacheLookups   *prometheus.CounterVec // labels: result=hit|miss|error
	HistoryWrites  prometheus.Counter
	RefreshRuns    *prometheus.CounterVec // labels: outcome=ok|error
	RefreshLastRun prometheus.Gauge

	// Simulated trading
	Trades *prometheus.CounterVec // labels: side=BUY|SELL

	// Websocket gateway
	WSClients       prometheus.Gauge
	WSSubscriptions prometheus.Gauge
	WSPushes        prometheus.Counter
	WSDropped       prometheus.Counter

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
}

// NewMetrics registers all metrics on reg. A nil reg uses the default
// Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		IndicatorComputeDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chartd_indicator_compute_duration_seconds",
			Help:    "Indicator compute latency per series",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}, []string{"kind"}),
		IndicatorSeries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartd_indicator_series_total",
			Help: "Indicator series computed (by kind)",
		}, []string{"kind"}),

		PriceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartd_price_fetches_total",
			Help: "Upstream price fetches by outcome",
		}, []string{"outcome"}),
		PriceFetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chartd_price_fetch_duration_seconds",
			Help:    "Upstream price fetch latency including retries",
			Buckets: prometheus.DefBuckets,
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartd_cache_lookups_total",
			Help: "Price cache lookups by result",
		}, []string{"result"}),
		HistoryWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_history_writes_total",
			Help: "Price samples written to SQLite history",
		}),
		RefreshRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartd_refresh_runs_total",
			Help: "Watchlist refresh runs by outcome",
		}, []string{"outcome"}),
		RefreshLastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chartd_refresh_last_run_timestamp_seconds",
			Help: "Unix time of the last completed refresh run",
		}),

		Trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartd_trades_total",
			Help: "Simulated trades placed by side",
		}, []string{"side"}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chartd_ws_clients",
			Help: "Connected websocket clients",
		}),
		WSSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chartd_ws_subscriptions",
			Help: "Active pair/timeframe subscriptions across all clients",
		}),
		WSPushes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_ws_pushes_total",
			Help: "Indicator messages pushed to websocket clients",
		}),
		WSDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_ws_dropped_total",
			Help: "Messages dropped because a client send buffer was full",
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chartd_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
	}

	reg.MustRegister(
		m.IndicatorComputeDur,
		m.IndicatorSeries,
		m.PriceFetches,
		m.PriceFetchDur,
		m.CacheLookups,
		m.HistoryWrites,
		m.RefreshRuns,
		m.RefreshLastRun,
		m.Trades,
		m.WSClients,
		m.WSSubscriptions,
		m.WSPushes,
		m.WSDropped,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
	)

	return m
}

// ObserveBreaker records a circuit breaker transition. States are passed as
// their numeric gauge value.
func (m *Metrics) ObserveBreaker(to int) {
	m.RedisCircuitBreakerState.Set(float64(to))
	if to == 1 {
		m.RedisCircuitBreakerTrips.Inc()
	}
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	LastRefresh    time.Time `json:"last_refresh"`
	WatchedPairs   int       `json:"watched_pairs"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastRefresh(t time.Time) {
	h.mu.Lock()
	h.LastRefresh = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetWatchedPairs(n int) {
	h.mu.Lock()
	h.WatchedPairs = n
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Either dependency
// may be nil when the service runs without it.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	probe := func() {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if rdb != nil {
			h.CheckRedis(probeCtx, rdb)
		}
		if sqlDB != nil {
			h.CheckSQLite(probeCtx, sqlDB)
		}
	}
	probe()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probe()
			}
		}
	}()
}

// Report is the JSON body served by /healthz.
type Report struct {
	Status          string  `json:"status"`
	Uptime          string  `json:"uptime"`
	RedisConnected  bool    `json:"redis_connected"`
	RedisLatencyMs  float64 `json:"redis_latency_ms"`
	SQLiteOK        bool    `json:"sqlite_ok"`
	SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
	LastRefresh     string  `json:"last_refresh,omitempty"`
	WatchedPairs    int     `json:"watched_pairs"`
	LastCheckAt     string  `json:"last_check_at,omitempty"`
}

// Snapshot returns the current report and the HTTP status it maps to.
// The service stays up without Redis (cache misses) or without SQLite (no
// fallback), so losing one is degraded and losing both is unhealthy.
func (h *HealthStatus) Snapshot() (Report, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.RedisConnected || !h.SQLiteOK {
		overallStatus = "degraded"
	}
	if !h.RedisConnected && !h.SQLiteOK {
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	}

	r := Report{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		WatchedPairs:    h.WatchedPairs,
	}
	if !h.LastRefresh.IsZero() {
		r.LastRefresh = h.LastRefresh.Format(time.RFC3339)
	}
	if !h.LastCheckAt.IsZero() {
		r.LastCheckAt = h.LastCheckAt.Format(time.RFC3339)
	}
	return r, httpCode
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report, code := h.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	if code != http.StatusOK {
		w.WriteHeader(code)
	}
	json.NewEncoder(w).Encode(report)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server backed by gatherer. A nil
// gatherer uses the default Prometheus registry.
func NewServer(addr string, health *HealthStatus, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("[metrics] server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("[metrics] server error", "error", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
