// Package api exposes the chart service over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"memetrader/internal/chart"
	"memetrader/internal/logger"
	"memetrader/internal/metrics"
	"memetrader/internal/model"
	"memetrader/internal/portfolio"
	"memetrader/internal/pricefeed"
)

// RequestIDHeader carries the request's trace ID in both directions.
const RequestIDHeader = "X-Request-ID"

// defaultKinds is used when a request omits the kinds parameter entirely.
var defaultKinds = []model.IndicatorKind{model.KindMA, model.KindEMA, model.KindRSI}

// Handler serves the chart and portfolio endpoints.
type Handler struct {
	svc    *chart.Service
	health *metrics.HealthStatus
	folio  *portfolio.Service
}

// NewHandler creates a Handler. health may be nil.
func NewHandler(svc *chart.Service, health *metrics.HealthStatus) *Handler {
	return &Handler{svc: svc, health: health}
}

// WithPortfolio enables the /api/v1/portfolio routes.
func (h *Handler) WithPortfolio(p *portfolio.Service) *Handler {
	h.folio = p
	return h
}

// NewRouter builds the gin engine with all /api/v1 routes registered.
// Callers may add more routes (e.g. the websocket endpoint) to the result.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), accessLog())

	api := r.Group("/api/v1")
	{
		api.GET("/health", h.Health)
		api.GET("/prices/:pair", h.GetPrices)

		ind := api.Group("/indicators")
		{
			ind.GET("/:pair", h.GetIndicators)
			ind.POST("/compute", h.Compute)
		}

		if h.folio != nil {
			pf := api.Group("/portfolio/:account")
			{
				pf.GET("", h.GetHoldings)
				pf.GET("/trades", h.GetTrades)
				pf.POST("/trades", h.PlaceTrade)
				pf.GET("/history", h.GetPortfolioHistory)
			}
		}
	}
	return r
}

// RequestID reuses an inbound X-Request-ID or mints one, stores it as the
// logger trace ID and echoes it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = logger.NewTraceID()
		}
		c.Request = c.Request.WithContext(logger.WithTraceID(c.Request.Context(), id))
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("[api] request",
			append(logger.LogWithTrace(c.Request.Context()),
				"method", c.Request.Method,
				"path", c.FullPath(),
				"status", c.Writer.Status(),
				"took", time.Since(start))...)
	}
}

// Health reports dependency status; without a health tracker it always
// reports ok.
func (h *Handler) Health(c *gin.Context) {
	if h.health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	report, code := h.health.Snapshot()
	c.JSON(code, report)
}

// GetPrices handles GET /api/v1/prices/:pair?timeframe=24h.
func (h *Handler) GetPrices(c *gin.Context) {
	pair := c.Param("pair")
	tf, err := model.ParseTimeframe(c.DefaultQuery("timeframe", string(model.Timeframe24h)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	samples, err := h.svc.Prices(c.Request.Context(), pair, tf)
	if err != nil {
		h.fail(c, err)
		return
	}
	if samples == nil {
		samples = []model.PriceSample{}
	}
	c.JSON(http.StatusOK, gin.H{"pair": pair, "timeframe": tf, "samples": samples})
}

// GetIndicators handles GET /api/v1/indicators/:pair?timeframe=24h&kinds=MA,EMA.
// An absent kinds parameter selects MA, EMA and RSI; an empty one selects
// nothing.
func (h *Handler) GetIndicators(c *gin.Context) {
	pair := c.Param("pair")
	tf, err := model.ParseTimeframe(c.DefaultQuery("timeframe", string(model.Timeframe24h)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	kinds := defaultKinds
	if raw, ok := c.GetQuery("kinds"); ok {
		if kinds, err = model.ParseIndicatorKinds(raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	ch, err := h.svc.Indicators(c.Request.Context(), pair, tf, kinds)
	if err != nil {
		h.fail(c, err)
		return
	}
	if ch.Samples == nil {
		ch.Samples = []model.PriceSample{}
	}
	c.JSON(http.StatusOK, ch)
}

// ComputeRequest is the body of POST /api/v1/indicators/compute.
type ComputeRequest struct {
	Samples []model.PriceSample   `json:"samples"`
	Kinds   []model.IndicatorKind `json:"kinds"`
}

// Compute runs the indicator engine over caller-supplied samples. Samples
// must already be in ascending time order. An omitted kinds field selects
// MA, EMA and RSI; an empty array selects nothing.
func (h *Handler) Compute(c *gin.Context) {
	var req ComputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Kinds == nil {
		req.Kinds = defaultKinds
	}
	c.JSON(http.StatusOK, gin.H{"series": h.svc.Compute(req.Samples, req.Kinds)})
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, chart.ErrEmptyPair), errors.Is(err, portfolio.ErrInvalidTrade):
		status = http.StatusBadRequest
	case errors.Is(err, portfolio.ErrInsufficientQty):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, portfolio.ErrNoPrice):
		status = http.StatusNotFound
	case errors.Is(err, pricefeed.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status >= 500 {
		slog.Error("[api] request failed",
			append(logger.LogWithTrace(c.Request.Context()), "path", c.Request.URL.Path, "error", err)...)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
