package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"memetrader/internal/model"
	"memetrader/internal/portfolio"
)

// GetHoldings handles GET /api/v1/portfolio/:account.
func (h *Handler) GetHoldings(c *gin.Context) {
	sum, err := h.folio.Holdings(c.Request.Context(), c.Param("account"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// GetTrades handles GET /api/v1/portfolio/:account/trades.
func (h *Handler) GetTrades(c *gin.Context) {
	trades, err := h.folio.Trades(c.Request.Context(), c.Param("account"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

// PlaceTrade handles POST /api/v1/portfolio/:account/trades with a body of
// {"pair": ..., "side": "BUY"|"SELL", "qty": ...}.
func (h *Handler) PlaceTrade(c *gin.Context) {
	var o portfolio.Order
	if err := c.ShouldBindJSON(&o); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	o.Account = c.Param("account")

	t, err := h.folio.Place(c.Request.Context(), o)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

// GetPortfolioHistory handles GET /api/v1/portfolio/:account/history?timeframe=7d.
func (h *Handler) GetPortfolioHistory(c *gin.Context) {
	tf, err := model.ParseTimeframe(c.DefaultQuery("timeframe", string(model.Timeframe7d)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	points, err := h.folio.History(c.Request.Context(), c.Param("account"), tf)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": c.Param("account"), "timeframe": tf, "points": points})
}
