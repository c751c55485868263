// Package gateway pushes indicator series to websocket clients. Clients
// subscribe to a pair and timeframe; every price refresh for that pair is
// recomputed once per distinct indicator selection and fanned out.
package gateway

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"memetrader/internal/chart"
	"memetrader/internal/metrics"
	"memetrader/internal/model"
)

// ChartSource produces the indicator chart for a pair.
type ChartSource interface {
	Indicators(ctx context.Context, pair string, tf model.Timeframe, kinds []model.IndicatorKind) (*chart.Chart, error)
}

// Hub manages websocket clients and fans out recomputed indicators.
type Hub struct {
	src  ChartSource
	prom *metrics.Metrics

	// ComputeTimeout bounds each snapshot or push computation.
	ComputeTimeout time.Duration

	mu      sync.RWMutex
	clients map[*Client]bool
	seq     atomic.Int64
}

// NewHub creates a Hub. prom may be nil.
func NewHub(src ChartSource, prom *metrics.Metrics) *Hub {
	return &Hub{
		src:            src,
		prom:           prom,
		ComputeTimeout: 15 * time.Second,
		clients:        make(map[*Client]bool),
	}
}

// Run consumes price update notifications until ctx is cancelled or the
// channel closes.
func (h *Hub) Run(ctx context.Context, updates <-chan model.PriceUpdate) {
	slog.Info("[gateway] hub running")
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				slog.Warn("[gateway] price update channel closed")
				return
			}
			h.Notify(ctx, u)
		}
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	count := len(h.clients)
	h.mu.Unlock()

	if h.prom != nil {
		h.prom.WSClients.Inc()
	}
	slog.Info("[gateway] ws client connected", "clients", count)
}

// RemoveClient removes a client from the hub and closes its send channel.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.mu.Unlock()

	if h.prom != nil {
		h.prom.WSClients.Dec()
		h.prom.WSSubscriptions.Sub(float64(c.subCount()))
	}
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// deliver queues data on c unless c has left or its buffer is full.
func (h *Hub) deliver(c *Client, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.clients[c] {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		if h.prom != nil {
			h.prom.WSDropped.Inc()
		}
		slog.Warn("[gateway] client send buffer full, dropping message")
		return false
	}
}

// deliverSeq queues an indicators message for one subscription unless a
// message with a higher seq was already queued for it. Seq is taken when a
// computation starts, so a snapshot that finishes after a newer push is
// dropped rather than overwriting it.
func (h *Hub) deliverSeq(c *Client, key string, seq int64, data []byte) bool {
	c.seqMu.Lock()
	defer c.seqMu.Unlock()
	if seq <= c.lastSeq[key] {
		slog.Debug("[gateway] dropping superseded indicators", "key", key, "seq", seq, "last", c.lastSeq[key])
		return false
	}
	if !h.deliver(c, data) {
		return false
	}
	c.lastSeq[key] = seq
	return true
}

func (h *Hub) nextSeq() int64 {
	return h.seq.Add(1)
}
