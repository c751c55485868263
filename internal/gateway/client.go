package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"memetrader/internal/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	readLimit  = 4096
	sendBuffer = 64
)

// Client represents a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	// ctx carries the connection trace ID and is cancelled on disconnect.
	ctx    context.Context
	cancel context.CancelFunc

	// Per-client subscriptions: key = "pair:timeframe"
	subMu sync.RWMutex
	subs  map[string]Subscription

	// lastSeq is the highest indicators Seq queued per subscription key.
	// seqMu is taken before hub.mu, never after.
	seqMu   sync.Mutex
	lastSeq map[string]int64
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	ctx, cancel := context.WithCancel(logger.WithTraceID(context.Background(), logger.NewTraceID()))
	return &Client{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		hub:    h,
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[string]Subscription),

		lastSeq: make(map[string]int64),
	}
}

func (c *Client) subscription(key string) (Subscription, bool) {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	sub, ok := c.subs[key]
	return sub, ok
}

func (c *Client) subCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subs)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.cancel()
		c.hub.RemoveClient(c)
		c.conn.Close()
		slog.Info("[gateway] ws client disconnected", logger.LogWithTrace(c.ctx)...)
	}()

	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendError("", "invalid message: "+err.Error())
			continue
		}

		switch msg.Action {
		case ActionSubscribe:
			c.handleSubscribe(msg)
		case ActionUnsubscribe:
			c.handleUnsubscribe(msg)
		case ActionPing:
			c.sendJSON(PongMessage{Type: TypePong, ServerTS: time.Now().UnixMilli()})
		default:
			c.sendError(msg.ReqID, "unknown action "+msg.Action)
		}
	}
}

// handleSubscribe registers the subscription immediately and sends the
// initial snapshot from a separate goroutine so a slow upstream fetch does
// not block the read loop.
func (c *Client) handleSubscribe(msg ClientMessage) {
	sub, err := ParseSubscription(msg)
	if err != nil {
		c.sendError(msg.ReqID, err.Error())
		return
	}

	c.subMu.Lock()
	_, existed := c.subs[sub.SubKey()]
	c.subs[sub.SubKey()] = sub
	c.subMu.Unlock()
	if !existed && c.hub.prom != nil {
		c.hub.prom.WSSubscriptions.Inc()
	}

	slog.Info("[gateway] client subscribed",
		append(logger.LogWithTrace(c.ctx), "pair", sub.Pair, "timeframe", sub.Timeframe, "kinds", sub.kindsKey())...)

	go func() {
		data, seq, err := c.hub.render(c.ctx, sub.Pair, sub.Timeframe, sub.Kinds, msg.ReqID, true)
		if err != nil {
			c.sendError(msg.ReqID, "snapshot failed: "+err.Error())
			return
		}
		c.hub.deliverSeq(c, sub.SubKey(), seq, data)
	}()
}

func (c *Client) handleUnsubscribe(msg ClientMessage) {
	sub, err := ParseSubscription(msg)
	if err != nil {
		c.sendError(msg.ReqID, err.Error())
		return
	}

	c.subMu.Lock()
	_, existed := c.subs[sub.SubKey()]
	delete(c.subs, sub.SubKey())
	c.subMu.Unlock()

	c.seqMu.Lock()
	delete(c.lastSeq, sub.SubKey())
	c.seqMu.Unlock()
	if existed && c.hub.prom != nil {
		c.hub.prom.WSSubscriptions.Dec()
	}

	c.sendJSON(AckMessage{Type: TypeUnsubscribed, ReqID: msg.ReqID, Pair: sub.Pair, Timeframe: sub.Timeframe})
}

func (c *Client) sendJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("[gateway] json marshal error", "error", err)
		return
	}
	c.hub.deliver(c, data)
}

func (c *Client) sendError(reqID, errMsg string) {
	c.sendJSON(ErrorMessage{Type: TypeError, ReqID: reqID, Error: errMsg})
}
