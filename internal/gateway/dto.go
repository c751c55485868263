package gateway

import "memetrader/internal/model"

// Client → server actions.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionPing        = "ping"
)

// Server → client message types.
const (
	TypeIndicators   = "indicators"
	TypeUnsubscribed = "unsubscribed"
	TypeError        = "error"
	TypePong         = "pong"
)

// ClientMessage is any message a websocket client sends.
type ClientMessage struct {
	Action    string   `json:"action"`
	ReqID     string   `json:"req_id,omitempty"`
	Pair      string   `json:"pair"`
	Timeframe string   `json:"timeframe"`
	Kinds     []string `json:"kinds"`
}

// IndicatorsMessage carries a pair's indicator series. Initial is true for
// the snapshot sent in reply to a subscribe, false for pushes after a price
// refresh. Seq increases per subscription; a snapshot that would arrive
// after a newer push is not sent, so it may never arrive.
type IndicatorsMessage struct {
	Type      string                  `json:"type"`
	ReqID     string                  `json:"req_id,omitempty"`
	Seq       int64                   `json:"seq"`
	Pair      string                  `json:"pair"`
	Timeframe model.Timeframe         `json:"timeframe"`
	Initial   bool                    `json:"initial"`
	Stale     bool                    `json:"stale,omitempty"`
	Samples   []model.PriceSample     `json:"samples"`
	Series    []model.IndicatorSeries `json:"series"`
}

// AckMessage confirms an unsubscribe.
type AckMessage struct {
	Type      string          `json:"type"`
	ReqID     string          `json:"req_id,omitempty"`
	Pair      string          `json:"pair"`
	Timeframe model.Timeframe `json:"timeframe"`
}

// ErrorMessage reports a rejected request.
type ErrorMessage struct {
	Type  string `json:"type"`
	ReqID string `json:"req_id,omitempty"`
	Error string `json:"error"`
}

// PongMessage answers an application-level ping.
type PongMessage struct {
	Type     string `json:"type"`
	ServerTS int64  `json:"server_ts"`
}
