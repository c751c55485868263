package gateway

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// ServeWS upgrades the request to a websocket and registers the client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("[gateway] ws upgrade error", "error", err)
		return
	}
	conn.EnableWriteCompression(true)

	c := newClient(h, conn)
	h.register(c)

	go c.writePump()
	go c.readPump()
}
