package api

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/imapvault/server/internal/logging"
	ws "github.com/imapvault/server/internal/websocket"
)

// WebSocketHandler handles the /api/ws endpoint. Connected clients receive
// every sync and export status change as a JSON event.
type WebSocketHandler struct {
	hub *ws.Hub
	l   *logrus.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler instance.
func NewWebSocketHandler(hub *ws.Hub) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
		l:   logging.Logger(logging.API),
	}
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The server is expected to run behind a reverse proxy in a trusted
		// environment.
		return true
	},
}

// Handle upgrades the HTTP connection to a WebSocket and registers it with
// the Hub.
func (h *WebSocketHandler) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.l.WithError(err).Warn("Could not upgrade connection")
		return
	}

	client := h.hub.Register(conn)
	if client == nil {
		return
	}

	go h.readLoop(client)
}

// readLoop drains the connection until it closes, only to detect the
// disconnect; clients are not expected to send anything.
func (h *WebSocketHandler) readLoop(client *ws.Client) {
	conn := client.Conn()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.hub.Unregister(client)
}
