// Package websocket pushes operation status events to connected clients so
// a UI can follow sync and export progress without polling.
package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/imapvault/server/internal/logging"
)

// Client wraps a WebSocket connection.
type Client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// Conn returns the underlying WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

func (c *Client) write(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

// Hub manages the active WebSocket connections. Every event is broadcast to
// all of them; clients filter on their end.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]struct{}
	maxClients int
	l          *logrus.Logger
}

// NewHub creates a new Hub with a connection limit.
func NewHub(maxClients int) *Hub {
	if maxClients <= 0 {
		maxClients = 100
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		maxClients: maxClients,
		l:          logging.Logger(logging.API),
	}
}

// Register adds a WebSocket connection. If the limit is exceeded, the new
// connection is closed and nil is returned.
func (h *Hub) Register(conn *websocket.Conn) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.clients) >= h.maxClients {
		h.l.WithField("max", h.maxClients).Warn("Connection limit reached, rejecting client")
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too many connections"),
			time.Time{},
		)
		_ = conn.Close()
		return nil
	}

	client := &Client{conn: conn}
	h.clients[client] = struct{}{}
	return client
}

// Unregister removes a client and closes its connection.
func (h *Hub) Unregister(client *Client) {
	if client == nil {
		return
	}

	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()

	_ = client.conn.Close()
}

// Broadcast sends the JSON encoding of v to every connected client. Clients
// whose write fails are dropped.
func (h *Hub) Broadcast(v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		h.l.WithError(err).Error("Could not encode broadcast message")
		return
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if err := client.write(msg); err != nil {
			h.l.WithError(err).Debug("Dropping client after failed write")
			h.Unregister(client)
		}
	}
}

// ActiveConnections returns the number of connected clients.
func (h *Hub) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}
