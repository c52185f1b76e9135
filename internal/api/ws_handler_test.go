package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ws "github.com/imapvault/server/internal/websocket"
)

func TestWebSocketHandler(t *testing.T) {
	hub := ws.NewHub(10)
	handler := NewWebSocketHandler(hub)

	server := httptest.NewServer(http.HandlerFunc(handler.Handle))
	defer server.Close()

	wsURL := "ws" + server.URL[4:]

	t.Run("connected clients receive broadcasts", func(t *testing.T) {
		conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.NoError(t, err)
		defer conn.Close()
		assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

		require.Eventually(t, func() bool {
			return hub.ActiveConnections() == 1
		}, 2*time.Second, 10*time.Millisecond)

		hub.Broadcast(map[string]string{"key": "acc-1", "status": "running"})

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)

		var event map[string]string
		require.NoError(t, json.Unmarshal(msg, &event))
		assert.Equal(t, "acc-1", event["key"])
	})

	t.Run("a disconnect unregisters the client", func(t *testing.T) {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			return hub.ActiveConnections() >= 1
		}, 2*time.Second, 10*time.Millisecond)
		before := hub.ActiveConnections()

		require.NoError(t, conn.Close())

		assert.Eventually(t, func() bool {
			return hub.ActiveConnections() == before-1
		}, 2*time.Second, 10*time.Millisecond)
	})
}
