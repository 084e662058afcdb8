package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openhearth/hearth-core/internal/device"
	"github.com/openhearth/hearth-core/internal/infrastructure/logging"
)

const (
	// wsSendBuffer is the per-client outbound queue. A client that
	// cannot drain it is dropped rather than stalling the broadcast.
	wsSendBuffer = 32

	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
)

// WSMessage is the envelope for every frame pushed to stream clients.
type WSMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// wsClient is one connected stream consumer.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans registry updates out to all connected WebSocket clients.
//
// Broadcast never blocks on a slow client: a client whose send buffer
// is full is disconnected.
type Hub struct {
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	closed  bool
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// BroadcastUpdate pushes one accepted registry merge to all clients.
func (h *Hub) BroadcastUpdate(update device.Update) {
	msg := WSMessage{
		Type: "device_update",
		Data: map[string]any{
			"device": update.Record,
			"result": update.Result.String(),
		},
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshalling stream update", "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- payload:
		default:
			// Slow consumer: drop it.
			h.unregister(c)
		}
	}
}

// register adds a client and starts its pumps.
func (h *Hub) register(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

// unregister removes a client and closes its connection exactly once.
//
// The send channel is never closed: Broadcast may be sending on it
// concurrently. Closing the connection unwinds both pumps instead.
func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	h.mu.Unlock()

	if ok {
		_ = c.conn.Close()
	}
}

// closeAll disconnects every client during shutdown.
func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*wsClient]struct{})
	h.closed = true
	h.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.Close()
	}
}

// clientCount returns the number of connected clients.
func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// handleWebSocket upgrades the connection and streams registry updates
// until the client disconnects.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.isAllowedOrigin(origin)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, wsSendBuffer),
	}
	if !s.hub.register(client) {
		_ = conn.Close()
		return
	}

	go s.writePump(client)
	s.readPump(client)
}

// writePump drains the client's send queue and keeps the connection
// alive with periodic pings.
func (s *Server) writePump(c *wsClient) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.hub.unregister(c)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.hub.unregister(c)
				return
			}
		}
	}
}

// readPump consumes inbound frames. The stream is one-way; client
// frames are discarded, but the read loop is what detects disconnects.
func (s *Server) readPump(c *wsClient) {
	defer s.hub.unregister(c)

	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
