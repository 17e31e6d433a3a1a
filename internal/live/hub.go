// Package live pushes every new snapshot to connected WebSocket clients.
package live

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"candlesignal/internal/model"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

const (
	sendBuffer   = 16
	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
	pingEvery    = 30 * time.Second
)

// envelope wraps a snapshot with a per-hub sequence number so clients can
// notice dropped messages.
type envelope struct {
	Seq      int64                 `json:"seq"`
	Initial  bool                  `json:"initial,omitempty"`
	Snapshot *model.MarketSnapshot `json:"snapshot"`
}

// Hub fans snapshots out to WebSocket clients. Slow clients lose messages
// rather than blocking the broadcaster.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	latest  *model.MarketSnapshot
	seq     int64
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Broadcast sends snap to every client and keeps it for new connections.
func (h *Hub) Broadcast(snap *model.MarketSnapshot) {
	if snap == nil {
		return
	}
	// Held through fan-out so every client sees sequence numbers in order.
	h.mu.Lock()
	defer h.mu.Unlock()
	seq := h.seq + 1
	msg, err := json.Marshal(envelope{Seq: seq, Snapshot: snap})
	if err != nil {
		slog.Warn("live: encode snapshot", "error", err)
		return
	}
	h.seq = seq
	h.latest = snap

	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slog.Debug("live: client send buffer full, dropping snapshot", "seq", seq)
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and registers the client. The newest
// snapshot, if any, is sent first with initial=true.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("live: upgrade failed", "error", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer), hub: h}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	if h.latest != nil {
		if msg, err := json.Marshal(envelope{Seq: h.seq, Initial: true, Snapshot: h.latest}); err == nil {
			c.send <- msg
		}
	}
	count := len(h.clients)
	h.mu.Unlock()
	slog.Info("live: client connected", "clients", count)

	go c.writePump()
	go c.readPump()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingEvery)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only services control frames; client messages are ignored.
func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
		slog.Info("live: client disconnected")
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
