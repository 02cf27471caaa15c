package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/itzamna-labs/chasqui/internal/bus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	clientSendBuf  = 32
	maxInboundSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// auth happens before the upgrade; origin checks would block CLI clients
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub fans out server events to connected WebSocket observers. It implements
// bus.EventPublisher so the pipeline can broadcast through it directly.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]struct{}
	handlers map[string]bus.EventHandler
	closed   bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func NewHub() *Hub {
	return &Hub{
		clients:  make(map[*client]struct{}),
		handlers: make(map[string]bus.EventHandler),
	}
}

// Subscribe registers an in-process event handler alongside the WebSocket
// fan-out.
func (h *Hub) Subscribe(id string, handler bus.EventHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[id] = handler
}

func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.handlers, id)
}

// Broadcast delivers an event to every connected client and registered
// handler. Slow clients get dropped rather than blocking the caller.
func (h *Hub) Broadcast(event bus.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Debug("event marshal failed", "event", event.Name, "error", err)
		return
	}

	h.mu.RLock()
	handlers := make([]bus.EventHandler, 0, len(h.handlers))
	for _, fn := range h.handlers {
		handlers = append(handlers, fn)
	}
	var stale []*client
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	for _, fn := range handlers {
		fn(event)
	}
	for _, c := range stale {
		h.drop(c)
	}
}

// ClientCount returns the number of connected observers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects all clients. New connections are rejected afterwards.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		close(c.send)
	}
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientSendBuf)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	slog.Info("websocket client connected", "clients", n)

	go c.writePump()
	go h.readPump(c)
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	h.mu.Unlock()
	if ok {
		close(c.send)
	}
}

// readPump discards client frames; the stream is one-way. It exists to
// service pongs and detect disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.drop(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInboundSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
