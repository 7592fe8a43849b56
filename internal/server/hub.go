package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/opd-ai/tapwatch/internal/logging"
	"github.com/opd-ai/tapwatch/internal/monitor"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	clientSendSize = 16
)

// Message is one frame pushed to websocket clients.
type Message struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// client is one websocket connection.
type client struct {
	id   uint64
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub fans every View out to the connected websocket clients. A client that
// cannot keep up loses frames rather than slowing down the poll loop.
type Hub struct {
	upgrader websocket.Upgrader
	logger   logging.Logger

	mu      sync.RWMutex
	clients map[uint64]*client
	nextID  uint64
	last    []byte
	closed  bool
}

// NewHub creates an empty Hub.
func NewHub(logger logging.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:  logging.OrNop(logger),
		clients: make(map[uint64]*client),
	}
}

// Deliver broadcasts v to every client.
func (h *Hub) Deliver(_ context.Context, v monitor.View) error {
	frame, err := encodeView(v)
	if err != nil {
		return err
	}

	// Sends never block; the lock keeps unregister from closing mid-send.
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = frame
	for _, c := range h.clients {
		select {
		case c.send <- frame:
		default:
			h.logger.Debug("websocket client too slow, frame dropped", "client", c.id)
		}
	}
	return nil
}

func encodeView(v monitor.View) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: "view", Timestamp: v.Timestamp, Data: data})
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Serve upgrades the request and streams views until the client leaves.
// A new client first receives the most recent view, if any.
func (h *Hub) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", c.ClientIP(), "error", err)
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	h.nextID++
	cl := &client{id: h.nextID, conn: conn, send: make(chan []byte, clientSendSize)}
	h.clients[cl.id] = cl
	if h.last != nil {
		cl.send <- h.last
	}
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("websocket client connected", "client", cl.id, "remote", c.ClientIP(), "total", n)
	go h.writePump(cl)
	h.readPump(cl)
}

func (h *Hub) unregister(cl *client) {
	h.mu.Lock()
	if _, ok := h.clients[cl.id]; ok {
		delete(h.clients, cl.id)
		cl.close()
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("websocket client disconnected", "client", cl.id, "total", n)
}

// readPump discards client messages and notices disconnects.
func (h *Hub) readPump(cl *client) {
	defer func() {
		h.unregister(cl)
		cl.conn.Close()
	}()
	cl.conn.SetReadLimit(512)
	cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", "client", cl.id, "error", err)
			}
			return
		}
	}
}

func (h *Hub) writePump(cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cl.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-cl.send:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				cl.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.logger.Debug("websocket write error", "client", cl.id, "error", err)
				return
			}
		case <-ticker.C:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for id, cl := range h.clients {
		delete(h.clients, id)
		cl.close()
	}
	h.mu.Unlock()
}
