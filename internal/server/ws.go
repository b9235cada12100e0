package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/enviodev/liqo/logger"
)

const writeDeadline = 5 * time.Second

// snapshotNotice is pushed to subscribers whenever the poller accepts a new
// snapshot. Clients re-query the listing endpoint on receipt; the notice
// itself carries no rows.
type snapshotNotice struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
	At    int64  `json:"at"`
}

// Hub fans snapshot-change notices out to connected websocket clients.
type Hub struct {
	mu       sync.Mutex
	conns    map[*websocket.Conn]struct{}
	closed   bool
	log      *logger.Log
	upgrader websocket.Upgrader
}

func NewHub() *Hub {
	return &Hub{
		conns: make(map[*websocket.Conn]struct{}),
		log:   logger.GetLogger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dashboard is read-only; any origin may subscribe.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handle upgrades the request and keeps the connection registered until the
// client goes away.
func (h *Hub) Handle(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithComponent("ws_hub").WithError(err).Warn("websocket upgrade failed")
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.conns[conn] = struct{}{}
	subscribers := len(h.conns)
	h.mu.Unlock()

	h.log.WithComponent("ws_hub").WithFields(logger.Fields{
		"subscribers": subscribers,
	}).Debug("websocket client connected")

	// Clients never send application data; the read loop only notices
	// closure.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.drop(conn)
				return
			}
		}
	}()
}

// Broadcast pushes one snapshot notice to every subscriber. Connections
// that fail to accept the write are dropped.
func (h *Hub) Broadcast(count int) {
	notice := snapshotNotice{
		Type:  "snapshot",
		Count: count,
		At:    time.Now().Unix(),
	}

	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		if err := conn.WriteJSON(notice); err != nil {
			h.drop(conn)
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.conns[conn]
	if ok {
		delete(h.conns, conn)
	}
	h.mu.Unlock()

	if ok {
		_ = conn.Close()
	}
}

// Close disconnects all subscribers. Used at shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.conns = make(map[*websocket.Conn]struct{})
	h.closed = true
	h.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}
