// Package hub pushes re-render notifications to the browser tabs of a session
// over WebSocket.
package hub

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"TeachMe/internal/chatbot"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	sendBuffer   = 16
	writeTimeout = 10 * time.Second
)

// Options configures a Hub.
type Options struct {
	PingInterval time.Duration
	Logger       *slog.Logger
}

// Hub tracks WebSocket connections per session.
type Hub struct {
	pingInterval time.Duration
	logger       *slog.Logger
	upgrader     websocket.Upgrader

	mu       sync.RWMutex
	sessions map[string]map[string]*Connection
}

// Connection is one browser tab.
type Connection struct {
	ID        string
	SessionID string
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

// New creates an empty Hub.
func New(opts Options) *Hub {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Hub{
		pingInterval: opts.PingInterval,
		logger:       opts.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		sessions: make(map[string]map[string]*Connection),
	}
}

// ServeWS upgrades the request and binds the connection to sessionID until
// the client goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, sessionID string) error {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade websocket", "error", err)
		return err
	}

	conn := &Connection{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		conn:      ws,
		send:      make(chan []byte, sendBuffer),
	}
	h.register(conn)

	go h.writePump(conn)
	go h.readPump(conn)
	return nil
}

// Notify implements chatbot.Notifier.
func (h *Hub) Notify(sessionID string, ev chatbot.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to encode event", "error", err)
		return
	}

	h.mu.RLock()
	var slow []*Connection
	for _, conn := range h.sessions[sessionID] {
		select {
		case conn.send <- data:
		default:
			slow = append(slow, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range slow {
		h.logger.Warn("connection buffer full, closing", "connection_id", conn.ID, "session_id", sessionID)
		h.unregister(conn)
	}
}

// ConnectionCount returns the number of open connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, conns := range h.sessions {
		n += len(conns)
	}
	return n
}

// SessionCount returns the number of sessions with at least one connection.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *Hub) register(conn *Connection) {
	h.mu.Lock()
	if h.sessions[conn.SessionID] == nil {
		h.sessions[conn.SessionID] = make(map[string]*Connection)
	}
	h.sessions[conn.SessionID][conn.ID] = conn
	h.mu.Unlock()

	h.logger.Debug("connection registered", "connection_id", conn.ID, "session_id", conn.SessionID)
}

func (h *Hub) unregister(conn *Connection) {
	h.mu.Lock()
	if conns, ok := h.sessions[conn.SessionID]; ok {
		delete(conns, conn.ID)
		if len(conns) == 0 {
			delete(h.sessions, conn.SessionID)
		}
	}
	// Notify sends while holding the read lock, so close under the write lock.
	conn.closeOnce.Do(func() {
		close(conn.send)
	})
	h.mu.Unlock()

	h.logger.Debug("connection unregistered", "connection_id", conn.ID)
}

// readPump drains the client so pongs and close frames are processed.
func (h *Hub) readPump(conn *Connection) {
	defer func() {
		h.unregister(conn)
		conn.conn.Close()
	}()

	conn.conn.SetReadLimit(512)
	conn.conn.SetReadDeadline(time.Now().Add(2 * h.pingInterval))
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(2 * h.pingInterval))
	})

	for {
		if _, _, err := conn.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", "connection_id", conn.ID, "error", err)
			}
			return
		}
	}
}

func (h *Hub) writePump(conn *Connection) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		conn.conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.send:
			conn.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				conn.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Warn("failed to write message", "connection_id", conn.ID, "error", err)
				return
			}

		case <-ticker.C:
			conn.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
