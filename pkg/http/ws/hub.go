package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Hub tracks the open notification sockets of each session. A session may have
// several tabs open; every message for the session reaches all of them.
type Hub struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]map[*Connection]struct{}
	logger   zerolog.Logger
	onChange func(delta int)
}

// NewHub creates a new WebSocket hub. onChange, if set, is called with +1 or -1 as
// connections come and go.
func NewHub(logger zerolog.Logger, onChange func(delta int)) *Hub {
	return &Hub{
		sessions: make(map[uuid.UUID]map[*Connection]struct{}),
		logger:   logger,
		onChange: onChange,
	}
}

// Register adds a connection for a session.
func (h *Hub) Register(sessionID uuid.UUID, conn *Connection) {
	h.mu.Lock()
	conns, ok := h.sessions[sessionID]
	if !ok {
		conns = make(map[*Connection]struct{})
		h.sessions[sessionID] = conns
	}
	conns[conn] = struct{}{}
	h.mu.Unlock()

	if h.onChange != nil {
		h.onChange(1)
	}
	h.logger.Debug().Str("session", sessionID.String()).Msg("connection registered")
}

// Unregister removes and closes a connection.
func (h *Hub) Unregister(sessionID uuid.UUID, conn *Connection) {
	h.mu.Lock()
	conns := h.sessions[sessionID]
	_, found := conns[conn]
	if found {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.sessions, sessionID)
		}
	}
	h.mu.Unlock()

	if !found {
		return
	}
	conn.Close()
	if h.onChange != nil {
		h.onChange(-1)
	}
	h.logger.Debug().Str("session", sessionID.String()).Msg("connection unregistered")
}

// SendToSession delivers a message to every connection of a session. A session with
// no open sockets is not an error.
func (h *Hub) SendToSession(sessionID uuid.UUID, msg Message) error {
	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.sessions[sessionID]))
	for c := range h.sessions[sessionID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	var firstErr error
	for _, c := range conns {
		if err := c.Send(msg); err != nil && firstErr == nil {
			firstErr = err
			h.logger.Warn().Err(err).Str("session", sessionID.String()).Msg("send_failed")
		}
	}
	return firstErr
}

// Connections returns the number of open sockets for a session.
func (h *Hub) Connections(sessionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// Close closes every connection.
func (h *Hub) Close() {
	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[uuid.UUID]map[*Connection]struct{})
	h.mu.Unlock()

	for _, conns := range sessions {
		for c := range conns {
			c.Close()
			if h.onChange != nil {
				h.onChange(-1)
			}
		}
	}
}

// Connection represents a WebSocket connection with send queue.
type Connection struct {
	conn   *websocket.Conn
	sendCh chan Message
	mu     sync.Mutex
	closed bool
	logger zerolog.Logger
}

// NewConnection wraps a WebSocket connection.
func NewConnection(conn *websocket.Conn, logger zerolog.Logger) *Connection {
	return &Connection{
		conn:   conn,
		sendCh: make(chan Message, 64),
		logger: logger,
	}
}

// Send queues a message for delivery.
func (c *Connection) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}

	select {
	case c.sendCh <- msg:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close shuts down the send queue; WritePump then closes the socket.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.sendCh)
}

// WritePump sends queued messages and keeps the socket alive with pings.
func (c *Connection) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.sendCh:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Warn().Err(err).Msg("write error")
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

// ReadPump receives messages and calls the handler until the socket closes.
func (c *Connection) ReadPump(handler func(Message) error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Msg("read error")
			}
			return
		}

		if err := handler(msg); err != nil {
			c.logger.Warn().Err(err).Msg("message handler error")
		}
	}
}

var (
	ErrConnectionClosed = &Error{Code: "connection_closed", Message: "Connection is closed"}
	ErrSendQueueFull    = &Error{Code: "send_queue_full", Message: "Send queue is full"}
)

type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}
