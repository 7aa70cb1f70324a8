package handlers

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/vibe-presenting/server/internal/middleware"
	"github.com/vibe-presenting/server/internal/models"
	"github.com/vibe-presenting/server/internal/services"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 256 * 1024
	sendQueueSize  = 64
)

// WebSocketHandler upgrades /ws/{room} requests and attaches the connection
// to the room's coordinator
type WebSocketHandler struct {
	rooms      *services.WebSocketService
	upgrader   websocket.Upgrader
	adminToken string
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(rooms *services.WebSocketService, allowedOrigins []string, adminToken string) *WebSocketHandler {
	return &WebSocketHandler{
		rooms:      rooms,
		adminToken: adminToken,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return middleware.OriginAllowed(allowedOrigins, r.Header.Get("Origin"))
			},
		},
	}
}

// ServeWS handles the WebSocket upgrade
// GET /ws/{room}?role=admin|attendee&token=...
func (h *WebSocketHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	room := mux.Vars(r)["room"]
	if !services.ValidRoomName(room) {
		http.Error(w, "invalid room name", http.StatusBadRequest)
		return
	}

	role := models.ParseRole(r.URL.Query().Get("role"))
	if role == models.RoleAdmin && !h.adminAllowed(r.URL.Query().Get("token")) {
		http.Error(w, "admin token required", http.StatusForbidden)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "room", room, "error", err)
		return
	}

	client := newWSClient(conn, role)
	coord, err := h.rooms.Attach(room, client)
	if err != nil {
		slog.Error("failed to attach client", "room", room, "error", err)
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "room unavailable"))
		conn.Close()
		return
	}

	go client.writePump()
	client.readPump(coord)
}

func (h *WebSocketHandler) adminAllowed(token string) bool {
	if h.adminToken == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) == 1
}

// wsClient is one browser connection
type wsClient struct {
	id   string
	role models.Role
	conn *websocket.Conn

	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newWSClient(conn *websocket.Conn, role models.Role) *wsClient {
	return &wsClient{
		id:     uuid.NewString(),
		role:   role,
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
		closed: make(chan struct{}),
	}
}

func (c *wsClient) ID() string        { return c.id }
func (c *wsClient) Role() models.Role { return c.role }

// Send queues a frame. A client whose queue is full is disconnected.
func (c *wsClient) Send(frame []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		slog.Warn("send queue full, closing connection", "client_id", c.id)
		c.close()
		return false
	}
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
}

// readPump forwards inbound frames to the room until the connection ends
func (c *wsClient) readPump(coord *services.Coordinator) {
	defer func() {
		c.close()
		if err := coord.Detach(c); err != nil && !errors.Is(err, services.ErrCoordinatorStopped) {
			slog.Warn("failed to detach client", "client_id", c.id, "error", err)
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				slog.Warn("websocket read error", "client_id", c.id, "error", err)
			}
			return
		}
		if err := coord.Submit(c, message); err != nil {
			slog.Warn("room rejected message", "client_id", c.id, "error", err)
			return
		}
	}
}

// writePump drains the send queue and keeps the connection alive with pings
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.closed:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
