package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/Baaaki/scooter-fleet/internal/metrics"
	"github.com/Baaaki/scooter-fleet/internal/models"
	"github.com/Baaaki/scooter-fleet/pkg/logger"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second // Time allowed to write a message to the peer
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // 54 seconds
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

// Identity is the minimal user descriptor attached to a connection.
type Identity struct {
	ID    uuid.UUID   `json:"id"`
	Name  string      `json:"name"`
	Email string      `json:"email"`
	Role  models.Role `json:"-"`
}

func (i Identity) IsAdmin() bool {
	return i.Role == models.RoleAdmin
}

// Client is one realtime connection.
type Client struct {
	User        Identity
	ConnectedAt time.Time

	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

// NewClient wraps an upgraded connection. Run WritePump and ReadLoop to serve it.
func NewClient(conn *websocket.Conn, user Identity) *Client {
	return &Client{
		User:        user,
		ConnectedAt: time.Now(),
		conn:        conn,
		send:        make(chan []byte, sendBufferSize),
	}
}

// Emit queues an event for this connection only.
func (c *Client) Emit(event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Log.Error("Failed to encode outbound payload",
			zap.String("event", event),
			zap.Error(err),
		)
		return
	}
	frame, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		return
	}
	c.enqueue(frame)
}

// enqueue never blocks. A full buffer drops the frame.
func (c *Client) enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		metrics.DroppedFrames.Inc()
		logger.Log.Warn("Client send buffer full, dropping frame",
			zap.String("user_id", c.User.ID.String()),
		)
		return false
	}
}

// close stops the write pump. Safe to call more than once.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// ReadLoop reads frames until the peer goes away and hands each one to
// handle on the calling goroutine, so one connection's events run in order.
func (c *Client) ReadLoop(handle func(*Client, Frame)) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logger.Log.Debug("WebSocket read error",
					zap.String("user_id", c.User.ID.String()),
					zap.Error(err),
				)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Event == "" {
			c.Emit(EventError, ErrorNotice{Message: "invalid frame", Code: "bad_request"})
			continue
		}

		handle(c, frame)
	}
}

// WritePump drains the send buffer and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logger.Log.Debug("WebSocket write failed",
					zap.String("user_id", c.User.ID.String()),
					zap.Error(err),
				)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Log.Debug("Ping failed",
					zap.String("user_id", c.User.ID.String()),
					zap.Error(err),
				)
				return
			}
		}
	}
}
