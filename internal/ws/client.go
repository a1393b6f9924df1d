package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chatrelay/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client pairs one authenticated user with one live websocket transport.
// All pushes go through the buffered send channel so no caller ever blocks
// on, or holds a lock across, a slow peer's socket write.
type Client struct {
	UserID int
	ConnID string

	conn        *websocket.Conn
	send        chan []byte
	done        chan struct{}
	closeOnce   sync.Once
	logger      *zap.Logger
	ConnectedAt time.Time
}

// NewClient wraps an upgraded connection.
func NewClient(userID int, connID string, conn *websocket.Conn, buffer int, logger *zap.Logger) *Client {
	return &Client{
		UserID:      userID,
		ConnID:      connID,
		conn:        conn,
		send:        make(chan []byte, buffer),
		done:        make(chan struct{}),
		logger:      logger,
		ConnectedAt: time.Now(),
	}
}

// Enqueue queues an event for delivery. A client whose buffer is full is
// considered dead and gets dropped rather than stalling the sender.
func (c *Client) Enqueue(event models.ServerEvent) bool {
	payload, err := json.Marshal(event)
	if err != nil {
		c.logger.Error("marshal outbound event", zap.String("type", event.Type), zap.Error(err))
		return false
	}

	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- payload:
		return true
	default:
		c.logger.Warn("outbound buffer full, dropping connection",
			zap.Int("user_id", c.UserID), zap.String("conn_id", c.ConnID))
		c.Close()
		return false
	}
}

// WritePump drains the send channel onto the socket and keeps the
// connection alive with pings. It owns all writes to the transport.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Debug("websocket write error", zap.Int("user_id", c.UserID), zap.Error(err))
				c.Close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Close severs the transport. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}
