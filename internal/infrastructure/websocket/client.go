package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"marketchat/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client is one websocket connection belonging to one authenticated user.
type Client struct {
	UserID uint64
	Conn   *websocket.Conn
	Send   chan []byte

	rooms  map[uint64]bool
	mu     sync.Mutex
	closed bool
}

func NewClient(userID uint64, conn *websocket.Conn) *Client {
	return &Client{
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, 256),
		rooms:  make(map[uint64]bool),
	}
}

// TrySend queues a payload without blocking. Returns false when the client
// is already closed or its buffer is full. All sends on the Send channel
// must go through here so they serialize with CloseSend.
func (c *Client) TrySend(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- payload:
		return true
	default:
		return false
	}
}

// CloseSend closes the send channel exactly once. A concurrent TrySend
// either lands before the close or observes the closed flag; it can never
// hit a closed channel.
func (c *Client) CloseSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

// ReadPump reads inbound frames until the connection drops and hands them to
// the manager's frame handler.
func (c *Client) ReadPump(m *Manager) {
	defer func() {
		m.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("WebSocket read error for user %d: %v", c.UserID, err)
			}
			break
		}
		m.HandleClientMessage(c, message)
	}
}

// WritePump drains the send channel onto the connection and keeps it alive
// with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Warn("WebSocket write error for user %d: %v", c.UserID, err)
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
