package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second    // time allowed to write a frame to the peer
	pongWait     = 60 * time.Second    // time allowed to read the next pong
	pingPeriod   = (pongWait * 9) / 10 // must be less than pongWait
	maxFrameSize = 8192                // inbound frame limit; content length is checked separately
)

// Client is one live authenticated connection: the transport handle plus the
// presence metadata tracked for it. At most one Client per user is registered
// at a time; SessionID tells a replaced connection's trailing disconnect apart
// from the current session.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	UserID    int
	Username  string
	SessionID string
	JoinedAt  time.Time

	mu           sync.Mutex
	lastActivity time.Time
	messageCount int
	rooms        map[int]struct{}
	closed       bool
}

func newClient(h *Hub, conn *websocket.Conn, userID int, username string) *Client {
	now := time.Now()
	return &Client{
		hub:          h,
		conn:         conn,
		send:         make(chan []byte, 256),
		UserID:       userID,
		Username:     username,
		SessionID:    uuid.NewString(),
		JoinedAt:     now,
		lastActivity: now,
		rooms:        make(map[int]struct{}),
	}
}

// touch records inbound activity.
func (c *Client) touch(now time.Time) {
	c.mu.Lock()
	c.lastActivity = now
	c.mu.Unlock()
}

func (c *Client) countMessage() {
	c.mu.Lock()
	c.messageCount++
	c.mu.Unlock()
}

func (c *Client) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

func (c *Client) MessageCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messageCount
}

func (c *Client) addRoom(roomID int) {
	c.mu.Lock()
	c.rooms[roomID] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) removeRoom(roomID int) {
	c.mu.Lock()
	delete(c.rooms, roomID)
	c.mu.Unlock()
}

// roomList snapshots the rooms this connection subscribed to; the presence
// registry walks it during cleanup.
func (c *Client) roomList() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int, 0, len(c.rooms))
	for id := range c.rooms {
		out = append(out, id)
	}
	return out
}

// queue hands a pre-encoded frame to the write pump without blocking. False
// means the frame was dropped: connection closed or buffer full. This is the
// at-most-once delivery primitive; nothing is retried.
func (c *Client) queue(frame []byte) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// markClosed flips the closed flag once; the first caller owns cleanup.
func (c *Client) markClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	return true
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) closeConn() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// readPump pumps frames from the websocket into the hub's event dispatch.
// It owns the read side: deadlines, pong handling, and the disconnect signal.
func (c *Client) readPump() {
	defer func() {
		c.hub.disconnect(c)
		c.closeConn()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read error", "user_id", c.UserID, "error", err)
			}
			return
		}
		c.hub.handleFrame(c, raw)
	}
}

// writePump pumps queued frames to the websocket and keeps the connection
// alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConn()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(frame)

			// Drain whatever else is queued into the same write.
			n := len(c.send)
			for i := 0; i < n; i++ {
				_, _ = w.Write([]byte{'\n'})
				_, _ = w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
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
