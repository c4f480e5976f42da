package broadcast

import (
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/calbers/lastwords/internal/langs"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client is one connected subscriber. The hub owns the subscriber set; the
// client owns its own language interest, updated only from its own control
// messages. An empty interest set means "all languages".
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *slog.Logger

	mu       sync.RWMutex
	interest map[string]bool
}

// NewClient wraps an upgraded websocket connection. initial is the starting
// interest set; a nil entry selects posts without a language tag.
func NewClient(hub *Hub, conn *websocket.Conn, initial []*string, logger *slog.Logger) *Client {
	c := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 16),
		logger: logger,
	}
	c.setInterest(initial)
	return c
}

// Start runs the read and write pumps. The client unregisters itself from
// the hub when its connection drops.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

func (c *Client) setInterest(tags []*string) {
	interest := make(map[string]bool, len(tags))
	for _, tag := range tags {
		if tag == nil {
			interest[langs.Untagged] = true
		} else {
			interest[*tag] = true
		}
	}

	c.mu.Lock()
	c.interest = interest
	c.mu.Unlock()
}

// wants reports whether this client's interest set matches a post's language
// list. A post without tags counts as carrying only the untagged marker.
func (c *Client) wants(postLangs []string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.interest) == 0 {
		return true
	}
	if len(postLangs) == 0 {
		return c.interest[langs.Untagged]
	}
	for _, l := range postLangs {
		if c.interest[l] {
			return true
		}
	}
	return false
}

// readPump consumes inbound control messages. Anything that is not a
// well-formed setLangs frame is logged and ignored; the connection stays
// open.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("unexpected websocket close", "error", err)
			}
			return
		}

		var msg controlMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("bad client message, ignoring", "error", err)
			continue
		}
		if msg.Type != "setLangs" {
			c.logger.Warn("unexpected client message type, ignoring", "type", msg.Type)
			continue
		}
		c.setInterest(msg.Langs)
	}
}

// writePump drains the send buffer onto the connection and keeps the
// connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
