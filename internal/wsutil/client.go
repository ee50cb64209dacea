package wsutil

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/agentpod/agentpod/internal/common/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024 * 1024
	sendBufferSize = 256
)

// SubscriptionMessage is sent by a client to subscribe/unsubscribe from
// topics, matching the teacher's SubscriptionMessage shape but generalized
// from task ids to arbitrary topic strings.
type SubscriptionMessage struct {
	Action string   `json:"action"` // subscribe, unsubscribe
	Topics []string `json:"topics"`
}

// Client is one websocket connection registered with a Hub.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	logger *logger.Logger
	send   chan []byte

	mu     sync.RWMutex
	topics map[string]bool

	// OnMessage, when set, receives raw non-subscription payloads (e.g.
	// terminal keystrokes) instead of having them parsed as subscription
	// control messages. Used by the Terminal Multiplexer (C8).
	OnMessage func([]byte)
}

// NewClient wraps a websocket connection and registers it with hub.
func NewClient(hub *Hub, conn *websocket.Conn, log *logger.Logger) *Client {
	c := &Client{
		hub:    hub,
		conn:   conn,
		logger: log.WithFields(zap.String("component", "wsutil.client")),
		send:   make(chan []byte, sendBufferSize),
		topics: make(map[string]bool),
	}
	hub.Register(c)
	return c
}

// ReadPump reads control/data messages from the connection until it closes.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}

		if c.OnMessage != nil {
			c.OnMessage(message)
			continue
		}

		var subMsg SubscriptionMessage
		if err := json.Unmarshal(message, &subMsg); err != nil {
			c.logger.Warn("invalid subscription message", zap.Error(err))
			continue
		}

		switch subMsg.Action {
		case "subscribe":
			for _, topic := range subMsg.Topics {
				c.Subscribe(topic)
			}
		case "unsubscribe":
			for _, topic := range subMsg.Topics {
				c.Unsubscribe(topic)
			}
		default:
			c.logger.Warn("unknown subscription action", zap.String("action", subMsg.Action))
		}
	}
}

// WritePump flushes queued messages and pings the connection, coalescing
// any messages queued while a write was in flight into a single frame.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
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

// WriteBinary queues data on the same send buffer as Send (used for
// terminal scrollback, §4.8). WritePump delivers it as a text frame,
// joined with any other queued messages; no binary frame is written.
func (c *Client) WriteBinary(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Send queues msg for delivery, dropping it if the client's buffer is full.
func (c *Client) Send(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Close unregisters the client from its hub.
func (c *Client) Close() {
	c.hub.Unregister(c)
}

// Subscribe adds topic to the client's subscription set.
func (c *Client) Subscribe(topic string) {
	c.mu.Lock()
	c.topics[topic] = true
	c.mu.Unlock()
	c.hub.SubscribeClient(c, topic)
}

// Unsubscribe removes topic from the client's subscription set.
func (c *Client) Unsubscribe(topic string) {
	c.mu.Lock()
	delete(c.topics, topic)
	c.mu.Unlock()
	c.hub.UnsubscribeClient(c, topic)
}

// IsSubscribed reports whether the client is subscribed to topic.
func (c *Client) IsSubscribed(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topics[topic]
}
