package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	sendQueueSize  = 64
	writeDeadline  = 5 * time.Second
	maxMessageSize = 1 << 20
)

// Client owns the write side of one WebSocket connection: a bounded send
// queue drained by a dedicated goroutine. Enqueue never blocks; when the
// queue is full the message is dropped so a slow client cannot stall a
// room's tick loop.
type Client struct {
	ws *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// NewClient wraps an upgraded connection.
func NewClient(ws *websocket.Conn) *Client {
	return &Client{
		ws:   ws,
		send: make(chan []byte, sendQueueSize),
	}
}

// Enqueue queues a message for delivery. Reports false when the message was
// dropped because the queue is full or the connection is closed.
func (c *Client) Enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close shuts down the send queue and the underlying connection. Idempotent.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.ws.Close()
}

// writePump drains the send queue onto the wire. Runs as its own goroutine;
// exits when the queue closes or a write fails.
func (c *Client) writePump() {
	defer c.ws.Close()
	for data := range c.send {
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeDeadline))
		if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}
