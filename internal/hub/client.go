package hub

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/gophergala/gogala/internal/protocol"
)

// sendBuffer bounds the per-session outbound queue. A session that
// falls this far behind is disconnected rather than allowed to block
// broadcasts to the rest of the room.
const sendBuffer = 64

// Conn is the transport side of a session. *websocket.Conn satisfies
// it; tests substitute a recording fake.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Client is one live session: an identity, its connection and the
// outbound queue drained by its writer pump. The pump is the only
// goroutine that touches the connection for writes.
type Client struct {
	ID string

	hub       *Hub
	conn      Conn
	send      chan protocol.Envelope
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func newClient(h *Hub, conn Conn) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		ID:     uuid.NewString(),
		hub:    h,
		conn:   conn,
		send:   make(chan protocol.Envelope, sendBuffer),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Context is cancelled when the session is unregistered. In-flight
// work on behalf of the session (compile submissions) hangs off it.
func (c *Client) Context() context.Context { return c.ctx }

// deliver queues env without blocking. Reports false when the queue is
// full; the hub treats that as a dead peer. Callers must hold the hub
// lock or otherwise guarantee the session has not been closed.
func (c *Client) deliver(env protocol.Envelope) bool {
	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for env := range c.send {
		if err := c.conn.WriteJSON(env); err != nil {
			// Transport failure: the session is gone, take it out of
			// the room. Unregister closes the send channel.
			c.hub.log.Warn("write failed", "id", c.ID, "err", err)
			c.hub.Unregister(c.ID)
			return
		}
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.send)
	})
}
