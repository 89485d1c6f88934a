// Package hub tracks the live editor sessions of the shared room and
// owns the authoritative buffer. It is the only place sessions are
// added or removed, and the only place the buffer is replaced.
package hub

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/gophergala/gogala/internal/protocol"
)

// ErrUnknownRecipient is returned by SendTo when the target session is
// not live. Callers treat it as non-fatal: the peer simply left.
var ErrUnknownRecipient = errors.New("unknown recipient")

// Relay republishes broadcasts to sibling server instances. Optional;
// a nil relay keeps the room single-instance.
type Relay interface {
	Publish(env protocol.Envelope, exclude string) error
}

// Hub is the session registry and shared buffer for the single room.
// All methods are safe for concurrent use.
type Hub struct {
	mu      sync.Mutex
	clients map[string]*Client
	buffer  string
	relay   Relay
	log     *slog.Logger
}

func New(log *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		log:     log.With("component", "hub"),
	}
}

// SetRelay attaches a cross-instance relay. Call before serving
// connections.
func (h *Hub) SetRelay(r Relay) { h.relay = r }

// Register adds a new session for conn, assigns it a fresh identity
// and starts its writer. The new session is told its identity via an
// info envelope (identity in Args[0]) and caught up with the current
// buffer; the rest of the room gets a join notice.
func (h *Hub) Register(conn Conn) *Client {
	c := newClient(h, conn)
	h.mu.Lock()
	h.clients[c.ID] = c
	// Queue the identity notice and buffer catch-up before anything
	// else can reach this session.
	c.deliver(protocol.Envelope{Kind: protocol.KindInfo, Body: "connected", Args: []string{c.ID}})
	if h.buffer != "" {
		c.deliver(protocol.Envelope{Kind: protocol.KindCode, Body: h.buffer})
	}
	h.mu.Unlock()

	go c.writePump()
	h.Broadcast(protocol.Envelope{Kind: protocol.KindInfo, Body: c.ID + " joined the session"}, c.ID)
	h.log.Info("session registered", "id", c.ID, "sessions", h.Count())
	return c
}

// Unregister removes a session and notifies the rest of the room.
// Idempotent: unknown ids are a no-op. Exactly one leave notice is
// broadcast per departure.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	c.close()
	h.log.Info("session unregistered", "id", id, "sessions", h.Count())
	h.Broadcast(protocol.Envelope{Kind: protocol.KindLeave, Body: id + " left the session", Args: []string{id}}, "")
}

// Broadcast delivers env to every live session except exclude (empty
// string excludes nobody) and mirrors it to the relay when one is
// attached. A session whose outbound queue is full is dropped from the
// room rather than allowed to stall the others.
func (h *Hub) Broadcast(env protocol.Envelope, exclude string) {
	h.mu.Lock()
	dead := h.deliverLocked(env, exclude)
	h.mu.Unlock()
	h.reap(dead)
	h.publish(env, exclude)
}

// ApplyAndBroadcast replaces the shared buffer with env.Body and fans
// env out, as one atomic step: no other apply or broadcast can
// interleave between the two, so the fan-out order always matches the
// apply order and the room converges on the same body the buffer
// holds. Returns the accepted body.
func (h *Hub) ApplyAndBroadcast(env protocol.Envelope, exclude string) string {
	h.mu.Lock()
	h.buffer = env.Body
	dead := h.deliverLocked(env, exclude)
	h.mu.Unlock()
	h.reap(dead)
	h.publish(env, exclude)
	return env.Body
}

// Inject fans out an envelope received from the relay to local
// sessions, without republishing it. Buffer-bearing kinds apply to the
// local buffer first, so late joiners on this instance catch up with
// edits made on the others.
func (h *Hub) Inject(env protocol.Envelope, exclude string) {
	h.mu.Lock()
	if env.Kind == protocol.KindUpdate || env.Kind == protocol.KindCode {
		h.buffer = env.Body
	}
	dead := h.deliverLocked(env, exclude)
	h.mu.Unlock()
	h.reap(dead)
}

// deliverLocked queues env for every live session except exclude and
// returns the sessions whose queues were full. Callers hold h.mu;
// deliver is non-blocking so the hold is brief.
func (h *Hub) deliverLocked(env protocol.Envelope, exclude string) []*Client {
	var dead []*Client
	for id, c := range h.clients {
		if id == exclude {
			continue
		}
		if !c.deliver(env) {
			dead = append(dead, c)
		}
	}
	return dead
}

func (h *Hub) reap(dead []*Client) {
	for _, c := range dead {
		h.log.Warn("dropping slow session", "id", c.ID)
		h.Unregister(c.ID)
	}
}

func (h *Hub) publish(env protocol.Envelope, exclude string) {
	if h.relay == nil {
		return
	}
	if err := h.relay.Publish(env, exclude); err != nil {
		h.log.Warn("relay publish failed", "err", err)
	}
}

// SendTo unicasts env to one session. Returns ErrUnknownRecipient if
// the identity is not live.
func (h *Hub) SendTo(id string, env protocol.Envelope) error {
	h.mu.Lock()
	c, ok := h.clients[id]
	full := ok && !c.deliver(env)
	h.mu.Unlock()
	if !ok {
		return ErrUnknownRecipient
	}
	if full {
		h.log.Warn("dropping slow session", "id", id)
		h.Unregister(id)
	}
	return nil
}

// SetBuffer replaces the shared buffer and returns the accepted value.
// Last write wins; the replace is atomic with respect to Broadcast.
func (h *Hub) SetBuffer(body string) string {
	h.mu.Lock()
	h.buffer = body
	h.mu.Unlock()
	return body
}

// Buffer returns the current authoritative buffer contents.
func (h *Hub) Buffer() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.buffer
}

// Count returns the number of live sessions.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
