package compile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gophergala/gogala/internal/protocol"
)

// Sender unicasts an envelope to one session. Implemented by the hub.
type Sender interface {
	SendTo(id string, env protocol.Envelope) error
}

// Backend runs a source snapshot and returns its output. Implemented
// by Client; tests substitute a fake.
type Backend interface {
	Run(ctx context.Context, source string) (Response, error)
}

// Coordinator pairs execution output with the session that submitted
// the source. Submissions from different sessions run independently;
// within one submission events are delivered in order.
type Coordinator struct {
	backend Backend
	sender  Sender
	log     *slog.Logger
	wg      sync.WaitGroup
}

func NewCoordinator(backend Backend, sender Sender, log *slog.Logger) *Coordinator {
	return &Coordinator{
		backend: backend,
		sender:  sender,
		log:     log.With("component", "compile"),
	}
}

// Submit hands source to the backend and streams the results back to
// session id, each event as a stdout/stderr envelope and a compile
// failure as a single error envelope. Fire-and-forget: ctx should be
// the session context so a disconnect cancels the submission. Output
// for a session that has since left is dropped.
func (c *Coordinator) Submit(ctx context.Context, id, source string) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.deliver(ctx, id, source)
	}()
}

// Wait blocks until all in-flight submissions have finished.
func (c *Coordinator) Wait() { c.wg.Wait() }

func (c *Coordinator) deliver(ctx context.Context, id, source string) {
	resp, err := c.backend.Run(ctx, source)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.log.Error("backend run failed", "id", id, "err", err)
		c.send(id, protocol.Envelope{Kind: protocol.KindError, Body: "compile service unavailable"})
		return
	}
	if resp.Errors != "" {
		c.send(id, protocol.Envelope{Kind: protocol.KindError, Body: resp.Errors})
		return
	}
	for _, ev := range resp.Events {
		if ev.Delay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(ev.Delay):
			}
		}
		kind := protocol.KindStdout
		if ev.Kind == "stderr" {
			kind = protocol.KindStderr
		}
		if !c.send(id, protocol.Envelope{Kind: kind, Body: ev.Message}) {
			return
		}
	}
}

func (c *Coordinator) send(id string, env protocol.Envelope) bool {
	if err := c.sender.SendTo(id, env); err != nil {
		// Session left before its output arrived.
		c.log.Debug("dropping output for departed session", "id", id)
		return false
	}
	return true
}
