package server

import (
	"github.com/gophergala/gogala/internal/hub"
	"github.com/gophergala/gogala/internal/protocol"
)

// dispatch routes one inbound envelope by kind. Unknown kinds and
// server-originated kinds arriving from a client are dropped without
// side effect.
func (s *Server) dispatch(c *hub.Client, env protocol.Envelope) {
	switch env.Kind {
	case protocol.KindFormat:
		s.handleFormat(c, env)

	case protocol.KindUpdate:
		// Last write wins. The sender already has this text; everyone
		// else learns about it, tagged with the author. Apply and
		// fan-out are one atomic step in the hub.
		s.hub.ApplyAndBroadcast(protocol.Envelope{
			Id:   c.ID,
			Kind: protocol.KindUpdate,
			Body: env.Body,
			Args: []string{c.ID},
		}, c.ID)

	case protocol.KindCode:
		// Canonical full replacement: echoed to the sender too, so it
		// wins over any local draft.
		s.hub.ApplyAndBroadcast(protocol.Envelope{
			Id:   c.ID,
			Kind: protocol.KindCode,
			Body: env.Body,
			Args: []string{c.ID},
		}, "")

	case protocol.KindCompile, protocol.KindRun:
		s.runner.Submit(c.Context(), c.ID, env.Body)

	case protocol.KindSave:
		s.handleSave(c, env)

	case protocol.KindChat:
		s.hub.Broadcast(protocol.Envelope{
			Id:   c.ID,
			Kind: protocol.KindChat,
			Body: env.Body,
			Args: []string{c.ID},
		}, "")

	default:
		if env.Kind.Known() {
			s.log.Debug("dropping server-originated kind from client", "kind", env.Kind, "id", c.ID)
		} else {
			s.log.Debug("dropping unknown kind", "kind", env.Kind, "id", c.ID)
		}
	}
}

func (s *Server) handleFormat(c *hub.Client, env protocol.Envelope) {
	out, err := s.formatter.Format(env.Body)
	if err != nil {
		// The diagnostic goes back to the requester; the room never
		// sees a failed format.
		s.hub.SendTo(c.ID, protocol.Envelope{Kind: protocol.KindError, Body: err.Error()})
		return
	}
	s.hub.SendTo(c.ID, protocol.Envelope{Id: c.ID, Kind: protocol.KindCode, Body: out})
}

func (s *Server) handleSave(c *hub.Client, env protocol.Envelope) {
	// The store is an external HTTP or database round trip; keep it off
	// the read loop so a slow save cannot stall this session's other
	// traffic.
	go func() {
		ref, err := s.store.Save(c.Context(), env.Body)
		if err != nil {
			if c.Context().Err() != nil {
				return
			}
			s.log.Error("save failed", "id", c.ID, "err", err)
			s.hub.SendTo(c.ID, protocol.Envelope{Kind: protocol.KindError, Body: "save failed"})
			return
		}
		s.hub.SendTo(c.ID, protocol.Envelope{
			Kind: protocol.KindGist,
			Body: ref.URL,
			Args: []string{ref.ID},
		})
	}()
}
