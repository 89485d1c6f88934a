// Package server exposes the websocket endpoint and dispatches
// incoming envelopes to the hub, formatter, snippet store and
// execution coordinator.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/gophergala/gogala/internal/format"
	"github.com/gophergala/gogala/internal/gist"
	"github.com/gophergala/gogala/internal/hub"
	"github.com/gophergala/gogala/internal/protocol"
)

// Runner submits a buffer snapshot for execution on behalf of a
// session. Implemented by compile.Coordinator.
type Runner interface {
	Submit(ctx context.Context, id, source string)
}

// SnippetReader serves persisted snippets over HTTP. Implemented by
// gist.Postgres; nil when the GitHub store is in use.
type SnippetReader interface {
	Get(ctx context.Context, id string) (string, error)
}

type Server struct {
	hub       *hub.Hub
	formatter format.Formatter
	store     gist.Store
	runner    Runner
	snippets  SnippetReader
	upgrader  websocket.Upgrader
	log       *slog.Logger
}

func New(h *hub.Hub, f format.Formatter, store gist.Store, runner Runner, log *slog.Logger) *Server {
	return &Server{
		hub:       h,
		formatter: f,
		store:     store,
		runner:    runner,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log.With("component", "server"),
	}
}

// SetSnippetReader enables the /snippets/{id} endpoint.
func (s *Server) SetSnippetReader(r SnippetReader) { s.snippets = r }

func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.handleWS)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.snippets != nil {
		r.HandleFunc("/snippets/{id}", s.handleSnippet).Methods(http.MethodGet)
	}
	return r
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "err", err)
		return
	}

	client := s.hub.Register(conn)
	defer s.hub.Unregister(client.ID)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := protocol.Decode(data)
		if err != nil {
			// One bad frame does not cost the connection.
			s.log.Warn("dropping malformed frame", "id", client.ID, "err", err)
			continue
		}
		s.dispatch(client, env)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"sessions": s.hub.Count(),
	})
}

func (s *Server) handleSnippet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	body, err := s.snippets.Get(r.Context(), id)
	if errors.Is(err, gist.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.log.Error("snippet lookup failed", "id", id, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(body))
}
