package compile

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gophergala/gogala/internal/protocol"
)

const okResponse = `{"Errors":"","Events":[{"Message":"42\n","Kind":"stdout","Delay":0}]}`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClientRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/compile", r.URL.Path)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "2", r.FormValue("version"))
		require.Equal(t, "package main", r.FormValue("body"))
		io.WriteString(w, okResponse)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	resp, err := c.Run(context.Background(), "package main")
	require.NoError(t, err)
	assert.Empty(t, resp.Errors)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "42\n", resp.Events[0].Message)
	assert.Equal(t, "stdout", resp.Events[0].Kind)
}

func TestClientRunCachesBySource(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		io.WriteString(w, okResponse)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	for i := 0; i < 3; i++ {
		_, err := c.Run(context.Background(), "package main")
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), hits.Load())

	_, err := c.Run(context.Background(), "package other")
	require.NoError(t, err)
	assert.Equal(t, int64(2), hits.Load())
}

func TestClientRunRetriesServerErrors(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		io.WriteString(w, okResponse)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	resp, err := c.Run(context.Background(), "package main")
	require.NoError(t, err)
	assert.Len(t, resp.Events, 1)
	assert.Equal(t, int64(2), hits.Load())
}

func TestClientRunCompileErrorIsNotATransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"Errors":"prog.go:1: syntax error","Events":null}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	resp, err := c.Run(context.Background(), "packag main")
	require.NoError(t, err)
	assert.Equal(t, "prog.go:1: syntax error", resp.Errors)
}

// recordingSender captures unicasts per session id.
type recordingSender struct {
	mu   sync.Mutex
	sent map[string][]protocol.Envelope
	gone map[string]bool
}

func newRecordingSender() *recordingSender {
	return &recordingSender{sent: make(map[string][]protocol.Envelope), gone: make(map[string]bool)}
}

func (s *recordingSender) SendTo(id string, env protocol.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gone[id] {
		return errUnknown
	}
	s.sent[id] = append(s.sent[id], env)
	return nil
}

func (s *recordingSender) envelopes(id string) []protocol.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.Envelope, len(s.sent[id]))
	copy(out, s.sent[id])
	return out
}

var errUnknown = hubErr("unknown recipient")

type hubErr string

func (e hubErr) Error() string { return string(e) }

type fakeBackend struct {
	resp Response
	err  error
}

func (f *fakeBackend) Run(ctx context.Context, source string) (Response, error) {
	return f.resp, f.err
}

func TestCoordinatorUnicastsOutputInOrder(t *testing.T) {
	backend := &fakeBackend{resp: Response{Events: []Event{
		{Message: "42\n", Kind: "stdout"},
		{Message: "warning\n", Kind: "stderr"},
		{Message: "done\n", Kind: "stdout"},
	}}}
	sender := newRecordingSender()
	co := NewCoordinator(backend, sender, testLogger())

	co.Submit(context.Background(), "x", "package main")
	co.Wait()

	envs := sender.envelopes("x")
	require.Len(t, envs, 3)
	assert.Equal(t, protocol.KindStdout, envs[0].Kind)
	assert.Equal(t, "42\n", envs[0].Body)
	assert.Equal(t, protocol.KindStderr, envs[1].Kind)
	assert.Equal(t, protocol.KindStdout, envs[2].Kind)
	assert.Empty(t, sender.envelopes("y"), "output must reach the requester only")
}

func TestCoordinatorCompileFailure(t *testing.T) {
	backend := &fakeBackend{resp: Response{Errors: "prog.go:3: undefined: x"}}
	sender := newRecordingSender()
	co := NewCoordinator(backend, sender, testLogger())

	co.Submit(context.Background(), "x", "bad")
	co.Wait()

	envs := sender.envelopes("x")
	require.Len(t, envs, 1)
	assert.Equal(t, protocol.KindError, envs[0].Kind)
	assert.Equal(t, "prog.go:3: undefined: x", envs[0].Body)
}

func TestCoordinatorDropsOutputForDepartedSession(t *testing.T) {
	backend := &fakeBackend{resp: Response{Events: []Event{{Message: "42\n", Kind: "stdout"}}}}
	sender := newRecordingSender()
	sender.gone["x"] = true
	co := NewCoordinator(backend, sender, testLogger())

	co.Submit(context.Background(), "x", "package main")
	co.Wait()

	assert.Empty(t, sender.envelopes("x"))
}

func TestCoordinatorCancelledSubmission(t *testing.T) {
	backend := &fakeBackend{resp: Response{Events: []Event{
		{Message: "later\n", Kind: "stdout", Delay: time.Minute},
	}}}
	sender := newRecordingSender()
	co := NewCoordinator(backend, sender, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	co.Submit(ctx, "x", "package main")
	cancel()

	done := make(chan struct{})
	go func() {
		co.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("submission did not observe cancellation")
	}
	assert.Empty(t, sender.envelopes("x"))
}
