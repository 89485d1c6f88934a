package gist

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGitHubSave(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/gists", r.URL.Path)
		require.Equal(t, "Bearer sekrit", r.Header.Get("Authorization"))

		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var payload gistPayload
		require.NoError(t, json.Unmarshal(data, &payload))
		assert.True(t, payload.Public)
		assert.Equal(t, "package main", payload.Files[gistFilename].Content)

		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id":"abc123","html_url":"https://gist.github.com/abc123"}`)
	}))
	defer srv.Close()

	store := NewGitHubAt(srv.URL, "sekrit")
	ref, err := store.Save(context.Background(), "package main")
	require.NoError(t, err)
	assert.Equal(t, "abc123", ref.ID)
	assert.Equal(t, "https://gist.github.com/abc123", ref.URL)
}

func TestGitHubSaveAnonymous(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id":"x","html_url":"u"}`)
	}))
	defer srv.Close()

	_, err := NewGitHubAt(srv.URL, "").Save(context.Background(), "x")
	require.NoError(t, err)
}

func TestGitHubSaveClientErrorIsNotRetried(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := NewGitHubAt(srv.URL, "").Save(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, 1, hits)
}

// fakeDB implements querier over an in-memory map.
type fakeDB struct {
	rows map[string]string
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if len(args) == 2 {
		f.rows[args[0].(string)] = args[1].(string)
	}
	return pgconn.CommandTag{}, nil
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	body, ok := f.rows[args[0].(string)]
	return fakeRow{body: body, ok: ok}
}

type fakeRow struct {
	body string
	ok   bool
}

func (r fakeRow) Scan(dest ...any) error {
	if !r.ok {
		return pgx.ErrNoRows
	}
	*dest[0].(*string) = r.body
	return nil
}

func TestPostgresSaveAndGet(t *testing.T) {
	store := &Postgres{db: &fakeDB{rows: make(map[string]string)}}

	ref, err := store.Save(context.Background(), "package main")
	require.NoError(t, err)
	assert.NotEmpty(t, ref.ID)
	assert.Equal(t, "/snippets/"+ref.ID, ref.URL)

	body, err := store.Get(context.Background(), ref.ID)
	require.NoError(t, err)
	assert.Equal(t, "package main", body)
}

func TestPostgresGetNotFound(t *testing.T) {
	store := &Postgres{db: &fakeDB{rows: make(map[string]string)}}
	_, err := store.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}
