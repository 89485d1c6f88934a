package gist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
)

const (
	defaultAPIURL = "https://api.github.com"
	gistFilename  = "src.go"
)

type gistPayload struct {
	Description string              `json:"description"`
	Public      bool                `json:"public"`
	Files       map[string]gistFile `json:"files"`
}

type gistFile struct {
	Content string `json:"content"`
}

// GitHub stores snippets as public gists. An empty token works against
// the API anonymously, with the usual rate limits.
type GitHub struct {
	apiURL string
	token  string
	httpc  *http.Client
}

func NewGitHub(token string) *GitHub {
	return &GitHub{
		apiURL: defaultAPIURL,
		token:  token,
		httpc:  &http.Client{Timeout: 15 * time.Second},
	}
}

// NewGitHubAt is NewGitHub against a different API base URL. Used by
// tests.
func NewGitHubAt(apiURL, token string) *GitHub {
	g := NewGitHub(token)
	g.apiURL = strings.TrimRight(apiURL, "/")
	return g
}

func (g *GitHub) Save(ctx context.Context, content string) (Ref, error) {
	payload, err := json.Marshal(gistPayload{
		Description: "Shared from gogala",
		Public:      true,
		Files:       map[string]gistFile{gistFilename: {Content: content}},
	})
	if err != nil {
		return Ref{}, err
	}

	var ref Ref
	op := func() error {
		var err error
		ref, err = g.post(ctx, payload)
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return Ref{}, err
	}
	return ref, nil
}

func (g *GitHub) post(ctx context.Context, payload []byte) (Ref, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiURL+"/gists", bytes.NewReader(payload))
	if err != nil {
		return Ref{}, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/vnd.github+json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	res, err := g.httpc.Do(req)
	if err != nil {
		return Ref{}, err
	}
	defer res.Body.Close()

	if res.StatusCode >= 500 {
		return Ref{}, fmt.Errorf("gist api: %s", res.Status)
	}
	if res.StatusCode != http.StatusCreated {
		return Ref{}, backoff.Permanent(fmt.Errorf("gist api: %s", res.Status))
	}

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return Ref{}, err
	}
	var created struct {
		ID      string `json:"id"`
		HTMLURL string `json:"html_url"`
	}
	if err := json.Unmarshal(data, &created); err != nil {
		return Ref{}, backoff.Permanent(fmt.Errorf("decode gist response: %w", err))
	}
	return Ref{ID: created.ID, URL: created.HTMLURL}, nil
}
