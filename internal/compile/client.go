// Package compile submits buffer snapshots to the Go playground
// compile service and streams the resulting output events back to the
// session that asked for them.
package compile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	gocache "github.com/patrickmn/go-cache"
)

const defaultBaseURL = "https://play.golang.org"

// Event is one chunk of program output. Kind is "stdout" or "stderr";
// Delay is how long the playground sandbox waited before producing it.
type Event struct {
	Message string
	Kind    string
	Delay   time.Duration
}

// Response is the playground compile service's answer. Errors is
// nonempty on compile failure, in which case Events is empty.
type Response struct {
	Errors string
	Events []Event
}

// Client talks to a playground-compatible compile endpoint. Responses
// are cached by source hash: the service is deterministic for a given
// body, so identical submissions (a popular snippet re-run by several
// sessions) skip the round trip.
type Client struct {
	baseURL string
	httpc   *http.Client
	cache   *gocache.Cache
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 30 * time.Second},
		cache:   gocache.New(10*time.Minute, time.Minute),
	}
}

// Run submits source and returns the parsed response. Transient
// transport errors are retried with exponential backoff; a response
// with compile errors is a successful Run.
func (c *Client) Run(ctx context.Context, source string) (Response, error) {
	key := cacheKey(source)
	if v, ok := c.cache.Get(key); ok {
		return v.(Response), nil
	}

	var resp Response
	op := func() error {
		var err error
		resp, err = c.post(ctx, source)
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return Response{}, err
	}

	c.cache.Set(key, resp, gocache.DefaultExpiration)
	return resp, nil
}

func (c *Client) post(ctx context.Context, source string) (Response, error) {
	form := url.Values{"version": {"2"}, "body": {source}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/compile", strings.NewReader(form.Encode()))
	if err != nil {
		return Response{}, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.httpc.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer res.Body.Close()

	if res.StatusCode >= 500 {
		return Response{}, fmt.Errorf("compile service: %s", res.Status)
	}
	if res.StatusCode != http.StatusOK {
		return Response{}, backoff.Permanent(fmt.Errorf("compile service: %s", res.Status))
	}

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return Response{}, err
	}
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return Response{}, backoff.Permanent(fmt.Errorf("decode compile response: %w", err))
	}
	return resp, nil
}

func cacheKey(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}
