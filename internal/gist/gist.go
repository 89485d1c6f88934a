// Package gist persists buffer snapshots on behalf of save messages
// and hands back a retrievable reference. Two backends: GitHub gists
// (the default) and Postgres.
package gist

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get for an unknown snippet id.
var ErrNotFound = errors.New("snippet not found")

// Ref points at a persisted snippet. URL is what the requesting
// session is shown; ID is the raw store identifier.
type Ref struct {
	ID  string
	URL string
}

// Store persists one snippet and returns its reference.
type Store interface {
	Save(ctx context.Context, content string) (Ref, error)
}
