package gist

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS snippets (
	id         text PRIMARY KEY,
	body       text NOT NULL,
	created_at timestamptz NOT NULL DEFAULT now()
)`

// querier is the slice of pgxpool.Pool the store needs. Tests
// substitute a fake.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres stores snippets in a snippets table and serves them back
// through the /snippets/{id} endpoint.
type Postgres struct {
	db querier
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{db: pool}
}

// EnsureSchema creates the snippets table if it does not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.db.Exec(ctx, schema)
	return err
}

func (p *Postgres) Save(ctx context.Context, content string) (Ref, error) {
	id := uuid.NewString()
	_, err := p.db.Exec(ctx, `INSERT INTO snippets (id, body) VALUES ($1, $2)`, id, content)
	if err != nil {
		return Ref{}, fmt.Errorf("save snippet: %w", err)
	}
	return Ref{ID: id, URL: "/snippets/" + id}, nil
}

// Get returns the stored snippet body, or ErrNotFound.
func (p *Postgres) Get(ctx context.Context, id string) (string, error) {
	var body string
	err := p.db.QueryRow(ctx, `SELECT body FROM snippets WHERE id = $1`, id).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get snippet: %w", err)
	}
	return body, nil
}
