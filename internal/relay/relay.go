// Package relay fans broadcasts out to sibling server instances over a
// Redis pub/sub channel, so that sessions connected to different
// instances share one room.
package relay

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/gophergala/gogala/internal/protocol"
)

const defaultChannel = "gogala:room"

// message is the relay wire format. Origin identifies the publishing
// instance so a node skips its own publications; Exclude carries the
// broadcast's excluded session id across instances (session ids are
// globally unique).
type message struct {
	Origin  string            `json:"origin"`
	Exclude string            `json:"exclude,omitempty"`
	Env     protocol.Envelope `json:"env"`
}

// Room receives envelopes published by other instances. Implemented by
// the hub's Inject.
type Room interface {
	Inject(env protocol.Envelope, exclude string)
}

// Redis is a relay over one Redis pub/sub channel. ctx is the server's
// run context: publishes stop cleanly once it is cancelled at
// shutdown.
type Redis struct {
	ctx     context.Context
	rdb     *redis.Client
	channel string
	origin  string
	log     *slog.Logger
}

func NewRedis(ctx context.Context, rdb *redis.Client, channel string, log *slog.Logger) *Redis {
	if channel == "" {
		channel = defaultChannel
	}
	return &Redis{
		ctx:     ctx,
		rdb:     rdb,
		channel: channel,
		origin:  uuid.NewString(),
		log:     log.With("component", "relay"),
	}
}

// Publish mirrors a local broadcast to the other instances.
func (r *Redis) Publish(env protocol.Envelope, exclude string) error {
	data, err := json.Marshal(message{Origin: r.origin, Exclude: exclude, Env: env})
	if err != nil {
		return err
	}
	return r.rdb.Publish(r.ctx, r.channel, data).Err()
}

// Run subscribes to the channel and injects remote envelopes into room
// until ctx is cancelled.
func (r *Redis) Run(ctx context.Context, room Room) error {
	pubsub := r.rdb.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			env, exclude, ok := r.decode([]byte(msg.Payload))
			if !ok {
				continue
			}
			room.Inject(env, exclude)
		}
	}
}

// decode parses a relay payload, reporting false for malformed frames
// and for this instance's own publications.
func (r *Redis) decode(payload []byte) (protocol.Envelope, string, bool) {
	var m message
	if err := json.Unmarshal(payload, &m); err != nil {
		r.log.Warn("malformed relay payload", "err", err)
		return protocol.Envelope{}, "", false
	}
	if m.Origin == r.origin {
		return protocol.Envelope{}, "", false
	}
	return m.Env, m.Exclude, true
}
