// Package protocol defines the wire envelope exchanged with editor
// clients over the websocket, and the set of message kinds the server
// understands.
//
// Every frame is a single JSON object with the fields Id, Kind, Body
// and Args. Kind selects the handler; unknown kinds are tolerated and
// dropped by the dispatcher so that newer clients can talk to older
// servers. Body is an opaque text payload (buffer contents, chat text,
// program output). Args carries ordered string metadata, most commonly
// the originating session id in Args[0].
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind discriminates envelope handling.
type Kind string

// Kinds accepted from clients.
const (
	KindFormat  Kind = "format"  // reformat Body, reply to sender as code
	KindUpdate  Kind = "update"  // buffer edit, broadcast to others
	KindCode    Kind = "code"    // full buffer replacement, broadcast to all
	KindCompile Kind = "compile" // submit Body for execution
	KindRun     Kind = "run"     // alias of compile kept for older clients
	KindSave    Kind = "save"    // persist Body, reply with a gist reference
	KindChat    Kind = "chat"    // chat text, broadcast to all
)

// Kinds the server originates. A client sending one of these is
// ignored.
const (
	KindInfo   Kind = "info"
	KindError  Kind = "error"
	KindStdout Kind = "stdout"
	KindStderr Kind = "stderr"
	KindGist   Kind = "gist"
	KindLeave  Kind = "leave"
)

// ErrMalformedEnvelope reports a frame that could not be decoded. The
// connection survives it; the frame is logged and skipped.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// Envelope is the unit exchanged on every connection. Field names
// double as the wire names: frames carry Go-style capitalized JSON
// keys.
type Envelope struct {
	Id   string   // session identity of the author, empty for server notices
	Kind Kind     // never empty on a valid envelope
	Body string   // may be empty for pure notifications
	Args []string `json:",omitempty"`
}

// ClientOriginated reports whether k is a kind the server accepts as
// input. Server-only kinds received from a client are dropped by the
// dispatcher.
func (k Kind) ClientOriginated() bool {
	switch k {
	case KindFormat, KindUpdate, KindCode, KindCompile, KindRun, KindSave, KindChat:
		return true
	}
	return false
}

// Known reports whether k is any kind this server version understands,
// in either direction.
func (k Kind) Known() bool {
	switch k {
	case KindInfo, KindError, KindStdout, KindStderr, KindGist, KindLeave:
		return true
	}
	return k.ClientOriginated()
}

// Decode parses a wire frame. It returns ErrMalformedEnvelope (wrapped)
// if the payload is not a JSON object or Kind is missing.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Kind == "" {
		return Envelope{}, fmt.Errorf("%w: missing kind", ErrMalformedEnvelope)
	}
	return env, nil
}

// Encode serializes an envelope. Encoding is total: an in-memory
// envelope holds only strings and always marshals.
func Encode(env Envelope) []byte {
	data, err := json.Marshal(env)
	if err != nil {
		// Unreachable for a struct of strings.
		panic(err)
	}
	return data
}

func (e Envelope) String() string {
	return string(e.Kind) + "\n" + e.Body + "\n"
}
