// Package broker carries realtime room traffic between server instances.
// Every instance, including the publisher, receives each envelope through
// its subscription and delivers it to the sockets it holds locally.
package broker

import (
	"context"
	"encoding/json"
	"errors"
)

var ErrClosed = errors.New("broker closed")

type Kind string

const (
	// KindEmit delivers Event/Data to every local member of Room except Except.
	KindEmit Kind = "emit"
	// KindJoin subscribes the local connections of Users to Room.
	KindJoin Kind = "join"
	// KindDrop removes Room and all its memberships.
	KindDrop Kind = "drop"
)

type Envelope struct {
	Kind   Kind            `json:"kind"`
	Room   string          `json:"room"`
	Event  string          `json:"event,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	Except []string        `json:"except,omitempty"`
	Users  []string        `json:"users,omitempty"`
}

// Broker is a best-effort fan-out bus. No acknowledgement, no replay.
type Broker interface {
	Publish(ctx context.Context, env Envelope) error
	// Subscribe returns a channel that is closed when ctx ends or the broker closes.
	Subscribe(ctx context.Context) (<-chan Envelope, error)
	Close() error
}
