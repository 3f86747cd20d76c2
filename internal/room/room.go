// Package room defines the peer-mesh abstraction a chat session runs on.
//
// A Transport creates Rooms. A Room joins every participant that opened a
// room with the same Config.Key, reports peers joining and leaving, and
// carries named Channels that broadcast or unicast opaque payloads over the
// mesh. Handlers are installed before Open; implementations must deliver
// callbacks for a given peer in the order they happened.
package room

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/zeebo/blake3"
)

// MaxChannelNameLen bounds channel names on the wire.
const MaxChannelNameLen = 12

var (
	ErrChannelName   = errors.New("invalid channel name")
	ErrChannelExists = errors.New("channel already open")
	ErrClosed        = errors.New("room closed")
	ErrNotOpen       = errors.New("room not open")
)

// Config is handed to a Transport when a room is created. Password is
// opaque to callers; transports decide what to do with it.
type Config struct {
	AppID    string
	Topic    string
	Password string
}

// Key is the rendezvous key participants meet under.
func (c Config) Key() string {
	sum := blake3.Sum256([]byte(c.AppID + "\x00" + c.Topic))
	return hex.EncodeToString(sum[:16])
}

// Handler receives a payload and the id of the peer that sent it.
type Handler func(data []byte, peerID string)

type Transport interface {
	// SelfID is stable for the lifetime of the transport.
	SelfID() string
	NewRoom(cfg Config) (Room, error)
}

type Room interface {
	OnPeerJoin(fn func(peerID string))
	OnPeerLeave(fn func(peerID string))
	OpenChannel(name string) (Channel, error)
	Open(ctx context.Context) error
	Close() error
}

type Channel interface {
	Name() string
	// Send broadcasts to every connected peer, or only to peerIDs when given.
	Send(ctx context.Context, data []byte, peerIDs ...string) error
	OnReceive(fn Handler)
}

func ValidateChannelName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrChannelName)
	}
	if len(name) > MaxChannelNameLen {
		return fmt.Errorf("%w: %q is %d bytes, max %d", ErrChannelName, name, len(name), MaxChannelNameLen)
	}
	return nil
}
