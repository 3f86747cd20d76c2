package room

import (
	"context"
	"fmt"
	"sync"

	"github.com/rudransh-shrivastava/peer-chat/internal/codec"
)

// Frame is the envelope channel payloads travel in between peers.
type Frame struct {
	Channel string `cbor:"c"`
	Data    []byte `cbor:"d"`
}

func EncodeFrame(channel string, data []byte) ([]byte, error) {
	return codec.Marshal(Frame{Channel: channel, Data: data})
}

func DecodeFrame(b []byte) (Frame, error) {
	var f Frame
	if err := codec.Unmarshal(b, &f); err != nil {
		return Frame{}, fmt.Errorf("decoding frame: %w", err)
	}
	return f, nil
}

// SendFunc delivers one channel payload; an empty peerIDs means broadcast.
type SendFunc func(ctx context.Context, channel string, data []byte, peerIDs []string) error

// Actions routes inbound payloads to the handler of the channel they name.
type Actions struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewActions() *Actions {
	return &Actions{handlers: make(map[string]Handler)}
}

func (a *Actions) Register(name string) error {
	if err := ValidateChannelName(name); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.handlers[name]; exists {
		return fmt.Errorf("%w: %s", ErrChannelExists, name)
	}
	a.handlers[name] = nil
	return nil
}

func (a *Actions) SetHandler(name string, fn Handler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers[name] = fn
}

// Dispatch reports whether a handler consumed the payload.
func (a *Actions) Dispatch(name string, data []byte, peerID string) bool {
	a.mu.RLock()
	fn := a.handlers[name]
	a.mu.RUnlock()

	if fn == nil {
		return false
	}
	fn(data, peerID)
	return true
}

type channel struct {
	name    string
	actions *Actions
	send    SendFunc
}

// NewChannel builds a Channel whose receive side is routed by actions and
// whose send side is delegated to send.
func NewChannel(name string, actions *Actions, send SendFunc) Channel {
	return &channel{name: name, actions: actions, send: send}
}

func (c *channel) Name() string {
	return c.name
}

func (c *channel) Send(ctx context.Context, data []byte, peerIDs ...string) error {
	return c.send(ctx, c.name, data, peerIDs)
}

func (c *channel) OnReceive(fn Handler) {
	c.actions.SetHandler(c.name, fn)
}
