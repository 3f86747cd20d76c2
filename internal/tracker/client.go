package tracker

import (
	"context"
	"errors"
	"fmt"

	"github.com/rudransh-shrivastava/peer-chat/internal/protocol"
	"github.com/rudransh-shrivastava/peer-chat/internal/transport"
)

var (
	ErrNotJoined         = errors.New("not joined to a topic")
	ErrUnexpectedMessage = errors.New("unexpected message from tracker")
)

// Client is one peer's connection to a tracker. Ping and Join read the
// answer themselves, so they must not run concurrently with Receive.
type Client struct {
	transport *transport.Transport
	peer      *transport.Peer
	peerID    string
	topic     string
}

func Dial(ctx context.Context, addr string) (*Client, error) {
	tr, err := transport.NewTransport(":0")
	if err != nil {
		return nil, err
	}

	peer, err := tr.Dial(ctx, addr)
	if err != nil {
		_ = tr.Close()
		return nil, fmt.Errorf("connecting to tracker: %w", err)
	}
	return &Client{transport: tr, peer: peer}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	if err := c.peer.Send(ctx, &protocol.Ping{}); err != nil {
		return err
	}
	msg, err := c.peer.Receive(ctx)
	if err != nil {
		return err
	}
	if _, ok := msg.(*protocol.Pong); !ok {
		return fmt.Errorf("%w: %s", ErrUnexpectedMessage, msg.Type())
	}
	return nil
}

// Join enters topic as peerID and returns the peers already present.
func (c *Client) Join(ctx context.Context, topic, peerID string) ([]string, error) {
	if err := c.peer.Send(ctx, &protocol.Join{PeerID: peerID, Topic: topic}); err != nil {
		return nil, err
	}

	msg, err := c.peer.Receive(ctx)
	if err != nil {
		return nil, err
	}

	switch msg := msg.(type) {
	case *protocol.Welcome:
		c.peerID = peerID
		c.topic = topic
		return msg.Peers, nil
	case *protocol.Error:
		return nil, AsError(msg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedMessage, msg.Type())
	}
}

func (c *Client) Signal(ctx context.Context, to string, payload []byte) error {
	if c.topic == "" {
		return ErrNotJoined
	}
	return c.peer.Send(ctx, &protocol.Signal{From: c.peerID, To: to, Payload: payload})
}

// Receive returns the next PeerJoined, PeerLeft, Signal or Error message.
func (c *Client) Receive(ctx context.Context) (protocol.Message, error) {
	return c.peer.Receive(ctx)
}

// Done is closed when the tracker connection is lost.
func (c *Client) Done() <-chan struct{} {
	return c.peer.Done()
}

func (c *Client) Close() error {
	_ = c.peer.Close()
	return c.transport.Close()
}

// AsError maps a tracker error message onto this package's sentinels.
func AsError(msg *protocol.Error) error {
	switch msg.Code {
	case protocol.ErrDuplicatePeer:
		return fmt.Errorf("%w: %s", ErrDuplicatePeer, msg.Message)
	case protocol.ErrPeerNotFound:
		return fmt.Errorf("%w: %s", ErrPeerNotFound, msg.Message)
	case protocol.ErrNotJoined:
		return fmt.Errorf("%w: %s", ErrNotJoined, msg.Message)
	default:
		return msg
	}
}
