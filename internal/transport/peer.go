package transport

import (
	"bufio"
	"context"
	"sync"

	"github.com/quic-go/quic-go"
	"github.com/rudransh-shrivastava/peer-chat/internal/protocol"
)

// Peer is one end of a QUIC connection. The dialing side opens the control
// stream on first use and the accepting side waits for it. Send may be
// called concurrently; Receive must be called from one goroutine.
type Peer struct {
	codec     *protocol.Codec
	conn      *quic.Conn
	initiator bool

	mu            sync.Mutex
	controlStream *quic.Stream
	reader        *bufio.Reader

	sendMu sync.Mutex
}

func newPeer(conn *quic.Conn, initiator bool) *Peer {
	return &Peer{
		codec:     protocol.NewCodec(),
		conn:      conn,
		initiator: initiator,
	}
}

func (p *Peer) Close() error {
	p.mu.Lock()
	if p.controlStream != nil {
		_ = p.controlStream.Close()
	}
	p.mu.Unlock()
	return p.conn.CloseWithError(0, "")
}

func (p *Peer) Receive(ctx context.Context) (protocol.Message, error) {
	if _, err := p.getControlStream(ctx); err != nil {
		return nil, err
	}
	return p.codec.Decode(p.reader)
}

func (p *Peer) RemoteAddr() string {
	return p.conn.RemoteAddr().String()
}

func (p *Peer) Send(ctx context.Context, msg protocol.Message) error {
	stream, err := p.getControlStream(ctx)
	if err != nil {
		return err
	}

	p.sendMu.Lock()
	defer p.sendMu.Unlock()
	return p.codec.Encode(stream, msg)
}

// Done is closed when the connection is gone.
func (p *Peer) Done() <-chan struct{} {
	return p.conn.Context().Done()
}

func (p *Peer) getControlStream(ctx context.Context) (*quic.Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.controlStream != nil {
		return p.controlStream, nil
	}

	var stream *quic.Stream
	var err error
	if p.initiator {
		stream, err = p.conn.OpenStreamSync(ctx)
	} else {
		stream, err = p.conn.AcceptStream(ctx)
	}
	if err != nil {
		return nil, err
	}
	p.controlStream = stream
	p.reader = bufio.NewReader(stream)
	return stream, nil
}
