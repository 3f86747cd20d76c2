// Package transport carries protocol messages between the tracker and its
// clients over QUIC. Each connection has one control stream holding a
// sequence of gob-encoded protocol.Message values.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/quic-go/quic-go"
)

var ErrNotListening = errors.New("transport is not listening")

type Transport struct {
	udpConn   *net.UDPConn
	quicTr    *quic.Transport
	listener  *quic.Listener
	closeOnce sync.Once
}

// NewTransport binds addr and accepts incoming connections on it. The same
// socket is used for outgoing dials.
func NewTransport(addr string) (*Transport, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", addr, err)
	}

	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("binding %s: %w", addr, err)
	}

	tlsConfig, err := serverTLSConfig()
	if err != nil {
		_ = udpConn.Close()
		return nil, err
	}

	quicTr := &quic.Transport{Conn: udpConn}
	listener, err := quicTr.Listen(tlsConfig, quicConfig())
	if err != nil {
		_ = udpConn.Close()
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}

	return &Transport{
		udpConn:  udpConn,
		quicTr:   quicTr,
		listener: listener,
	}, nil
}

func (t *Transport) Accept(ctx context.Context) (*Peer, error) {
	if t.listener == nil {
		return nil, ErrNotListening
	}
	conn, err := t.listener.Accept(ctx)
	if err != nil {
		return nil, err
	}
	return newPeer(conn, false), nil
}

func (t *Transport) Dial(ctx context.Context, addr string) (*Peer, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", addr, err)
	}

	conn, err := t.quicTr.Dial(ctx, udpAddr, clientTLSConfig(), quicConfig())
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	return newPeer(conn, true), nil
}

func (t *Transport) LocalAddr() net.Addr {
	return t.udpConn.LocalAddr()
}

func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		if t.listener != nil {
			_ = t.listener.Close()
		}
		err = t.quicTr.Close()
		_ = t.udpConn.Close()
	})
	return err
}
