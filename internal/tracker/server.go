// Package tracker is the rendezvous point of the WebRTC mesh. Peers join a
// topic over QUIC, learn who else is there and relay connection
// negotiation signals to each other through the server.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rudransh-shrivastava/peer-chat/internal/logger"
	"github.com/rudransh-shrivastava/peer-chat/internal/protocol"
	"github.com/rudransh-shrivastava/peer-chat/internal/transport"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Addr   string
	Logger *logrus.Logger
}

type Server struct {
	config    Config
	logger    *logrus.Logger
	transport *transport.Transport
	store     *Store
	closed    atomic.Bool
}

// member is the state of one joined connection.
type member struct {
	peer   *transport.Peer
	peerID string
	topic  string
}

func NewServer(cfg Config) (*Server, error) {
	tr, err := transport.NewTransport(cfg.Addr)
	if err != nil {
		return nil, err
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewLogger()
	}

	return &Server{
		config:    cfg,
		logger:    log,
		transport: tr,
		store:     NewStore(),
	}, nil
}

func (s *Server) Addr() string {
	return s.transport.LocalAddr().String()
}

func (s *Server) Shutdown() error {
	s.logger.Info("Shutting down tracker server")
	s.closed.Store(true)
	return s.transport.Close()
}

// Start accepts connections until ctx is done or the server is shut down.
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("addr", s.Addr()).Info("Tracker server started")

	for {
		peer, err := s.transport.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if s.closed.Load() {
				return nil
			}
			s.logger.WithError(err).Error("Failed to accept connection")
			continue
		}

		go s.handlePeer(ctx, peer)
	}
}

func (s *Server) handlePeer(ctx context.Context, peer *transport.Peer) {
	remoteAddr := peer.RemoteAddr()
	s.logger.WithField("addr", remoteAddr).Debug("Peer connected")

	var m *member
	defer func() {
		if m != nil {
			s.leave(ctx, m)
		}
		_ = peer.Close()
		s.logger.WithField("addr", remoteAddr).Debug("Peer disconnected")
	}()

	for {
		msg, err := peer.Receive(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.WithError(err).WithField("addr", remoteAddr).Debug("Failed to receive message")
			}
			return
		}

		switch msg := msg.(type) {
		case *protocol.Ping:
			s.logger.WithField("addr", remoteAddr).Debug("Received Ping, sending Pong")
			if err := peer.Send(ctx, &protocol.Pong{}); err != nil {
				s.logger.WithError(err).Error("Failed to send Pong")
			}
		case *protocol.Join:
			if m != nil {
				s.reject(ctx, peer, protocol.ErrInvalidMsg, "already joined")
				continue
			}
			if joined, err := s.join(ctx, peer, msg); err == nil {
				m = joined
			}
		case *protocol.Signal:
			if m == nil {
				s.reject(ctx, peer, protocol.ErrNotJoined, "join a topic first")
				continue
			}
			s.relay(ctx, m, msg)
		default:
			s.logger.WithField("type", msg.Type().String()).Warn("Unhandled message type")
			s.reject(ctx, peer, protocol.ErrInvalidMsg, fmt.Sprintf("unexpected %s", msg.Type()))
		}
	}
}

func (s *Server) join(ctx context.Context, peer *transport.Peer, msg *protocol.Join) (*member, error) {
	if err := validateID(msg.PeerID); err != nil {
		s.reject(ctx, peer, protocol.ErrInvalidMsg, "peer id: "+err.Error())
		return nil, err
	}
	if err := validateID(msg.Topic); err != nil {
		s.reject(ctx, peer, protocol.ErrInvalidMsg, "topic: "+err.Error())
		return nil, err
	}

	existing, err := s.store.Join(msg.Topic, msg.PeerID, peer)
	if err != nil {
		s.reject(ctx, peer, protocol.ErrDuplicatePeer, err.Error())
		return nil, err
	}

	m := &member{peer: peer, peerID: msg.PeerID, topic: msg.Topic}
	if err := peer.Send(ctx, &protocol.Welcome{PeerID: m.peerID, Topic: m.topic, Peers: existing}); err != nil {
		s.logger.WithError(err).Error("Failed to send Welcome")
		s.store.Leave(m.topic, m.peerID)
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"peer":    m.peerID,
		"topic":   m.topic,
		"members": len(existing) + 1,
	}).Info("Peer joined topic")

	s.broadcast(ctx, m, &protocol.PeerJoined{PeerID: m.peerID, Topic: m.topic})
	return m, nil
}

func (s *Server) leave(ctx context.Context, m *member) {
	if !s.store.Leave(m.topic, m.peerID) {
		return
	}
	s.logger.WithFields(logrus.Fields{"peer": m.peerID, "topic": m.topic}).Info("Peer left topic")
	s.broadcast(ctx, m, &protocol.PeerLeft{PeerID: m.peerID, Topic: m.topic})
}

func (s *Server) relay(ctx context.Context, from *member, msg *protocol.Signal) {
	if len(msg.Payload) > protocol.MaxSignalSize {
		s.reject(ctx, from.peer, protocol.ErrInvalidMsg, "signal payload too large")
		return
	}

	target, err := s.store.Lookup(from.topic, msg.To)
	if err != nil {
		s.reject(ctx, from.peer, protocol.ErrPeerNotFound, err.Error())
		return
	}

	fields := logrus.Fields{"from": from.peerID, "to": msg.To, "bytes": len(msg.Payload)}
	if err := target.Send(ctx, &protocol.Signal{From: from.peerID, To: msg.To, Payload: msg.Payload}); err != nil {
		s.logger.WithError(err).WithFields(fields).Warn("Failed to relay signal")
		return
	}
	s.logger.WithFields(fields).Debug("Relayed signal")
}

func (s *Server) broadcast(ctx context.Context, from *member, msg protocol.Message) {
	for _, peer := range s.store.others(from.topic, from.peerID) {
		if err := peer.Send(ctx, msg); err != nil {
			s.logger.WithError(err).WithField("type", msg.Type().String()).Warn("Failed to notify peer")
		}
	}
}

func (s *Server) reject(ctx context.Context, peer *transport.Peer, code protocol.ErrorCode, text string) {
	if err := peer.Send(ctx, &protocol.Error{Code: code, Message: text}); err != nil {
		s.logger.WithError(err).Debug("Failed to send error")
	}
}

func validateID(id string) error {
	if id == "" {
		return errors.New("empty")
	}
	if len(id) > protocol.MaxIDSize {
		return fmt.Errorf("longer than %d bytes", protocol.MaxIDSize)
	}
	return nil
}
