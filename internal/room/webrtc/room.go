package webrtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v3"
	"github.com/rudransh-shrivastava/peer-chat/internal/protocol"
	"github.com/rudransh-shrivastava/peer-chat/internal/room"
	"github.com/rudransh-shrivastava/peer-chat/internal/tracker"
	"github.com/sirupsen/logrus"
)

type meshRoom struct {
	transport *Transport
	cfg       room.Config
	key       string
	logger    *logrus.Logger
	actions   *room.Actions
	frameID   atomic.Uint32

	mu      sync.Mutex
	onJoin  func(peerID string)
	onLeave func(peerID string)
	sealer  *sealer
	client  *tracker.Client
	box     *room.Mailbox
	conns   map[string]*connection
	ctx     context.Context
	cancel  context.CancelFunc
	open    bool
	closed  bool
}

func (r *meshRoom) OnPeerJoin(fn func(peerID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onJoin = fn
}

func (r *meshRoom) OnPeerLeave(fn func(peerID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onLeave = fn
}

func (r *meshRoom) OpenChannel(name string) (room.Channel, error) {
	if err := r.actions.Register(name); err != nil {
		return nil, err
	}
	return room.NewChannel(name, r.actions, r.send), nil
}

// Open joins the room key on the tracker and offers a connection to every
// peer already there. Peers that join later offer to us.
func (r *meshRoom) Open(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return room.ErrClosed
	}
	if r.open {
		return nil
	}

	s, err := newSealer(r.cfg.Password, r.key)
	if err != nil {
		return err
	}

	client, err := tracker.Dial(ctx, r.transport.config.TrackerAddr)
	if err != nil {
		return err
	}

	existing, err := client.Join(ctx, r.key, r.transport.selfID)
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("joining room on tracker: %w", err)
	}

	r.sealer = s
	r.client = client
	r.box = room.NewMailbox()
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.open = true

	r.logger.WithFields(logrus.Fields{"room": r.key, "peers": len(existing)}).Info("Joined tracker")

	go r.receiveLoop()
	for _, peerID := range existing {
		go r.connect(peerID)
	}
	return nil
}

func (r *meshRoom) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	if !r.open {
		r.mu.Unlock()
		return nil
	}

	conns := make([]*connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.conns = make(map[string]*connection)
	r.mu.Unlock()

	r.cancel()
	for _, c := range conns {
		c.shutdown()
	}
	r.box.Close()
	return r.client.Close()
}

func (r *meshRoom) connect(peerID string) {
	c, err := r.addConnection(peerID, true)
	if err != nil {
		r.logger.WithError(err).WithField("peer", peerID).Warn("Failed to create connection")
		return
	}
	if err := c.offer(r.ctx); err != nil {
		r.logger.WithError(err).WithField("peer", peerID).Warn("Failed to send offer")
		r.dropConnection(c)
	}
}

// addConnection replaces any previous connection to peerID.
func (r *meshRoom) addConnection(peerID string, initiator bool) (*connection, error) {
	c, err := newConnection(r, peerID, initiator)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		c.shutdown()
		return nil, room.ErrClosed
	}
	old := r.conns[peerID]
	r.conns[peerID] = c
	r.mu.Unlock()

	if old != nil {
		r.dropConnection(old)
	}
	return c, nil
}

func (r *meshRoom) dropConnection(c *connection) {
	r.mu.Lock()
	if r.conns[c.peerID] == c {
		delete(r.conns, c.peerID)
	}
	r.mu.Unlock()

	if c.shutdown() {
		r.logger.WithField("peer", c.peerID).Debug("Connection closed")
		r.announceLeave(c.peerID)
	}
}

func (r *meshRoom) receiveLoop() {
	for {
		msg, err := r.client.Receive(r.ctx)
		if err != nil {
			if r.ctx.Err() == nil {
				r.logger.WithError(err).Error("Lost tracker connection")
			}
			return
		}

		switch msg := msg.(type) {
		case *protocol.PeerJoined:
			r.logger.WithField("peer", msg.PeerID).Debug("Peer arrived on tracker, awaiting offer")
		case *protocol.PeerLeft:
			r.mu.Lock()
			c := r.conns[msg.PeerID]
			r.mu.Unlock()
			if c != nil {
				r.dropConnection(c)
			}
		case *protocol.Signal:
			go r.handleSignal(msg.From, msg.Payload)
		case *protocol.Error:
			r.logger.WithError(tracker.AsError(msg)).Warn("Tracker reported an error")
		default:
			r.logger.WithField("type", msg.Type().String()).Warn("Unhandled tracker message")
		}
	}
}

func (r *meshRoom) handleSignal(from string, payload []byte) {
	log := r.logger.WithField("peer", from)

	desc, err := decodeSignal(r.sealer, payload)
	if err != nil {
		log.WithError(err).Warn("Dropping signal")
		return
	}

	var c *connection
	if desc.Type == webrtc.SDPTypeOffer {
		c, err = r.addConnection(from, false)
		if err != nil {
			log.WithError(err).Warn("Failed to accept offer")
			return
		}
	} else {
		r.mu.Lock()
		c = r.conns[from]
		r.mu.Unlock()
		if c == nil || !c.initiator {
			log.Debug("Ignoring answer without a pending offer")
			return
		}
	}

	if err := c.handleSignal(r.ctx, desc); err != nil {
		log.WithError(err).Warn("Failed to handle signal")
		r.dropConnection(c)
	}
}

func (r *meshRoom) send(_ context.Context, channel string, data []byte, peerIDs []string) error {
	frame, err := room.EncodeFrame(channel, data)
	if err != nil {
		return err
	}
	chunks, err := splitMessage(r.frameID.Add(1), frame)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return room.ErrClosed
	}
	if !r.open {
		r.mu.Unlock()
		return room.ErrNotOpen
	}

	var targets []*connection
	if len(peerIDs) == 0 {
		for _, c := range r.conns {
			targets = append(targets, c)
		}
	} else {
		for _, id := range peerIDs {
			if c, ok := r.conns[id]; ok {
				targets = append(targets, c)
			}
		}
	}
	r.mu.Unlock()

	var errs []error
	for _, c := range targets {
		if !c.isOpen() {
			continue
		}
		if err := c.send(chunks); err != nil {
			errs = append(errs, fmt.Errorf("sending to %s: %w", c.peerID, err))
		}
	}
	return errors.Join(errs...)
}

func (r *meshRoom) deliver(buf []byte, from string) {
	r.post(func() {
		frame, err := room.DecodeFrame(buf)
		if err != nil {
			r.logger.WithError(err).WithField("peer", from).Warn("Dropping malformed frame")
			return
		}
		if !r.actions.Dispatch(frame.Channel, frame.Data, from) {
			r.logger.WithField("channel", frame.Channel).Debug("No handler for channel")
		}
	})
}

func (r *meshRoom) announceJoin(peerID string) {
	r.post(func() {
		r.mu.Lock()
		fn := r.onJoin
		r.mu.Unlock()
		if fn != nil {
			fn(peerID)
		}
	})
}

func (r *meshRoom) announceLeave(peerID string) {
	r.post(func() {
		r.mu.Lock()
		fn := r.onLeave
		r.mu.Unlock()
		if fn != nil {
			fn(peerID)
		}
	})
}

func (r *meshRoom) post(fn func()) {
	r.mu.Lock()
	box := r.box
	r.mu.Unlock()
	if box != nil {
		box.Post(fn)
	}
}
