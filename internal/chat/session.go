package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rudransh-shrivastava/peer-chat/internal/logger"
	"github.com/rudransh-shrivastava/peer-chat/internal/room"
	"github.com/sirupsen/logrus"
)

var (
	ErrAlreadyConnected = errors.New("session already connected")
	ErrNotConnected     = errors.New("session not connected")
	ErrEmptyMessage     = errors.New("message content is empty")
	ErrSessionClosed    = errors.New("session closed")
)

type Options struct {
	Transport room.Transport
	Logger    *logrus.Logger
	// Now and NewID default to time.Now and uuid.NewString.
	Now   func() time.Time
	NewID func() string
}

// Session is one participant in one chat room at a time.
//
// Every command and every room callback runs under mu, so registry, store
// and status are only touched by one goroutine at a time. Connect releases
// mu while the room opens. Calling Disconnect while a Connect is in flight
// is not supported.
type Session struct {
	cfg       Config
	transport room.Transport
	selfID    string
	logger    *logrus.Logger
	now       func() time.Time
	newID     func() string
	events    *broker

	mu            sync.Mutex
	status        Status
	everConnected bool
	closed        bool
	room          room.Room
	channels      *channels
	ctx           context.Context
	cancel        context.CancelFunc
	registry      *Registry
	store         *MessageStore
}

type channels struct {
	message room.Channel
	intro   room.Channel
	history room.Channel
}

func NewSession(cfg Config, opts Options) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Transport == nil {
		return nil, errors.New("session requires a transport")
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	selfID := opts.Transport.SelfID()
	return &Session{
		cfg:       cfg,
		transport: opts.Transport,
		selfID:    selfID,
		logger:    log,
		now:       now,
		newID:     newID,
		events:    newBroker(),
		status:    StatusDisconnected,
		registry:  NewRegistry(selfID),
		store:     NewMessageStore(),
	}, nil
}

// Connect joins the configured room and introduces the local participant.
// On failure the session is left Disconnected and the error is returned.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.status != StatusDisconnected {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}

	s.setStatus(StatusConnecting)
	rm, err := s.prepareRoom()
	if err != nil {
		s.setStatus(StatusDisconnected)
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{"room": s.cfg.RoomID, "self": s.selfID}).Info("Joining room...")
	openErr := rm.Open(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.room != rm {
		_ = rm.Close()
		return fmt.Errorf("connect interrupted: %w", ErrNotConnected)
	}
	if openErr != nil {
		s.teardown()
		s.setStatus(StatusDisconnected)
		return fmt.Errorf("opening room %s: %w", s.cfg.RoomID, openErr)
	}
	if err := s.sendIntro(); err != nil {
		s.teardown()
		s.setStatus(StatusDisconnected)
		return fmt.Errorf("introducing self: %w", err)
	}

	s.everConnected = true
	s.setStatus(StatusConnected)
	s.logger.WithField("room", s.cfg.RoomID).Info("Connected to room")
	return nil
}

// prepareRoom creates the room, installs handlers and opens the channels.
// Must be called with mu held.
func (s *Session) prepareRoom() (room.Room, error) {
	rm, err := s.transport.NewRoom(room.Config{
		AppID:    s.cfg.AppID,
		Topic:    s.cfg.RoomID,
		Password: s.cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("creating room: %w", err)
	}

	rm.OnPeerJoin(func(peerID string) { s.handlePeerJoin(rm, peerID) })
	rm.OnPeerLeave(func(peerID string) { s.handlePeerLeave(rm, peerID) })

	chans := &channels{}
	for name, dst := range map[string]*room.Channel{
		channelMessage: &chans.message,
		channelIntro:   &chans.intro,
		channelHistory: &chans.history,
	} {
		ch, err := rm.OpenChannel(name)
		if err != nil {
			_ = rm.Close()
			return nil, fmt.Errorf("opening channel %s: %w", name, err)
		}
		*dst = ch
	}
	chans.message.OnReceive(func(data []byte, peerID string) { s.handleMessage(rm, data, peerID) })
	chans.intro.OnReceive(func(data []byte, peerID string) { s.handleIntro(rm, data, peerID) })
	chans.history.OnReceive(func(data []byte, peerID string) { s.handleHistory(rm, data, peerID) })

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.room = rm
	s.channels = chans
	return rm, nil
}

// SendMessage records content as a local message, emits it and then
// broadcasts it. A broadcast failure is returned but the message stays in
// the log.
func (s *Session) SendMessage(ctx context.Context, content string) (Message, error) {
	if strings.TrimSpace(content) == "" {
		return Message{}, ErrEmptyMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.room == nil || s.status != StatusConnected {
		return Message{}, ErrNotConnected
	}

	msg := Message{
		ID:         s.newID(),
		Content:    content,
		SenderID:   s.selfID,
		SenderName: s.cfg.UserName,
		Timestamp:  s.now().UTC(),
		IsLocal:    true,
	}
	s.store.Append(msg)
	s.events.publish(MessageReceived{Message: msg})

	data, err := encodeMessage(msg)
	if err != nil {
		return msg, fmt.Errorf("encoding message: %w", err)
	}
	if err := s.channels.message.Send(ctx, data); err != nil {
		s.logger.WithError(err).WithField("id", msg.ID).Warn("Failed to broadcast message")
		return msg, fmt.Errorf("broadcasting message: %w", err)
	}
	return msg, nil
}

// Disconnect leaves the room and forgets peers and messages. It is safe to
// call at any time.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.teardown()
	s.setStatus(StatusDisconnected)
	return err
}

// Close disconnects and ends every subscription.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closed = true
	err := s.teardown()
	s.setStatus(StatusDisconnected)
	s.mu.Unlock()

	s.events.close()
	return err
}

// teardown must be called with mu held.
func (s *Session) teardown() error {
	var err error
	if s.room != nil {
		s.cancel()
		if err = s.room.Close(); err != nil {
			err = fmt.Errorf("closing room: %w", err)
		}
		s.logger.WithField("room", s.cfg.RoomID).Info("Left room")
	}
	s.room = nil
	s.channels = nil
	s.registry.Clear()
	s.store.Clear()
	return err
}

// setStatus must be called with mu held; it only emits on change.
func (s *Session) setStatus(status Status) {
	if s.status == status {
		return
	}
	s.status = status
	s.events.publish(StatusChanged{Status: status})
}

func (s *Session) sendIntro(peerIDs ...string) error {
	data, err := encodeIntro(s.cfg.UserName)
	if err != nil {
		return err
	}
	return s.channels.intro.Send(s.ctx, data, peerIDs...)
}

func (s *Session) handlePeerJoin(rm room.Room, peerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.room != rm || peerID == s.selfID {
		return
	}

	s.logger.WithField("peer", peerID).Debug("Peer connected, sending introduction")
	if err := s.sendIntro(peerID); err != nil {
		s.logger.WithError(err).WithField("peer", peerID).Warn("Failed to send introduction")
	}
	if s.everConnected && s.status != StatusConnecting {
		s.setStatus(StatusConnected)
	}
}

func (s *Session) handlePeerLeave(rm room.Room, peerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.room != rm {
		return
	}
	if !s.registry.Remove(peerID) {
		return
	}
	s.logger.WithField("peer", peerID).Info("Peer left")
	s.events.publish(PeerLeft{PeerID: peerID})
}

func (s *Session) handleIntro(rm room.Room, data []byte, peerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.room != rm || peerID == s.selfID {
		return
	}

	name, err := decodeIntro(data)
	if err != nil {
		s.logger.WithError(err).WithField("peer", peerID).Warn("Dropping malformed introduction")
		return
	}

	peer := PeerInfo{ID: peerID, Name: name, JoinedAt: s.now().UTC()}
	if !s.registry.Upsert(peer) {
		return
	}
	s.logger.WithFields(logrus.Fields{"peer": peerID, "name": name}).Info("Peer joined")
	s.events.publish(PeerJoined{Peer: peer})

	if s.store.Len() == 0 {
		return
	}
	bundle, err := encodeHistory(s.store.Snapshot())
	if err != nil {
		s.logger.WithError(err).Warn("Failed to encode history")
		return
	}
	if err := s.channels.history.Send(s.ctx, bundle, peerID); err != nil {
		s.logger.WithError(err).WithField("peer", peerID).Warn("Failed to send history")
		return
	}
	s.logger.WithFields(logrus.Fields{"peer": peerID, "messages": s.store.Len()}).Debug("Sent history")
}

func (s *Session) handleMessage(rm room.Room, data []byte, peerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.room != rm {
		return
	}

	msg, err := decodeMessage(data, peerID, s.registry.Name(peerID))
	if err != nil {
		s.logger.WithError(err).WithField("peer", peerID).Warn("Dropping malformed message")
		return
	}
	msg.IsLocal = peerID == s.selfID

	if !s.store.Append(msg) {
		s.logger.WithField("id", msg.ID).Debug("Ignoring duplicate message")
		return
	}
	s.events.publish(MessageReceived{Message: msg})
}

func (s *Session) handleHistory(rm room.Room, data []byte, peerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.room != rm {
		return
	}

	incoming, dropped, err := decodeHistory(data)
	if err != nil {
		s.logger.WithError(err).WithField("peer", peerID).Warn("Dropping malformed history")
		return
	}
	if dropped > 0 {
		s.logger.WithFields(logrus.Fields{"peer": peerID, "dropped": dropped}).Warn("Dropped malformed history entries")
	}

	inserted := s.store.Merge(incoming, s.selfID)
	s.logger.WithFields(logrus.Fields{"peer": peerID, "received": len(incoming), "inserted": inserted}).Debug("Merged history")

	for _, m := range s.store.Snapshot() {
		s.events.publish(MessageReceived{Message: m})
	}
}

// Subscribe returns a new subscription to every session event.
func (s *Session) Subscribe() *Subscription {
	return s.events.subscribe()
}

// OnMessage calls fn for every MessageReceived until cancel is called.
func (s *Session) OnMessage(fn func(Message)) (cancel func()) {
	return s.listen(func(e Event) {
		if ev, ok := e.(MessageReceived); ok {
			fn(ev.Message)
		}
	})
}

func (s *Session) OnPeerJoin(fn func(PeerInfo)) (cancel func()) {
	return s.listen(func(e Event) {
		if ev, ok := e.(PeerJoined); ok {
			fn(ev.Peer)
		}
	})
}

func (s *Session) OnPeerLeave(fn func(peerID string)) (cancel func()) {
	return s.listen(func(e Event) {
		if ev, ok := e.(PeerLeft); ok {
			fn(ev.PeerID)
		}
	})
}

func (s *Session) OnStatus(fn func(Status)) (cancel func()) {
	return s.listen(func(e Event) {
		if ev, ok := e.(StatusChanged); ok {
			fn(ev.Status)
		}
	})
}

func (s *Session) listen(fn func(Event)) func() {
	sub := s.Subscribe()
	go func() {
		for e := range sub.Events() {
			fn(e)
		}
	}()
	return sub.Close
}

func (s *Session) Peers() []PeerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Snapshot()
}

func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Snapshot()
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) SelfID() string {
	return s.selfID
}

func (s *Session) Info() RoomInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	return RoomInfo{
		RoomID:    s.cfg.RoomID,
		AppID:     s.cfg.AppID,
		UserName:  s.cfg.UserName,
		SelfID:    s.selfID,
		PeerCount: s.registry.Len(),
	}
}
