// Package memory is an in-process room.Transport. Rooms opened on the same
// Network with the same key and password form a full mesh; every room
// delivers its callbacks from a single goroutine in FIFO order.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rudransh-shrivastava/peer-chat/internal/room"
)

var ErrDuplicatePeer = errors.New("peer id already present in room")

type Network struct {
	mu      sync.Mutex
	rooms   map[string]map[string]*memRoom
	openErr error
	sendErr error
}

func NewNetwork() *Network {
	return &Network{rooms: make(map[string]map[string]*memRoom)}
}

// FailOpen makes every following Open fail with err; nil restores success.
func (n *Network) FailOpen(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.openErr = err
}

// FailSend makes every following channel send fail with err without
// delivering anything; nil restores delivery.
func (n *Network) FailSend(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sendErr = err
}

// Members lists the peer ids currently present under key.
func (n *Network) Members(key string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	ids := make([]string, 0, len(n.rooms[key]))
	for id := range n.rooms[key] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (n *Network) Transport(selfID string) *Transport {
	return &Transport{network: n, selfID: selfID}
}

type Transport struct {
	network *Network
	selfID  string
}

func (t *Transport) SelfID() string {
	return t.selfID
}

func (t *Transport) NewRoom(cfg room.Config) (room.Room, error) {
	return &memRoom{
		network: t.network,
		cfg:     cfg,
		key:     cfg.Key(),
		selfID:  t.selfID,
		actions: room.NewActions(),
		peers:   make(map[string]*memRoom),
	}, nil
}

type memRoom struct {
	network *Network
	cfg     room.Config
	key     string
	selfID  string
	actions *room.Actions
	box     *room.Mailbox

	mu      sync.Mutex
	onJoin  func(peerID string)
	onLeave func(peerID string)

	// guarded by network.mu
	open   bool
	closed bool
	peers  map[string]*memRoom
}

func (r *memRoom) OnPeerJoin(fn func(peerID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onJoin = fn
}

func (r *memRoom) OnPeerLeave(fn func(peerID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onLeave = fn
}

func (r *memRoom) OpenChannel(name string) (room.Channel, error) {
	if err := r.actions.Register(name); err != nil {
		return nil, err
	}
	return room.NewChannel(name, r.actions, r.send), nil
}

func (r *memRoom) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n := r.network
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.openErr != nil {
		return n.openErr
	}
	if r.closed {
		return room.ErrClosed
	}
	if r.open {
		return nil
	}

	members := n.rooms[r.key]
	if members == nil {
		members = make(map[string]*memRoom)
		n.rooms[r.key] = members
	}
	if _, exists := members[r.selfID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicatePeer, r.selfID)
	}

	r.box = room.NewMailbox()
	r.open = true
	members[r.selfID] = r

	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		other := members[id]
		if other == r || other.cfg.Password != r.cfg.Password {
			continue
		}
		r.peers[other.selfID] = other
		other.peers[r.selfID] = r
		other.post(func() { other.peerJoined(r.selfID) })
		r.post(func() { r.peerJoined(other.selfID) })
	}
	return nil
}

func (r *memRoom) Close() error {
	n := r.network
	n.mu.Lock()
	defer n.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if !r.open {
		return nil
	}

	if members := n.rooms[r.key]; members != nil {
		delete(members, r.selfID)
		if len(members) == 0 {
			delete(n.rooms, r.key)
		}
	}

	for _, other := range r.peers {
		delete(other.peers, r.selfID)
		other.post(func() { other.peerLeft(r.selfID) })
	}
	r.peers = make(map[string]*memRoom)
	r.box.Close()
	return nil
}

func (r *memRoom) send(_ context.Context, channel string, data []byte, peerIDs []string) error {
	frame, err := room.EncodeFrame(channel, data)
	if err != nil {
		return err
	}

	n := r.network
	n.mu.Lock()
	defer n.mu.Unlock()

	if r.closed {
		return room.ErrClosed
	}
	if !r.open {
		return room.ErrNotOpen
	}
	if n.sendErr != nil {
		return n.sendErr
	}

	var targets []*memRoom
	if len(peerIDs) == 0 {
		for _, other := range r.peers {
			targets = append(targets, other)
		}
	} else {
		for _, id := range peerIDs {
			if other, ok := r.peers[id]; ok {
				targets = append(targets, other)
			}
		}
	}

	from := r.selfID
	for _, target := range targets {
		buf := append([]byte(nil), frame...)
		target.post(func() { target.deliver(buf, from) })
	}
	return nil
}

// post must be called with network.mu held.
func (r *memRoom) post(fn func()) {
	if r.box != nil {
		r.box.Post(fn)
	}
}

func (r *memRoom) deliver(buf []byte, from string) {
	frame, err := room.DecodeFrame(buf)
	if err != nil {
		return
	}
	r.actions.Dispatch(frame.Channel, frame.Data, from)
}

func (r *memRoom) peerJoined(peerID string) {
	r.mu.Lock()
	fn := r.onJoin
	r.mu.Unlock()
	if fn != nil {
		fn(peerID)
	}
}

func (r *memRoom) peerLeft(peerID string) {
	r.mu.Lock()
	fn := r.onLeave
	r.mu.Unlock()
	if fn != nil {
		fn(peerID)
	}
}
