package tracker

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rudransh-shrivastava/peer-chat/internal/transport"
)

var (
	ErrDuplicatePeer = errors.New("peer id already present in topic")
	ErrPeerNotFound  = errors.New("peer not found in topic")
)

// Store maps topics to the peers currently joined to them.
type Store struct {
	mu     sync.Mutex
	topics map[string]map[string]*transport.Peer
}

func NewStore() *Store {
	return &Store{
		topics: make(map[string]map[string]*transport.Peer),
	}
}

// Join adds peerID to topic and returns the ids that were already there.
func (s *Store) Join(topic, peerID string, peer *transport.Peer) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members := s.topics[topic]
	if members == nil {
		members = make(map[string]*transport.Peer)
		s.topics[topic] = members
	}
	if _, exists := members[peerID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicatePeer, peerID)
	}

	existing := sortedIDs(members)
	members[peerID] = peer
	return existing, nil
}

// Leave reports whether peerID was a member of topic.
func (s *Store) Leave(topic, peerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	members := s.topics[topic]
	if _, exists := members[peerID]; !exists {
		return false
	}
	delete(members, peerID)
	if len(members) == 0 {
		delete(s.topics, topic)
	}
	return true
}

func (s *Store) Lookup(topic, peerID string) (*transport.Peer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	peer, ok := s.topics[topic][peerID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPeerNotFound, peerID)
	}
	return peer, nil
}

func (s *Store) Members(topic string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedIDs(s.topics[topic])
}

// others returns the connections of every member of topic except peerID.
func (s *Store) others(topic, peerID string) []*transport.Peer {
	s.mu.Lock()
	defer s.mu.Unlock()

	peers := make([]*transport.Peer, 0, len(s.topics[topic]))
	for id, peer := range s.topics[topic] {
		if id != peerID {
			peers = append(peers, peer)
		}
	}
	return peers
}

func sortedIDs(members map[string]*transport.Peer) []string {
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
