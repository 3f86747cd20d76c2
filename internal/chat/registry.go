package chat

import (
	"slices"
	"strings"

	"github.com/samber/lo"
)

// Registry tracks the remote participants of a session. It never holds an
// entry for the local self id. Not safe for concurrent use; the Session
// serializes access.
type Registry struct {
	selfID string
	peers  map[string]PeerInfo
}

func NewRegistry(selfID string) *Registry {
	return &Registry{selfID: selfID, peers: make(map[string]PeerInfo)}
}

// Upsert inserts or replaces p and reports whether it was accepted.
func (r *Registry) Upsert(p PeerInfo) bool {
	if p.ID == "" || p.ID == r.selfID {
		return false
	}
	r.peers[p.ID] = p
	return true
}

// Remove reports whether an entry for id existed.
func (r *Registry) Remove(id string) bool {
	if _, ok := r.peers[id]; !ok {
		return false
	}
	delete(r.peers, id)
	return true
}

func (r *Registry) Lookup(id string) (PeerInfo, bool) {
	p, ok := r.peers[id]
	return p, ok
}

// Name returns the display name of id, or UnknownSender.
func (r *Registry) Name(id string) string {
	if p, ok := r.Lookup(id); ok && p.Name != "" {
		return p.Name
	}
	return UnknownSender
}

// Snapshot returns the peers ordered by join time, then id.
func (r *Registry) Snapshot() []PeerInfo {
	peers := lo.Values(r.peers)
	slices.SortFunc(peers, func(a, b PeerInfo) int {
		if c := a.JoinedAt.Compare(b.JoinedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return peers
}

func (r *Registry) Len() int {
	return len(r.peers)
}

func (r *Registry) Clear() {
	clear(r.peers)
}
