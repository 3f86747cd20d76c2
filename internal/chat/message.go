// Package chat implements a peer-to-peer group chat session on top of a
// room.Transport: peer presence, an ordered de-duplicated message log,
// history replication for late joiners and connection status reporting.
package chat

import "time"

// UnknownSender names a peer whose introduction has not arrived yet.
const UnknownSender = "unknown"

type Message struct {
	ID         string
	Content    string
	SenderID   string
	SenderName string
	Timestamp  time.Time
	// IsLocal is true when SenderID is the local self id at insertion.
	IsLocal bool
}

type PeerInfo struct {
	ID       string
	Name     string
	JoinedAt time.Time
}

type RoomInfo struct {
	RoomID    string
	AppID     string
	UserName  string
	SelfID    string
	PeerCount int
}
