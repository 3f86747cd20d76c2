package protocol

import "fmt"

type Message interface {
	Type() MessageType
}

type Error struct {
	Code    ErrorCode
	Message string
}

func (Error) Type() MessageType { return MsgError }

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Join is the first message a peer sends; the tracker answers with Welcome
// or Error.
type Join struct {
	PeerID string
	Topic  string
}

func (Join) Type() MessageType { return MsgJoin }

// Welcome lists the peers already present in the topic.
type Welcome struct {
	PeerID string
	Peers  []string
	Topic  string
}

func (Welcome) Type() MessageType { return MsgWelcome }

type PeerJoined struct {
	PeerID string
	Topic  string
}

func (PeerJoined) Type() MessageType { return MsgPeerJoined }

type PeerLeft struct {
	PeerID string
	Topic  string
}

func (PeerLeft) Type() MessageType { return MsgPeerLeft }

// Signal carries an opaque connection negotiation payload between two
// members of the same topic. From is filled in by the tracker.
type Signal struct {
	From    string
	Payload []byte
	To      string
}

func (Signal) Type() MessageType { return MsgSignal }

type Ping struct{}

func (Ping) Type() MessageType { return MsgPing }

type Pong struct{}

func (Pong) Type() MessageType { return MsgPong }
