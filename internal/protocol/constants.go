package protocol

const (
	MaxIDSize     = 128
	MaxSignalSize = 64 * 1024
	MaxPeers      = 256
)

type MessageType uint16

const (
	MsgError      MessageType = 0x00FF
	MsgJoin       MessageType = 0x0010
	MsgPeerJoined MessageType = 0x0020
	MsgPeerLeft   MessageType = 0x0021
	MsgPing       MessageType = 0x0001
	MsgPong       MessageType = 0x0002
	MsgSignal     MessageType = 0x0030
	MsgWelcome    MessageType = 0x0011
)

func (t MessageType) String() string {
	switch t {
	case MsgError:
		return "ERROR"
	case MsgJoin:
		return "JOIN"
	case MsgPeerJoined:
		return "PEER_JOINED"
	case MsgPeerLeft:
		return "PEER_LEFT"
	case MsgPing:
		return "PING"
	case MsgPong:
		return "PONG"
	case MsgSignal:
		return "SIGNAL"
	case MsgWelcome:
		return "WELCOME"
	default:
		return "UNKNOWN"
	}
}

type ErrorCode uint16

const (
	ErrDuplicatePeer ErrorCode = 0x0003
	ErrInternal      ErrorCode = 0x00FF
	ErrInvalidMsg    ErrorCode = 0x0001
	ErrNotJoined     ErrorCode = 0x0005
	ErrPeerNotFound  ErrorCode = 0x0004
	ErrUnknown       ErrorCode = 0x0000
)

func (e ErrorCode) String() string {
	switch e {
	case ErrDuplicatePeer:
		return "DUPLICATE_PEER"
	case ErrInternal:
		return "INTERNAL_ERROR"
	case ErrInvalidMsg:
		return "INVALID_MESSAGE"
	case ErrNotJoined:
		return "NOT_JOINED"
	case ErrPeerNotFound:
		return "PEER_NOT_FOUND"
	default:
		return "UNKNOWN"
	}
}
