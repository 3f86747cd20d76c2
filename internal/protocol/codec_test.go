package protocol

import (
	"bufio"
	"bytes"
	"testing"
)

func TestCodecJoinWelcome(t *testing.T) {
	codec := NewCodec()
	var buf bytes.Buffer

	if err := codec.Encode(&buf, &Join{PeerID: "peer-a", Topic: "room-key"}); err != nil {
		t.Fatalf("Encode Join failed: %v", err)
	}

	decoded, err := codec.Decode(&buf)
	if err != nil {
		t.Fatalf("Decode Join failed: %v", err)
	}

	join, ok := decoded.(*Join)
	if !ok {
		t.Fatalf("Expected *Join, got %T", decoded)
	}
	if join.PeerID != "peer-a" || join.Topic != "room-key" {
		t.Errorf("Join mismatch: %+v", join)
	}

	buf.Reset()
	welcome := &Welcome{PeerID: "peer-a", Topic: "room-key", Peers: []string{"peer-b", "peer-c"}}
	if err := codec.Encode(&buf, welcome); err != nil {
		t.Fatalf("Encode Welcome failed: %v", err)
	}

	decoded, err = codec.Decode(&buf)
	if err != nil {
		t.Fatalf("Decode Welcome failed: %v", err)
	}

	decodedWelcome, ok := decoded.(*Welcome)
	if !ok {
		t.Fatalf("Expected *Welcome, got %T", decoded)
	}
	if len(decodedWelcome.Peers) != 2 || decodedWelcome.Peers[1] != "peer-c" {
		t.Errorf("Unexpected peers: %v", decodedWelcome.Peers)
	}
}

func TestCodecSignal(t *testing.T) {
	codec := NewCodec()
	payload := []byte(`{"type":"offer","sdp":"v=0"}`)

	data, err := codec.EncodeToBytes(&Signal{From: "a", To: "b", Payload: payload})
	if err != nil {
		t.Fatalf("EncodeToBytes failed: %v", err)
	}

	decoded, err := codec.DecodeFromBytes(data)
	if err != nil {
		t.Fatalf("DecodeFromBytes failed: %v", err)
	}

	signal, ok := decoded.(*Signal)
	if !ok {
		t.Fatalf("Expected *Signal, got %T", decoded)
	}
	if signal.From != "a" || signal.To != "b" {
		t.Errorf("Unexpected routing: %+v", signal)
	}
	if !bytes.Equal(signal.Payload, payload) {
		t.Errorf("Payload mismatch")
	}
}

func TestCodecError(t *testing.T) {
	codec := NewCodec()
	var buf bytes.Buffer

	msg := &Error{Code: ErrPeerNotFound, Message: "peer b is not in this topic"}
	if err := codec.Encode(&buf, msg); err != nil {
		t.Fatalf("Encode Error failed: %v", err)
	}

	decoded, err := codec.Decode(&buf)
	if err != nil {
		t.Fatalf("Decode Error failed: %v", err)
	}

	decodedMsg, ok := decoded.(*Error)
	if !ok {
		t.Fatalf("Expected *Error, got %T", decoded)
	}
	if decodedMsg.Code != ErrPeerNotFound {
		t.Errorf("Expected ErrPeerNotFound, got %v", decodedMsg.Code)
	}
	if decodedMsg.Error() != "PEER_NOT_FOUND: peer b is not in this topic" {
		t.Errorf("Unexpected error text: %s", decodedMsg.Error())
	}
}

func TestCodecStreamOfMessages(t *testing.T) {
	codec := NewCodec()
	var buf bytes.Buffer

	sent := []Message{
		&Ping{},
		&PeerJoined{PeerID: "b", Topic: "t"},
		&PeerLeft{PeerID: "b", Topic: "t"},
		&Pong{},
	}
	for _, msg := range sent {
		if err := codec.Encode(&buf, msg); err != nil {
			t.Fatalf("Encode %s failed: %v", msg.Type(), err)
		}
	}

	r := bufio.NewReader(&buf)
	for i, want := range sent {
		got, err := codec.Decode(r)
		if err != nil {
			t.Fatalf("Decode #%d failed: %v", i, err)
		}
		if got.Type() != want.Type() {
			t.Errorf("Message #%d: expected %s, got %s", i, want.Type(), got.Type())
		}
	}
}

func TestCodecDecodeGarbage(t *testing.T) {
	codec := NewCodec()
	if _, err := codec.DecodeFromBytes([]byte{0xde, 0xad, 0xbe, 0xef}); err == nil {
		t.Error("Expected error decoding garbage")
	}
}
