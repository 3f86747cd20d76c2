package webrtc

import (
	"fmt"

	"github.com/pion/webrtc/v3"
	"github.com/rudransh-shrivastava/peer-chat/internal/codec"
)

// signal is the payload relayed through the tracker. ICE candidates are
// gathered before the description is sent, so one offer and one answer
// complete a connection.
type signal struct {
	Type string `cbor:"type"`
	SDP  string `cbor:"sdp"`
}

func encodeSignal(s *sealer, desc webrtc.SessionDescription) ([]byte, error) {
	data, err := codec.Marshal(signal{Type: desc.Type.String(), SDP: desc.SDP})
	if err != nil {
		return nil, err
	}
	return s.seal(data)
}

func decodeSignal(s *sealer, payload []byte) (webrtc.SessionDescription, error) {
	data, err := s.open(payload)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}

	var sig signal
	if err := codec.Unmarshal(data, &sig); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("decoding signal: %w", err)
	}

	typ := webrtc.NewSDPType(sig.Type)
	if typ != webrtc.SDPTypeOffer && typ != webrtc.SDPTypeAnswer {
		return webrtc.SessionDescription{}, fmt.Errorf("unsupported signal type %q", sig.Type)
	}
	return webrtc.SessionDescription{Type: typ, SDP: sig.SDP}, nil
}
