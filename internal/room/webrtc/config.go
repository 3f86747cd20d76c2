package webrtc

import (
	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"
)

const (
	dataChannelLabel    = "chat"
	dataChannelProtocol = "peer-chat"
)

var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
	"stun:stun2.l.google.com:19302",
	"stun:stun3.l.google.com:19302",
	"stun:stun4.l.google.com:19302",
}

type Config struct {
	TrackerAddr string
	// STUNServers nil means DefaultSTUNServers; an empty slice means host
	// candidates only.
	STUNServers []string
	// SelfID defaults to a random uuid.
	SelfID string
	Logger *logrus.Logger
}

func peerConnectionConfig(stunServers []string) webrtc.Configuration {
	cfg := webrtc.Configuration{
		ICETransportPolicy: webrtc.ICETransportPolicyAll,
	}
	if len(stunServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: stunServers}}
	}
	return cfg
}

func dataChannelConfig() *webrtc.DataChannelInit {
	protocolName := dataChannelProtocol
	ordered := true
	return &webrtc.DataChannelInit{
		Ordered:        &ordered,
		MaxRetransmits: nil,
		Protocol:       &protocolName,
	}
}
