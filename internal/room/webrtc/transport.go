// Package webrtc is a room.Transport over a full mesh of pion WebRTC data
// channels. Peers meet on a tracker (see internal/tracker) under the room
// key and exchange offers and answers through it; chat traffic then flows
// directly between peers.
package webrtc

import (
	"errors"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/rudransh-shrivastava/peer-chat/internal/logger"
	"github.com/rudransh-shrivastava/peer-chat/internal/room"
	"github.com/sirupsen/logrus"
)

type Transport struct {
	config   Config
	selfID   string
	logger   *logrus.Logger
	pcConfig webrtc.Configuration
}

func New(cfg Config) (*Transport, error) {
	if cfg.TrackerAddr == "" {
		return nil, errors.New("webrtc transport requires a tracker address")
	}

	selfID := cfg.SelfID
	if selfID == "" {
		selfID = uuid.NewString()
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewLogger()
	}

	stun := cfg.STUNServers
	if stun == nil {
		stun = DefaultSTUNServers
	}

	return &Transport{
		config:   cfg,
		selfID:   selfID,
		logger:   log,
		pcConfig: peerConnectionConfig(stun),
	}, nil
}

func (t *Transport) SelfID() string {
	return t.selfID
}

func (t *Transport) NewRoom(cfg room.Config) (room.Room, error) {
	return &meshRoom{
		transport: t,
		cfg:       cfg,
		key:       cfg.Key(),
		logger:    t.logger,
		actions:   room.NewActions(),
		conns:     make(map[string]*connection),
	}, nil
}
