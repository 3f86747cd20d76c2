package webrtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"
)

var errChannelNotReady = errors.New("data channel not ready")

// connection is the link to one remote peer: a PeerConnection carrying a
// single ordered data channel.
type connection struct {
	peerID    string
	pc        *webrtc.PeerConnection
	room      *meshRoom
	initiator bool

	mu     sync.Mutex
	dc     *webrtc.DataChannel
	open   bool
	closed bool

	// sendMu keeps the chunks of one frame together on the channel.
	sendMu  sync.Mutex
	inbound assembler
}

func newConnection(r *meshRoom, peerID string, initiator bool) (*connection, error) {
	pc, err := webrtc.NewPeerConnection(r.transport.pcConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	c := &connection{
		peerID:    peerID,
		pc:        pc,
		room:      r,
		initiator: initiator,
	}

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		r.logger.WithFields(logrus.Fields{"peer": peerID, "state": s.String()}).Debug("Peer connection state changed")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			r.dropConnection(c)
		}
	})

	if !initiator {
		pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			if dc.Label() != dataChannelLabel {
				_ = dc.Close()
				return
			}
			c.setupDataChannel(dc)
		})
	}

	return c, nil
}

func (c *connection) setupDataChannel(dc *webrtc.DataChannel) {
	c.mu.Lock()
	c.dc = dc
	c.mu.Unlock()

	dc.OnOpen(func() {
		c.mu.Lock()
		if c.closed || c.open {
			c.mu.Unlock()
			return
		}
		c.open = true
		c.mu.Unlock()

		c.room.logger.WithField("peer", c.peerID).Debug("Data channel open")
		c.room.announceJoin(c.peerID)
	})

	// pion calls OnMessage from one goroutine per channel
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		frame, done, err := c.inbound.add(msg.Data)
		if err != nil {
			c.room.logger.WithError(err).WithField("peer", c.peerID).Warn("Dropping chunk")
			return
		}
		if done {
			c.room.deliver(frame, c.peerID)
		}
	})

	dc.OnError(func(err error) {
		c.room.logger.WithError(err).WithField("peer", c.peerID).Error("Data channel error")
	})

	dc.OnClose(func() {
		c.room.dropConnection(c)
	})
}

// offer opens the data channel and sends an offer carrying every local
// candidate.
func (c *connection) offer(ctx context.Context) error {
	dc, err := c.pc.CreateDataChannel(dataChannelLabel, dataChannelConfig())
	if err != nil {
		return fmt.Errorf("failed to create data channel: %w", err)
	}
	c.setupDataChannel(dc)

	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}
	return c.sendLocalDescription(ctx, offer)
}

func (c *connection) handleSignal(ctx context.Context, desc webrtc.SessionDescription) error {
	if err := c.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}
	if desc.Type != webrtc.SDPTypeOffer {
		return nil
	}

	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("failed to create answer: %w", err)
	}
	return c.sendLocalDescription(ctx, answer)
}

func (c *connection) sendLocalDescription(ctx context.Context, desc webrtc.SessionDescription) error {
	gathered := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(desc); err != nil {
		return fmt.Errorf("failed to set local description: %w", err)
	}

	select {
	case <-gathered:
	case <-ctx.Done():
		return ctx.Err()
	}

	payload, err := encodeSignal(c.room.sealer, *c.pc.LocalDescription())
	if err != nil {
		return err
	}
	return c.room.client.Signal(ctx, c.peerID, payload)
}

func (c *connection) send(chunks [][]byte) error {
	c.mu.Lock()
	dc, open := c.dc, c.open
	c.mu.Unlock()

	if dc == nil || !open {
		return errChannelNotReady
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	for _, part := range chunks {
		if err := dc.Send(part); err != nil {
			return err
		}
	}
	return nil
}

func (c *connection) isOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open && !c.closed
}

// shutdown closes the connection once and reports whether the peer had
// been announced as joined.
func (c *connection) shutdown() bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.closed = true
	wasOpen := c.open
	dc := c.dc
	c.mu.Unlock()

	if dc != nil {
		_ = dc.Close()
	}
	_ = c.pc.Close()
	return wasOpen
}
