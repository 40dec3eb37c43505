package peerlink

import (
	"fmt"

	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"
)

// LinkState tracks one link's negotiation progress.
type LinkState int

const (
	StateIdle LinkState = iota
	StateHaveLocalOffer
	StateStable
	StateClosed
)

func (s LinkState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHaveLocalOffer:
		return "have-local-offer"
	case StateStable:
		return "stable"
	default:
		return "closed"
	}
}

// Link is one peer connection to a remote participant, either the
// camera/mic link or the screen-share link. The two links to the same
// remote never share state: closing one must not affect the other.
type Link struct {
	key     LinkKey
	pc      *webrtc.PeerConnection
	state   LinkState
	pending candidateQueue
	logger  *zap.Logger
}

func newLink(key LinkKey, pc *webrtc.PeerConnection, logger *zap.Logger) *Link {
	return &Link{key: key, pc: pc, logger: logger}
}

// Key returns the link's identity.
func (l *Link) Key() LinkKey { return l.key }

// State returns the current negotiation state.
func (l *Link) State() LinkState { return l.state }

// CreateOffer produces and applies a local offer, moving the link to
// HAVE_LOCAL_OFFER.
func (l *Link) CreateOffer() (webrtc.SessionDescription, error) {
	if l.state == StateClosed {
		return webrtc.SessionDescription{}, fmt.Errorf("link %s/%s is closed", l.key.RemoteID, l.key.Kind)
	}
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	l.state = StateHaveLocalOffer
	return offer, nil
}

// ApplyRemoteOffer applies a remote offer, flushes any queued
// candidates and returns the local answer. The link ends up STABLE.
func (l *Link) ApplyRemoteOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if l.state == StateClosed {
		return webrtc.SessionDescription{}, fmt.Errorf("link %s/%s is closed", l.key.RemoteID, l.key.Kind)
	}
	if err := l.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set remote offer: %w", err)
	}
	l.flushPending()

	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	l.state = StateStable
	return answer, nil
}

// ApplyRemoteAnswer completes a negotiation this side initiated.
// Answers arriving in any other state are ignored.
func (l *Link) ApplyRemoteAnswer(answer webrtc.SessionDescription) error {
	if l.state != StateHaveLocalOffer {
		l.logger.Warn("ignoring answer in wrong state",
			zap.String("remote", l.key.RemoteID),
			zap.String("kind", l.key.Kind.String()),
			zap.String("state", l.state.String()))
		return nil
	}
	if err := l.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote answer: %w", err)
	}
	l.state = StateStable
	l.flushPending()
	return nil
}

// AddRemoteCandidate applies a candidate immediately when the remote
// description is set, otherwise queues it for the post-description
// flush.
func (l *Link) AddRemoteCandidate(c webrtc.ICECandidateInit) {
	if l.state == StateClosed {
		return
	}
	if l.pc.RemoteDescription() == nil {
		l.pending.add(c)
		return
	}
	if err := l.pc.AddICECandidate(c); err != nil {
		l.logger.Warn("failed to add candidate, queueing",
			zap.String("remote", l.key.RemoteID), zap.Error(err))
		l.pending.add(c)
	}
}

// flushPending applies queued candidates, re-queueing failures with a
// bounded attempt count.
func (l *Link) flushPending() {
	l.flushPendingWith(l.pc.AddICECandidate)
}

func (l *Link) flushPendingWith(apply func(webrtc.ICECandidateInit) error) {
	for _, p := range l.pending.drain() {
		if err := apply(p.candidate); err != nil {
			if !l.pending.requeue(p) {
				l.logger.Warn("dropping candidate after repeated failures",
					zap.String("remote", l.key.RemoteID), zap.Error(err))
			}
		}
	}
}

// PendingCandidates reports how many candidates still await flushing.
func (l *Link) PendingCandidates() int {
	return l.pending.len()
}

// Close tears the link down. Closing is terminal and idempotent.
func (l *Link) Close() error {
	if l.state == StateClosed {
		return nil
	}
	l.state = StateClosed
	l.pending.drain()
	return l.pc.Close()
}
