package peerlink

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/skillsage/signaling/internal/config"
	"github.com/skillsage/signaling/internal/signaling"
)

// SendSignalFunc publishes a local SDP to a remote connection through
// the relay.
type SendSignalFunc func(to, kind string, sdp webrtc.SessionDescription, isScreenShare bool)

// SendCandidateFunc publishes a local ICE candidate through the relay.
type SendCandidateFunc func(to string, candidate webrtc.ICECandidateInit, isScreenShare bool)

// Manager owns all peer links of one local participant. Each remote
// participant can have up to two links (camera and screen), each with
// an independent negotiation state machine. Only the recruiter
// spontaneously opens camera links; screen links are opened by
// whichever side starts sharing.
type Manager struct {
	mu    sync.Mutex
	links map[LinkKey]*Link

	cfg           *config.Config
	role          signaling.Role
	sendSignal    SendSignalFunc
	sendCandidate SendCandidateFunc
	logger        *zap.Logger
}

// NewManager creates a link manager for a participant with the given
// declared role.
func NewManager(cfg *config.Config, role signaling.Role, sendSignal SendSignalFunc, sendCandidate SendCandidateFunc, logger *zap.Logger) *Manager {
	return &Manager{
		links:         make(map[LinkKey]*Link),
		cfg:           cfg,
		role:          role,
		sendSignal:    sendSignal,
		sendCandidate: sendCandidate,
		logger:        logger,
	}
}

// Initiator reports whether this participant spontaneously opens
// camera links (the recruiter does).
func (m *Manager) Initiator() bool {
	return m.role == signaling.RoleRecruiter
}

func (m *Manager) newPeerConnection() (*webrtc.PeerConnection, error) {
	var iceServers []webrtc.ICEServer
	if stun := m.cfg.GetSTUNServers(); stun != nil {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: stun})
	}
	if turn := m.cfg.GetTURNServers(); turn != nil {
		username, password := m.cfg.GetTURNCredentials()
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       turn,
			Username:   username,
			Credential: password,
		})
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	return pc, nil
}

// createLink builds a fresh link for the key. Caller holds m.mu.
func (m *Manager) createLink(key LinkKey) (*Link, error) {
	pc, err := m.newPeerConnection()
	if err != nil {
		return nil, err
	}

	// Camera links negotiate audio and video; screen links video only.
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo); err != nil {
		pc.Close()
		return nil, fmt.Errorf("add video transceiver: %w", err)
	}
	if key.Kind == Camera {
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio); err != nil {
			pc.Close()
			return nil, fmt.Errorf("add audio transceiver: %w", err)
		}
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		m.sendCandidate(key.RemoteID, c.ToJSON(), key.Kind.IsScreenShare())
	})

	link := newLink(key, pc, m.logger)
	m.links[key] = link
	return link, nil
}

// OpenLink opens (or reuses) a link to a remote participant and sends
// an offer for it.
func (m *Manager) OpenLink(remoteID string, kind LinkKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := LinkKey{RemoteID: remoteID, Kind: kind}
	link, ok := m.links[key]
	if !ok {
		var err error
		if link, err = m.createLink(key); err != nil {
			return err
		}
	}

	offer, err := link.CreateOffer()
	if err != nil {
		return err
	}
	m.sendSignal(remoteID, signaling.KindOffer, offer, kind.IsScreenShare())
	return nil
}

// HandleSignal routes a relayed offer or answer to the addressed link.
func (m *Manager) HandleSignal(p signaling.SignalPayload) error {
	var sdp webrtc.SessionDescription
	if err := json.Unmarshal(p.Signal, &sdp); err != nil {
		return fmt.Errorf("decode session description: %w", err)
	}

	switch p.Kind {
	case signaling.KindOffer:
		return m.handleOffer(p.From, KindFor(p.IsScreenShare), sdp)
	case signaling.KindAnswer:
		return m.handleAnswer(p.From, KindFor(p.IsScreenShare), sdp)
	default:
		return fmt.Errorf("unknown signal kind %q", p.Kind)
	}
}

// handleOffer answers a remote offer. An offer that arrives while the
// link is mid-negotiation is a conflict: the link is torn down and
// recreated before the offer is applied (last-offer-wins).
func (m *Manager) handleOffer(from string, kind LinkKind, offer webrtc.SessionDescription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := LinkKey{RemoteID: from, Kind: kind}
	link, ok := m.links[key]
	if ok && link.State() != StateIdle && link.State() != StateStable {
		m.logger.Info("offer conflict, recreating link",
			zap.String("remote", from), zap.String("kind", kind.String()),
			zap.String("state", link.State().String()))
		link.Close()
		delete(m.links, key)
		ok = false
	}
	if !ok {
		var err error
		if link, err = m.createLink(key); err != nil {
			return err
		}
	}

	answer, err := link.ApplyRemoteOffer(offer)
	if err != nil {
		return err
	}
	m.sendSignal(from, signaling.KindAnswer, answer, kind.IsScreenShare())
	return nil
}

func (m *Manager) handleAnswer(from string, kind LinkKind, answer webrtc.SessionDescription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	link, ok := m.links[LinkKey{RemoteID: from, Kind: kind}]
	if !ok {
		m.logger.Warn("answer for unknown link", zap.String("remote", from), zap.String("kind", kind.String()))
		return nil
	}
	return link.ApplyRemoteAnswer(answer)
}

// HandleCandidate routes a relayed ICE candidate to its link, creating
// the link first when the candidate beats the offer there.
func (m *Manager) HandleCandidate(p signaling.IceCandidatePayload) error {
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal(p.Candidate, &candidate); err != nil {
		return fmt.Errorf("decode candidate: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := LinkKey{RemoteID: p.From, Kind: KindFor(p.IsScreenShare)}
	link, ok := m.links[key]
	if !ok {
		var err error
		if link, err = m.createLink(key); err != nil {
			return err
		}
	}
	link.AddRemoteCandidate(candidate)
	return nil
}

// LinkState reports the state of one link, if it exists.
func (m *Manager) LinkState(remoteID string, kind LinkKind) (LinkState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.links[LinkKey{RemoteID: remoteID, Kind: kind}]
	if !ok {
		return StateClosed, false
	}
	return link.State(), true
}

// PendingCandidates reports the queued candidate count of one link.
func (m *Manager) PendingCandidates(remoteID string, kind LinkKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if link, ok := m.links[LinkKey{RemoteID: remoteID, Kind: kind}]; ok {
		return link.PendingCandidates()
	}
	return 0
}

// ClosePeer tears down both links to a departed remote participant.
func (m *Manager) ClosePeer(remoteID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, kind := range []LinkKind{Camera, Screen} {
		key := LinkKey{RemoteID: remoteID, Kind: kind}
		if link, ok := m.links[key]; ok {
			link.Close()
			delete(m.links, key)
		}
	}
}

// CloseScreenLinks tears down every screen link, leaving all camera
// links untouched. Used when local sharing stops.
func (m *Manager) CloseScreenLinks() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, link := range m.links {
		if key.Kind == Screen {
			link.Close()
			delete(m.links, key)
		}
	}
}

// CloseAll tears down every link.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, link := range m.links {
		link.Close()
		delete(m.links, key)
	}
}
