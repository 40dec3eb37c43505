package signaling

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/skillsage/signaling/internal/metrics"
)

// Event pairs an inbound message with the connection that sent it.
type Event struct {
	Client  *Client
	Message *Message
}

// Hub is the central brain of the signaling server. It owns the room
// registry and the table of live connections, and processes every
// state mutation on a single goroutine: all joins, leaves, relays and
// collaboration updates are serialized through Run's loop, so rooms
// need no locking.
type Hub struct {
	// Register is a channel for registering new clients.
	Register chan *Client

	// Unregister is a channel for unregistering clients.
	Unregister chan *Client

	// Inbound carries decoded client events into the hub loop.
	Inbound chan *Event

	registry *Registry
	clients  map[string]*Client
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewHub creates a hub around an injected registry.
func NewHub(registry *Registry, m *metrics.Metrics, logger *zap.Logger) *Hub {
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Inbound:    make(chan *Event),
		registry:   registry,
		clients:    make(map[string]*Client),
		metrics:    m,
		logger:     logger,
	}
}

// Run starts the hub's main processing loop. This is the single
// goroutine that safely manages all state (rooms, clients).
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.Register:
			h.register(client)

		case client := <-h.Unregister:
			h.unregister(client)

		case event := <-h.Inbound:
			h.dispatch(event)
		}
	}
}

func (h *Hub) register(c *Client) {
	h.clients[c.ID] = c
	h.metrics.ActiveConnections.Set(float64(len(h.clients)))
	h.logger.Info("client connected", zap.String("conn", c.ID))
}

func (h *Hub) unregister(c *Client) {
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	delete(h.clients, c.ID)
	h.leaveRoom(c)
	close(c.Send)
	h.metrics.ActiveConnections.Set(float64(len(h.clients)))
	h.logger.Info("client disconnected", zap.String("conn", c.ID))
}

// dispatch routes one inbound event to its handler. Any failure here is
// isolated to the sending connection: malformed payloads are dropped
// without mutating room state, and nothing ever escalates to a process
// crash.
func (h *Hub) dispatch(ev *Event) {
	c, msg := ev.Client, ev.Message
	h.metrics.EventsTotal.WithLabelValues(msg.Type).Inc()

	switch msg.Type {
	case EventJoinRoom:
		var p JoinRoomPayload
		if !h.decode(c, msg, &p) || p.SessionKey == "" || !p.Role.Valid() {
			return
		}
		h.handleJoin(c, p)

	case EventSignal:
		var p SignalPayload
		if !h.decode(c, msg, &p) || p.To == "" || len(p.Signal) == 0 {
			return
		}
		if p.Kind != KindOffer && p.Kind != KindAnswer {
			h.logger.Warn("dropping signal with unknown kind", zap.String("conn", c.ID), zap.String("kind", p.Kind))
			return
		}
		h.handleSignal(c, p)

	case EventICECandidate:
		var p IceCandidatePayload
		if !h.decode(c, msg, &p) || p.To == "" || len(p.Candidate) == 0 {
			return
		}
		h.handleIceCandidate(c, p)

	case EventScreenShareStatus:
		var p ScreenShareStatusPayload
		if !h.decode(c, msg, &p) || p.SessionKey == "" {
			return
		}
		h.handleScreenShareStatus(c, p)

	case EventCodeUpdate:
		var p CodeUpdatePayload
		if !h.decode(c, msg, &p) || p.SessionKey == "" || p.QuestionID == "" {
			return
		}
		h.handleCodeUpdate(c, p)

	case EventQuestionChange:
		var p QuestionChangePayload
		if !h.decode(c, msg, &p) || p.SessionKey == "" || p.QuestionID == "" {
			return
		}
		h.handleQuestionChange(c, p)

	case EventLanguageChange:
		var p LanguageChangePayload
		if !h.decode(c, msg, &p) || p.SessionKey == "" || p.QuestionID == "" || p.Language == "" {
			return
		}
		h.handleLanguageChange(c, p)

	case EventChatMessage:
		var p ChatPostPayload
		if !h.decode(c, msg, &p) || p.SessionKey == "" || p.Content == "" || !p.Role.Valid() {
			return
		}
		h.handleChatMessage(c, p)

	default:
		h.logger.Warn("unknown event type", zap.String("conn", c.ID), zap.String("type", msg.Type))
	}
}

// handleJoin attaches the connection to a room and delivers the full
// join bundle: user-joined to the others, then room-users, chat-history
// and code-state to the new arrival. All four go out before any later
// event for this room is processed.
func (h *Hub) handleJoin(c *Client, p JoinRoomPayload) {
	// A connection lives in at most one room; re-joining moves it.
	if c.SessionKey != "" && c.SessionKey != p.SessionKey {
		h.leaveRoom(c)
	}

	room := h.registry.EnsureRoom(p.SessionKey)
	room.AddParticipant(c.ID, p.Role)
	c.SessionKey = p.SessionKey
	c.Role = p.Role

	h.broadcast(room, EventUserJoined, UserJoinedPayload{UserID: c.ID, Role: p.Role}, c.ID)

	h.send(c, EventRoomUsers, room.Participants(c.ID))
	h.send(c, EventChatHistory, room.History())
	h.send(c, EventCodeState, room.CodeSnapshot())

	h.metrics.ActiveRooms.Set(float64(h.registry.Len()))
	h.logger.Info("participant joined",
		zap.String("conn", c.ID),
		zap.String("session", p.SessionKey),
		zap.String("role", string(p.Role)),
		zap.Int("participants", room.ParticipantCount()))
}

// leaveRoom removes the connection from its current room, notifies the
// remaining participants and garbage-collects the room once empty. It
// is idempotent and tolerates rooms that are already gone, since
// disconnects can race with cleanup.
func (h *Hub) leaveRoom(c *Client) {
	if c.SessionKey == "" {
		return
	}
	sessionKey := c.SessionKey
	c.SessionKey = ""
	c.Role = ""

	room, ok := h.registry.Get(sessionKey)
	if !ok {
		return
	}
	if !room.RemoveParticipant(c.ID) {
		return
	}

	h.broadcast(room, EventUserLeft, UserLeftPayload{UserID: c.ID}, c.ID)

	if h.registry.DestroyRoomIfEmpty(sessionKey) {
		h.logger.Info("room destroyed", zap.String("session", sessionKey))
	}
	h.metrics.ActiveRooms.Set(float64(h.registry.Len()))
}

// handleSignal forwards an SDP payload verbatim to the addressed
// connection. The relay is a dumb pipe: it stamps the sender's id and
// preserves the screen-share flag so the receiver can route the signal
// to the correct peer link, but never inspects the SDP itself.
func (h *Hub) handleSignal(c *Client, p SignalPayload) {
	target, ok := h.clients[p.To]
	if !ok {
		// Dead target: drop silently, client-side timeouts govern retry.
		h.metrics.SignalsDropped.Inc()
		return
	}
	h.send(target, EventSignal, SignalPayload{
		From:          c.ID,
		Signal:        p.Signal,
		Kind:          p.Kind,
		IsScreenShare: p.IsScreenShare,
	})
	h.metrics.SignalsRelayed.Inc()
}

// handleIceCandidate forwards one ICE candidate to the addressed
// connection, tagged with the sender's id and screen-share flag.
func (h *Hub) handleIceCandidate(c *Client, p IceCandidatePayload) {
	target, ok := h.clients[p.To]
	if !ok {
		h.metrics.SignalsDropped.Inc()
		return
	}
	h.send(target, EventICECandidate, IceCandidatePayload{
		From:          c.ID,
		Candidate:     p.Candidate,
		IsScreenShare: p.IsScreenShare,
	})
	h.metrics.SignalsRelayed.Inc()
}

// handleScreenShareStatus notifies the rest of the room; nothing is
// stored.
func (h *Hub) handleScreenShareStatus(c *Client, p ScreenShareStatusPayload) {
	room, ok := h.registry.Get(p.SessionKey)
	if !ok {
		return
	}
	h.broadcast(room, EventScreenShareStatus, ScreenShareBroadcast{UserID: c.ID, IsSharing: p.IsSharing}, c.ID)
}

// handleCodeUpdate overwrites the question's entry (last write wins)
// and fans the new value out to everyone in the room, sender included.
func (h *Hub) handleCodeUpdate(c *Client, p CodeUpdatePayload) {
	room, ok := h.registry.Get(p.SessionKey)
	if !ok {
		return
	}
	entry := room.SetCode(p.QuestionID, p.Code, p.Language, c.ID, time.Now())

	h.broadcast(room, EventCodeUpdate, CodeUpdateBroadcast{
		QuestionID:           p.QuestionID,
		Code:                 p.Code,
		Language:             p.Language,
		CurrentQuestionIndex: p.CurrentQuestionIndex,
		Timestamp:            entry.LastUpdated,
	}, "")
}

// handleQuestionChange moves the shared cursor and fans it out.
func (h *Hub) handleQuestionChange(c *Client, p QuestionChangePayload) {
	room, ok := h.registry.Get(p.SessionKey)
	if !ok {
		return
	}
	room.SetQuestionIndex(p.CurrentQuestionIndex)

	h.broadcast(room, EventQuestionChange, QuestionChangeBroadcast{
		QuestionID:           p.QuestionID,
		CurrentQuestionIndex: p.CurrentQuestionIndex,
		Timestamp:            time.Now().UTC().Format(time.RFC3339Nano),
	}, "")
}

// handleLanguageChange switches only the language of the entry and
// fans it out.
func (h *Hub) handleLanguageChange(c *Client, p LanguageChangePayload) {
	room, ok := h.registry.Get(p.SessionKey)
	if !ok {
		return
	}
	room.SetLanguage(p.QuestionID, p.Language, time.Now())

	h.broadcast(room, EventLanguageChange, LanguageChangeBroadcast{
		QuestionID:           p.QuestionID,
		Language:             p.Language,
		CurrentQuestionIndex: p.CurrentQuestionIndex,
		Timestamp:            time.Now().UTC().Format(time.RFC3339Nano),
	}, "")
}

// handleChatMessage appends to the room log and fans the entry out to
// every participant, sender included.
func (h *Hub) handleChatMessage(c *Client, p ChatPostPayload) {
	room, ok := h.registry.Get(p.SessionKey)
	if !ok {
		return
	}
	msg := room.AppendMessage(p.Content, p.Role, time.Now())
	h.metrics.ChatMessagesTotal.Inc()

	h.broadcast(room, EventChatMessage, ChatBroadcast{ChatMessage: msg, IsOwn: false}, "")
}

// broadcast fans a payload out to every participant of a room except
// the excluded connection id (empty string excludes nobody).
func (h *Hub) broadcast(room *Room, msgType string, payload any, except string) {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		h.logger.Error("encode broadcast", zap.String("type", msgType), zap.Error(err))
		return
	}
	for id := range room.Participants("") {
		if id == except {
			continue
		}
		if target, ok := h.clients[id]; ok {
			h.trySend(target, msg)
		}
	}
}

// send delivers one payload to one connection, best effort.
func (h *Hub) send(c *Client, msgType string, payload any) {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		h.logger.Error("encode message", zap.String("type", msgType), zap.Error(err))
		return
	}
	h.trySend(c, msg)
}

// trySend is non-blocking: a connection whose send buffer is full loses
// the message rather than stalling the hub loop. Delivery is
// fire-and-forget, at most once per recipient.
func (h *Hub) trySend(c *Client, msg *Message) {
	select {
	case c.Send <- msg:
	default:
		h.logger.Warn("send buffer full, dropping message",
			zap.String("conn", c.ID), zap.String("type", msg.Type))
	}
}

// decode unmarshals an event payload, logging and rejecting malformed
// input without touching room state.
func (h *Hub) decode(c *Client, msg *Message, out any) bool {
	if len(msg.Payload) == 0 {
		h.logger.Warn("event without payload", zap.String("conn", c.ID), zap.String("type", msg.Type))
		return false
	}
	if err := json.Unmarshal(msg.Payload, out); err != nil {
		h.logger.Warn("malformed payload",
			zap.String("conn", c.ID), zap.String("type", msg.Type), zap.Error(err))
		return false
	}
	return true
}
