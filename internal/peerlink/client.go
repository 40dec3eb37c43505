package peerlink

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/skillsage/signaling/internal/signaling"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// RoomClient manages the websocket connection to the signaling server
// and routes server events into typed channels. It mirrors what the
// browser client does: join a room, exchange signaling, chat and code
// events, and react to joins/leaves.
type RoomClient struct {
	conn      *websocket.Conn
	serverURL string
	outgoing  chan *signaling.Message
	done      chan struct{}
	closed    bool

	// Server event channels, one per event type.
	RoomUsers       chan signaling.RoomUsersPayload
	UserJoined      chan signaling.UserJoinedPayload
	UserLeft        chan signaling.UserLeftPayload
	ChatHistory     chan []signaling.ChatMessage
	Chat            chan signaling.ChatBroadcast
	CodeState       chan signaling.CodeStatePayload
	CodeUpdates     chan signaling.CodeUpdateBroadcast
	QuestionChanges chan signaling.QuestionChangeBroadcast
	LanguageChanges chan signaling.LanguageChangeBroadcast
	Signals         chan signaling.SignalPayload
	Candidates      chan signaling.IceCandidatePayload
	ScreenShare     chan signaling.ScreenShareBroadcast
}

// NewRoomClient creates a client for the given ws:// or wss:// URL.
func NewRoomClient(serverURL string) *RoomClient {
	return &RoomClient{
		serverURL: serverURL,
		outgoing:  make(chan *signaling.Message, 32),
		done:      make(chan struct{}),

		RoomUsers:       make(chan signaling.RoomUsersPayload, 4),
		UserJoined:      make(chan signaling.UserJoinedPayload, 4),
		UserLeft:        make(chan signaling.UserLeftPayload, 4),
		ChatHistory:     make(chan []signaling.ChatMessage, 4),
		Chat:            make(chan signaling.ChatBroadcast, 32),
		CodeState:       make(chan signaling.CodeStatePayload, 4),
		CodeUpdates:     make(chan signaling.CodeUpdateBroadcast, 32),
		QuestionChanges: make(chan signaling.QuestionChangeBroadcast, 8),
		LanguageChanges: make(chan signaling.LanguageChangeBroadcast, 8),
		Signals:         make(chan signaling.SignalPayload, 32),
		Candidates:      make(chan signaling.IceCandidatePayload, 64),
		ScreenShare:     make(chan signaling.ScreenShareBroadcast, 4),
	}
}

// Connect establishes the websocket connection and starts the pumps.
func (c *RoomClient) Connect() error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	c.conn = conn
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()
	return nil
}

func (c *RoomClient) readPump() {
	defer c.conn.Close()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var msg signaling.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		c.route(&msg)
	}
}

func (c *RoomClient) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// route decodes one server event into its typed channel. Unknown or
// unparseable events are skipped.
func (c *RoomClient) route(msg *signaling.Message) {
	switch msg.Type {
	case signaling.EventRoomUsers:
		routeTo(c.RoomUsers, msg.Payload)
	case signaling.EventUserJoined:
		routeTo(c.UserJoined, msg.Payload)
	case signaling.EventUserLeft:
		routeTo(c.UserLeft, msg.Payload)
	case signaling.EventChatHistory:
		routeTo(c.ChatHistory, msg.Payload)
	case signaling.EventChatMessage:
		routeTo(c.Chat, msg.Payload)
	case signaling.EventCodeState:
		routeTo(c.CodeState, msg.Payload)
	case signaling.EventCodeUpdate:
		routeTo(c.CodeUpdates, msg.Payload)
	case signaling.EventQuestionChange:
		routeTo(c.QuestionChanges, msg.Payload)
	case signaling.EventLanguageChange:
		routeTo(c.LanguageChanges, msg.Payload)
	case signaling.EventSignal:
		routeTo(c.Signals, msg.Payload)
	case signaling.EventICECandidate:
		routeTo(c.Candidates, msg.Payload)
	case signaling.EventScreenShareStatus:
		routeTo(c.ScreenShare, msg.Payload)
	}
}

func routeTo[T any](ch chan T, payload json.RawMessage) {
	var value T
	if err := json.Unmarshal(payload, &value); err != nil {
		return
	}
	ch <- value
}

func (c *RoomClient) send(msgType string, payload any) error {
	msg, err := signaling.NewMessage(msgType, payload)
	if err != nil {
		return err
	}
	c.outgoing <- msg
	return nil
}

// Join announces the room and role for this connection.
func (c *RoomClient) Join(sessionKey string, role signaling.Role) error {
	return c.send(signaling.EventJoinRoom, signaling.JoinRoomPayload{
		SessionKey: sessionKey,
		Role:       role,
	})
}

// SendSignal relays an SDP to another connection.
func (c *RoomClient) SendSignal(to, kind string, sdp webrtc.SessionDescription, isScreenShare bool) error {
	raw, err := json.Marshal(sdp)
	if err != nil {
		return err
	}
	return c.send(signaling.EventSignal, signaling.SignalPayload{
		To:            to,
		Signal:        raw,
		Kind:          kind,
		IsScreenShare: isScreenShare,
	})
}

// SendCandidate relays an ICE candidate to another connection.
func (c *RoomClient) SendCandidate(to string, candidate webrtc.ICECandidateInit, isScreenShare bool) error {
	raw, err := json.Marshal(candidate)
	if err != nil {
		return err
	}
	return c.send(signaling.EventICECandidate, signaling.IceCandidatePayload{
		To:            to,
		Candidate:     raw,
		IsScreenShare: isScreenShare,
	})
}

// PostChat appends a message to the room's chat log.
func (c *RoomClient) PostChat(sessionKey, content string, role signaling.Role) error {
	return c.send(signaling.EventChatMessage, signaling.ChatPostPayload{
		SessionKey: sessionKey,
		Content:    content,
		Role:       role,
	})
}

// SendCodeUpdate overwrites the code entry for a question.
func (c *RoomClient) SendCodeUpdate(sessionKey, questionID, code, language string, currentQuestionIndex int) error {
	return c.send(signaling.EventCodeUpdate, signaling.CodeUpdatePayload{
		SessionKey:           sessionKey,
		QuestionID:           questionID,
		Code:                 code,
		Language:             language,
		CurrentQuestionIndex: currentQuestionIndex,
	})
}

// ChangeQuestion moves the room's shared question cursor.
func (c *RoomClient) ChangeQuestion(sessionKey, questionID string, currentQuestionIndex int) error {
	return c.send(signaling.EventQuestionChange, signaling.QuestionChangePayload{
		SessionKey:           sessionKey,
		QuestionID:           questionID,
		CurrentQuestionIndex: currentQuestionIndex,
	})
}

// ChangeLanguage switches the language of one question's entry.
func (c *RoomClient) ChangeLanguage(sessionKey, questionID, language string, currentQuestionIndex int) error {
	return c.send(signaling.EventLanguageChange, signaling.LanguageChangePayload{
		SessionKey:           sessionKey,
		QuestionID:           questionID,
		Language:             language,
		CurrentQuestionIndex: currentQuestionIndex,
	})
}

// SetScreenShareStatus notifies the room that local sharing started or
// stopped.
func (c *RoomClient) SetScreenShareStatus(sessionKey string, isSharing bool) error {
	return c.send(signaling.EventScreenShareStatus, signaling.ScreenShareStatusPayload{
		SessionKey: sessionKey,
		IsSharing:  isSharing,
	})
}

// Close shuts the connection down and stops the pumps.
func (c *RoomClient) Close() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}
