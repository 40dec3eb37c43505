package signaling

import "encoding/json"

// Message defines the envelope for all C2S (Client to Server)
// and S2C (Server to Client) websocket messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage wraps a payload value into an envelope.
func NewMessage(msgType string, payload any) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{Type: msgType, Payload: raw}, nil
}

// Client to server event types.
const (
	EventJoinRoom          = "join-room"
	EventSignal            = "signal"
	EventICECandidate      = "ice-candidate"
	EventScreenShareStatus = "screen-share-status"
	EventCodeUpdate        = "code-update"
	EventQuestionChange    = "question-change"
	EventLanguageChange    = "language-change"
	EventChatMessage       = "chat-message"
)

// Server to client event types. Signal, ICE, screen share, chat and the
// code collaboration events reuse the inbound names.
const (
	EventRoomUsers   = "room-users"
	EventUserJoined  = "user-joined"
	EventUserLeft    = "user-left"
	EventChatHistory = "chat-history"
	EventCodeState   = "code-state"
)

// Role of a participant in an interview room. The relay trusts the
// declared role; it does not enforce uniqueness per room.
type Role string

const (
	RoleRecruiter Role = "recruiter"
	RoleCandidate Role = "candidate"
)

// Valid reports whether the role is one of the two known roles.
func (r Role) Valid() bool {
	return r == RoleRecruiter || r == RoleCandidate
}

// Signal kinds carried by EventSignal.
const (
	KindOffer  = "offer"
	KindAnswer = "answer"
)

// JoinRoomPayload announces a connection's room and role.
type JoinRoomPayload struct {
	SessionKey string `json:"sessionKey"`
	Role       Role   `json:"role"`
}

// SignalPayload carries an SDP offer or answer between two connections.
// The relay stamps From with the sender's connection id; the SDP body is
// opaque to the server.
type SignalPayload struct {
	To            string          `json:"to,omitempty"`
	From          string          `json:"from,omitempty"`
	Signal        json.RawMessage `json:"signal"`
	Kind          string          `json:"kind"`
	IsScreenShare bool            `json:"isScreenShare"`
}

// IceCandidatePayload carries one ICE candidate between two connections.
type IceCandidatePayload struct {
	To            string          `json:"to,omitempty"`
	From          string          `json:"from,omitempty"`
	Candidate     json.RawMessage `json:"candidate"`
	IsScreenShare bool            `json:"isScreenShare"`
}

// ScreenShareStatusPayload is a broadcast-only sharing notification.
type ScreenShareStatusPayload struct {
	SessionKey string `json:"sessionKey"`
	IsSharing  bool   `json:"isSharing"`
}

// ScreenShareBroadcast is the fan-out form of a sharing notification.
type ScreenShareBroadcast struct {
	UserID    string `json:"userId"`
	IsSharing bool   `json:"isSharing"`
}

// CodeUpdatePayload overwrites the code entry for one question.
type CodeUpdatePayload struct {
	SessionKey           string `json:"sessionKey"`
	QuestionID           string `json:"questionId"`
	Code                 string `json:"code"`
	Language             string `json:"language"`
	CurrentQuestionIndex int    `json:"currentQuestionIndex"`
}

// QuestionChangePayload moves the room's shared question cursor.
type QuestionChangePayload struct {
	SessionKey           string `json:"sessionKey"`
	QuestionID           string `json:"questionId"`
	CurrentQuestionIndex int    `json:"currentQuestionIndex"`
}

// LanguageChangePayload switches the language of one question's entry.
type LanguageChangePayload struct {
	SessionKey           string `json:"sessionKey"`
	QuestionID           string `json:"questionId"`
	Language             string `json:"language"`
	CurrentQuestionIndex int    `json:"currentQuestionIndex"`
}

// ChatPostPayload appends a message to the room log.
type ChatPostPayload struct {
	SessionKey string `json:"sessionKey"`
	Content    string `json:"content"`
	Role       Role   `json:"role"`
}

// ParticipantInfo is the per-connection value in a room-users map.
type ParticipantInfo struct {
	Role Role `json:"role"`
}

// RoomUsersPayload maps connection ids to their declared roles. It is
// sent to a joining connection and lists the other participants.
type RoomUsersPayload map[string]ParticipantInfo

// UserJoinedPayload notifies existing participants of a new arrival.
type UserJoinedPayload struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}

// UserLeftPayload notifies remaining participants of a departure.
type UserLeftPayload struct {
	UserID string `json:"userId"`
}

// ChatMessage is one immutable entry of a room's message log.
type ChatMessage struct {
	ID        int64  `json:"id"`
	Content   string `json:"content"`
	Sender    Role   `json:"senderRole"`
	Timestamp string `json:"timestamp"`
}

// ChatBroadcast is the fan-out form of a chat message. IsOwn is always
// false on the wire; the client decides ownership by sender role.
type ChatBroadcast struct {
	ChatMessage
	IsOwn bool `json:"isOwn"`
}

// CodeStateEntry is the last-write-wins value stored per question.
type CodeStateEntry struct {
	Code        string `json:"code"`
	Language    string `json:"language"`
	LastUpdated string `json:"lastUpdated"`
	LastEditor  string `json:"lastEditor"`
}

// CodeStatePayload is the full code snapshot sent to a joining
// connection.
type CodeStatePayload struct {
	CodeState            map[string]CodeStateEntry `json:"codeState"`
	CurrentQuestionIndex int                       `json:"currentQuestionIndex"`
}

// CodeUpdateBroadcast is the fan-out form of a code update.
type CodeUpdateBroadcast struct {
	QuestionID           string `json:"questionId"`
	Code                 string `json:"code"`
	Language             string `json:"language"`
	CurrentQuestionIndex int    `json:"currentQuestionIndex"`
	Timestamp            string `json:"timestamp"`
}

// QuestionChangeBroadcast is the fan-out form of a cursor move.
type QuestionChangeBroadcast struct {
	QuestionID           string `json:"questionId"`
	CurrentQuestionIndex int    `json:"currentQuestionIndex"`
	Timestamp            string `json:"timestamp"`
}

// LanguageChangeBroadcast is the fan-out form of a language switch.
type LanguageChangeBroadcast struct {
	QuestionID           string `json:"questionId"`
	Language             string `json:"language"`
	CurrentQuestionIndex int    `json:"currentQuestionIndex"`
	Timestamp            string `json:"timestamp"`
}
