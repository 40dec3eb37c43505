package signaling

import "time"

// Participant is one live connection's membership in a room.
type Participant struct {
	Role Role
}

// Room holds all state for one interview session: the participant map,
// the append-only chat log, the per-question code entries and the
// shared question cursor. Rooms are owned by the Registry and are only
// ever touched from the hub goroutine, so they carry no locks.
type Room struct {
	Key string

	participants map[string]Participant
	messages     []ChatMessage
	codeState    map[string]CodeStateEntry
	questionIdx  int
	lastMsgID    int64
}

func newRoom(key string) *Room {
	return &Room{
		Key:          key,
		participants: make(map[string]Participant),
		codeState:    make(map[string]CodeStateEntry),
	}
}

// AddParticipant inserts or overwrites the participant entry.
func (r *Room) AddParticipant(connID string, role Role) {
	r.participants[connID] = Participant{Role: role}
}

// RemoveParticipant deletes the entry and reports whether it existed.
func (r *Room) RemoveParticipant(connID string) bool {
	if _, ok := r.participants[connID]; !ok {
		return false
	}
	delete(r.participants, connID)
	return true
}

// HasParticipant reports membership of a connection id.
func (r *Room) HasParticipant(connID string) bool {
	_, ok := r.participants[connID]
	return ok
}

// ParticipantCount returns the number of live members.
func (r *Room) ParticipantCount() int {
	return len(r.participants)
}

// Empty reports whether the room has no members left.
func (r *Room) Empty() bool {
	return len(r.participants) == 0
}

// Participants returns a copy of the participant map, optionally
// excluding one connection id.
func (r *Room) Participants(except string) RoomUsersPayload {
	users := make(RoomUsersPayload, len(r.participants))
	for id, p := range r.participants {
		if id == except {
			continue
		}
		users[id] = ParticipantInfo{Role: p.Role}
	}
	return users
}

// AppendMessage adds a chat entry with a timestamp-derived id. Ids are
// strictly monotonic per room even when two messages land in the same
// millisecond.
func (r *Room) AppendMessage(content string, sender Role, now time.Time) ChatMessage {
	id := now.UnixMilli()
	if id <= r.lastMsgID {
		id = r.lastMsgID + 1
	}
	r.lastMsgID = id

	msg := ChatMessage{
		ID:        id,
		Content:   content,
		Sender:    sender,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
	r.messages = append(r.messages, msg)
	return msg
}

// History returns the chat log in append order. The slice is a copy;
// entries themselves are immutable.
func (r *Room) History() []ChatMessage {
	history := make([]ChatMessage, len(r.messages))
	copy(history, r.messages)
	return history
}

// SetCode overwrites the entry for a question. Last write wins: the
// previous entry is fully replaced, never merged.
func (r *Room) SetCode(questionID, code, language, editor string, now time.Time) CodeStateEntry {
	entry := CodeStateEntry{
		Code:        code,
		Language:    language,
		LastUpdated: now.UTC().Format(time.RFC3339Nano),
		LastEditor:  editor,
	}
	r.codeState[questionID] = entry
	return entry
}

// SetLanguage switches only the language field of a question's entry,
// creating an otherwise empty entry when none exists yet.
func (r *Room) SetLanguage(questionID, language string, now time.Time) CodeStateEntry {
	entry, ok := r.codeState[questionID]
	if !ok {
		entry = CodeStateEntry{LastUpdated: now.UTC().Format(time.RFC3339Nano)}
	}
	entry.Language = language
	r.codeState[questionID] = entry
	return entry
}

// SetQuestionIndex moves the shared question cursor.
func (r *Room) SetQuestionIndex(idx int) {
	r.questionIdx = idx
}

// QuestionIndex returns the shared question cursor.
func (r *Room) QuestionIndex() int {
	return r.questionIdx
}

// CodeSnapshot returns a copy of the full code state plus the cursor,
// as delivered to a joining connection.
func (r *Room) CodeSnapshot() CodeStatePayload {
	state := make(map[string]CodeStateEntry, len(r.codeState))
	for id, entry := range r.codeState {
		state[id] = entry
	}
	return CodeStatePayload{CodeState: state, CurrentQuestionIndex: r.questionIdx}
}
