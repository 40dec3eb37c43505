package signaling

import (
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skillsage/signaling/internal/metrics"
)

// Hub tests drive the handlers synchronously, exactly as the single
// Run goroutine would, and observe deliveries on the buffered client
// send channels.

func newTestHub() *Hub {
	return NewHub(NewRegistry(), metrics.New(prometheus.NewRegistry()), zap.NewNop())
}

func newTestClient(h *Hub, id string) *Client {
	c := &Client{
		ID:     id,
		Hub:    h,
		Send:   make(chan *Message, 64),
		Logger: zap.NewNop(),
	}
	h.register(c)
	return c
}

func dispatchPayload(t *testing.T, h *Hub, c *Client, msgType string, payload any) {
	t.Helper()
	msg, err := NewMessage(msgType, payload)
	require.NoError(t, err)
	h.dispatch(&Event{Client: c, Message: msg})
}

func join(t *testing.T, h *Hub, c *Client, sessionKey string, role Role) {
	t.Helper()
	dispatchPayload(t, h, c, EventJoinRoom, JoinRoomPayload{SessionKey: sessionKey, Role: role})
}

// recv pops the next delivered message or fails; delivery is
// synchronous, so an empty channel means nothing was sent.
func recv(t *testing.T, c *Client) *Message {
	t.Helper()
	select {
	case msg := <-c.Send:
		return msg
	default:
		t.Fatalf("client %s: no message delivered", c.ID)
		return nil
	}
}

func recvAs[T any](t *testing.T, c *Client, wantType string) T {
	t.Helper()
	msg := recv(t, c)
	require.Equal(t, wantType, msg.Type)
	var payload T
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	return payload
}

func assertNoMessage(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.Send:
		t.Fatalf("client %s: unexpected %s message", c.ID, msg.Type)
	default:
	}
}

func drain(c *Client) {
	for {
		select {
		case <-c.Send:
		default:
			return
		}
	}
}

func TestJoinNotifiesPeersAndDeliversSnapshot(t *testing.T) {
	h := newTestHub()
	r := newTestClient(h, "conn-r")
	c := newTestClient(h, "conn-c")

	join(t, h, r, "i1", RoleRecruiter)
	drain(r)

	join(t, h, c, "i1", RoleCandidate)

	// The recruiter learns about the candidate.
	joined := recvAs[UserJoinedPayload](t, r, EventUserJoined)
	assert.Equal(t, "conn-c", joined.UserID)
	assert.Equal(t, RoleCandidate, joined.Role)

	// The candidate gets the other participants, then history, then code.
	users := recvAs[RoomUsersPayload](t, c, EventRoomUsers)
	require.Len(t, users, 1)
	assert.Equal(t, RoleRecruiter, users["conn-r"].Role)

	history := recvAs[[]ChatMessage](t, c, EventChatHistory)
	assert.Empty(t, history)

	state := recvAs[CodeStatePayload](t, c, EventCodeState)
	assert.Empty(t, state.CodeState)
	assert.Equal(t, 0, state.CurrentQuestionIndex)
}

func TestChatBroadcastReachesEveryoneWithGrowingIDs(t *testing.T) {
	h := newTestHub()
	r := newTestClient(h, "conn-r")
	c := newTestClient(h, "conn-c")
	join(t, h, r, "i1", RoleRecruiter)
	join(t, h, c, "i1", RoleCandidate)
	drain(r)
	drain(c)

	dispatchPayload(t, h, c, EventChatMessage, ChatPostPayload{
		SessionKey: "i1", Content: "hello", Role: RoleCandidate,
	})

	forR := recvAs[ChatBroadcast](t, r, EventChatMessage)
	forC := recvAs[ChatBroadcast](t, c, EventChatMessage)
	assert.Equal(t, "hello", forR.Content)
	assert.Equal(t, RoleCandidate, forR.Sender)
	assert.False(t, forR.IsOwn)
	assert.Equal(t, forR.ChatMessage, forC.ChatMessage)

	dispatchPayload(t, h, r, EventChatMessage, ChatPostPayload{
		SessionKey: "i1", Content: "hi", Role: RoleRecruiter,
	})
	second := recvAs[ChatBroadcast](t, r, EventChatMessage)
	assert.Greater(t, second.ID, forR.ID)
}

func TestCodeUpdateLastWriteWinsForNewJoiner(t *testing.T) {
	h := newTestHub()
	r := newTestClient(h, "conn-r")
	c := newTestClient(h, "conn-c")
	join(t, h, r, "i1", RoleRecruiter)
	join(t, h, c, "i1", RoleCandidate)
	drain(r)
	drain(c)

	dispatchPayload(t, h, r, EventCodeUpdate, CodeUpdatePayload{
		SessionKey: "i1", QuestionID: "q1", Code: "print(1)", Language: "python",
	})
	dispatchPayload(t, h, c, EventCodeUpdate, CodeUpdatePayload{
		SessionKey: "i1", QuestionID: "q1", Code: "print(2)", Language: "python",
	})

	// Both broadcasts include the sender.
	first := recvAs[CodeUpdateBroadcast](t, r, EventCodeUpdate)
	assert.Equal(t, "print(1)", first.Code)
	second := recvAs[CodeUpdateBroadcast](t, r, EventCodeUpdate)
	assert.Equal(t, "print(2)", second.Code)

	d := newTestClient(h, "conn-d")
	join(t, h, d, "i1", RoleRecruiter)
	recvAs[RoomUsersPayload](t, d, EventRoomUsers)
	recvAs[[]ChatMessage](t, d, EventChatHistory)
	state := recvAs[CodeStatePayload](t, d, EventCodeState)

	entry, ok := state.CodeState["q1"]
	require.True(t, ok)
	assert.Equal(t, "print(2)", entry.Code)
	assert.Equal(t, "python", entry.Language)
	assert.Equal(t, "conn-c", entry.LastEditor)
}

func TestSignalRelayedToTargetOnly(t *testing.T) {
	h := newTestHub()
	r := newTestClient(h, "conn-r")
	c := newTestClient(h, "conn-c")
	x := newTestClient(h, "conn-x")
	join(t, h, r, "i1", RoleRecruiter)
	join(t, h, c, "i1", RoleCandidate)
	join(t, h, x, "i2", RoleRecruiter)
	drain(r)
	drain(c)
	drain(x)

	sdp := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	dispatchPayload(t, h, r, EventSignal, SignalPayload{
		To: "conn-c", Signal: sdp, Kind: KindOffer, IsScreenShare: false,
	})

	relayed := recvAs[SignalPayload](t, c, EventSignal)
	assert.Equal(t, "conn-r", relayed.From)
	assert.Equal(t, KindOffer, relayed.Kind)
	assert.False(t, relayed.IsScreenShare)
	assert.JSONEq(t, string(sdp), string(relayed.Signal))

	assertNoMessage(t, c)
	assertNoMessage(t, r)
	assertNoMessage(t, x)
}

func TestSignalFromIsStampedByServer(t *testing.T) {
	h := newTestHub()
	r := newTestClient(h, "conn-r")
	c := newTestClient(h, "conn-c")
	join(t, h, r, "i1", RoleRecruiter)
	join(t, h, c, "i1", RoleCandidate)
	drain(r)
	drain(c)

	// A spoofed from field is overwritten with the real sender id.
	dispatchPayload(t, h, r, EventSignal, SignalPayload{
		To: "conn-c", From: "someone-else", Signal: json.RawMessage(`{}`), Kind: KindAnswer,
	})
	relayed := recvAs[SignalPayload](t, c, EventSignal)
	assert.Equal(t, "conn-r", relayed.From)
}

func TestIceCandidateRelayPreservesScreenShareFlag(t *testing.T) {
	h := newTestHub()
	r := newTestClient(h, "conn-r")
	c := newTestClient(h, "conn-c")
	join(t, h, r, "i1", RoleRecruiter)
	join(t, h, c, "i1", RoleCandidate)
	drain(r)
	drain(c)

	candidate := json.RawMessage(`{"candidate":"candidate:1 1 UDP 1 127.0.0.1 1 typ host"}`)
	dispatchPayload(t, h, c, EventICECandidate, IceCandidatePayload{
		To: "conn-r", Candidate: candidate, IsScreenShare: true,
	})

	relayed := recvAs[IceCandidatePayload](t, r, EventICECandidate)
	assert.Equal(t, "conn-c", relayed.From)
	assert.True(t, relayed.IsScreenShare)
	assert.JSONEq(t, string(candidate), string(relayed.Candidate))
}

func TestSignalToDeadTargetIsDroppedSilently(t *testing.T) {
	h := newTestHub()
	r := newTestClient(h, "conn-r")
	join(t, h, r, "i1", RoleRecruiter)
	drain(r)

	dispatchPayload(t, h, r, EventSignal, SignalPayload{
		To: "gone", Signal: json.RawMessage(`{}`), Kind: KindOffer,
	})
	assertNoMessage(t, r)
}

func TestScreenShareStatusExcludesSender(t *testing.T) {
	h := newTestHub()
	r := newTestClient(h, "conn-r")
	c := newTestClient(h, "conn-c")
	join(t, h, r, "i1", RoleRecruiter)
	join(t, h, c, "i1", RoleCandidate)
	drain(r)
	drain(c)

	dispatchPayload(t, h, c, EventScreenShareStatus, ScreenShareStatusPayload{
		SessionKey: "i1", IsSharing: true,
	})

	status := recvAs[ScreenShareBroadcast](t, r, EventScreenShareStatus)
	assert.Equal(t, "conn-c", status.UserID)
	assert.True(t, status.IsSharing)
	assertNoMessage(t, c)
}

func TestQuestionAndLanguageChangeBroadcasts(t *testing.T) {
	h := newTestHub()
	r := newTestClient(h, "conn-r")
	c := newTestClient(h, "conn-c")
	join(t, h, r, "i1", RoleRecruiter)
	join(t, h, c, "i1", RoleCandidate)
	drain(r)
	drain(c)

	dispatchPayload(t, h, r, EventQuestionChange, QuestionChangePayload{
		SessionKey: "i1", QuestionID: "q2", CurrentQuestionIndex: 1,
	})
	change := recvAs[QuestionChangeBroadcast](t, c, EventQuestionChange)
	assert.Equal(t, "q2", change.QuestionID)
	assert.Equal(t, 1, change.CurrentQuestionIndex)
	drain(r)

	dispatchPayload(t, h, c, EventLanguageChange, LanguageChangePayload{
		SessionKey: "i1", QuestionID: "q2", Language: "go", CurrentQuestionIndex: 1,
	})
	lang := recvAs[LanguageChangeBroadcast](t, r, EventLanguageChange)
	assert.Equal(t, "go", lang.Language)
	drain(c)

	// A late joiner sees both the cursor and the language-only entry.
	d := newTestClient(h, "conn-d")
	join(t, h, d, "i1", RoleCandidate)
	recvAs[RoomUsersPayload](t, d, EventRoomUsers)
	recvAs[[]ChatMessage](t, d, EventChatHistory)
	state := recvAs[CodeStatePayload](t, d, EventCodeState)
	assert.Equal(t, 1, state.CurrentQuestionIndex)
	assert.Equal(t, "go", state.CodeState["q2"].Language)
	assert.Empty(t, state.CodeState["q2"].Code)
}

func TestUnknownSessionKeyMutationsAreNoOps(t *testing.T) {
	h := newTestHub()
	r := newTestClient(h, "conn-r")
	join(t, h, r, "i1", RoleRecruiter)
	drain(r)

	dispatchPayload(t, h, r, EventChatMessage, ChatPostPayload{
		SessionKey: "never-joined", Content: "x", Role: RoleRecruiter,
	})
	dispatchPayload(t, h, r, EventCodeUpdate, CodeUpdatePayload{
		SessionKey: "never-joined", QuestionID: "q1", Code: "x", Language: "python",
	})
	dispatchPayload(t, h, r, EventQuestionChange, QuestionChangePayload{
		SessionKey: "never-joined", QuestionID: "q1",
	})

	assertNoMessage(t, r)
	assert.Equal(t, 1, h.registry.Len(), "mutations must not create rooms")
}

func TestMalformedPayloadsAreDroppedWithoutMutation(t *testing.T) {
	h := newTestHub()
	r := newTestClient(h, "conn-r")

	// Invalid JSON payload.
	h.dispatch(&Event{Client: r, Message: &Message{Type: EventJoinRoom, Payload: json.RawMessage(`{"broken`)}})
	// Missing required fields.
	dispatchPayload(t, h, r, EventJoinRoom, JoinRoomPayload{Role: RoleRecruiter})
	dispatchPayload(t, h, r, EventJoinRoom, JoinRoomPayload{SessionKey: "i1", Role: "manager"})
	dispatchPayload(t, h, r, EventChatMessage, ChatPostPayload{SessionKey: "i1", Role: RoleRecruiter})
	// Missing payload entirely.
	h.dispatch(&Event{Client: r, Message: &Message{Type: EventCodeUpdate}})

	assertNoMessage(t, r)
	assert.Equal(t, 0, h.registry.Len())
	assert.Empty(t, r.SessionKey)
}

func TestUnknownEventTypeIsIgnored(t *testing.T) {
	h := newTestHub()
	r := newTestClient(h, "conn-r")
	h.dispatch(&Event{Client: r, Message: &Message{Type: "no-such-event", Payload: json.RawMessage(`{}`)}})
	assertNoMessage(t, r)
}

func TestLeaveNotifiesAndDestroysEmptyRoom(t *testing.T) {
	h := newTestHub()
	r := newTestClient(h, "conn-r")
	c := newTestClient(h, "conn-c")
	join(t, h, r, "i1", RoleRecruiter)
	join(t, h, c, "i1", RoleCandidate)
	drain(r)
	drain(c)

	h.unregister(c)
	left := recvAs[UserLeftPayload](t, r, EventUserLeft)
	assert.Equal(t, "conn-c", left.UserID)
	assert.Equal(t, 1, h.registry.Len())

	h.unregister(r)
	assert.Equal(t, 0, h.registry.Len())

	// Double unregister must be a harmless no-op.
	h.unregister(r)
}

func TestRoomRecreatedFreshAfterEveryoneLeft(t *testing.T) {
	h := newTestHub()
	r := newTestClient(h, "conn-r")
	c := newTestClient(h, "conn-c")
	join(t, h, r, "i1", RoleRecruiter)
	join(t, h, c, "i1", RoleCandidate)
	drain(r)
	drain(c)

	dispatchPayload(t, h, c, EventChatMessage, ChatPostPayload{
		SessionKey: "i1", Content: "hello", Role: RoleCandidate,
	})
	h.unregister(r)
	h.unregister(c)
	require.Equal(t, 0, h.registry.Len())

	e := newTestClient(h, "conn-e")
	join(t, h, e, "i1", RoleRecruiter)

	users := recvAs[RoomUsersPayload](t, e, EventRoomUsers)
	assert.Empty(t, users)
	history := recvAs[[]ChatMessage](t, e, EventChatHistory)
	assert.Empty(t, history)
}

func TestRejoinMovesConnectionBetweenRooms(t *testing.T) {
	h := newTestHub()
	r := newTestClient(h, "conn-r")
	c := newTestClient(h, "conn-c")
	join(t, h, r, "i1", RoleRecruiter)
	join(t, h, c, "i1", RoleCandidate)
	drain(r)
	drain(c)

	join(t, h, c, "i2", RoleCandidate)

	left := recvAs[UserLeftPayload](t, r, EventUserLeft)
	assert.Equal(t, "conn-c", left.UserID)
	assert.Equal(t, "i2", c.SessionKey)

	room, ok := h.registry.Get("i1")
	require.True(t, ok)
	assert.False(t, room.HasParticipant("conn-c"))
}

func TestParticipantCountMatchesJoinsMinusLeaves(t *testing.T) {
	h := newTestHub()
	ids := []string{"a", "b", "c", "d"}
	clients := make(map[string]*Client, len(ids))
	for _, id := range ids {
		clients[id] = newTestClient(h, id)
		join(t, h, clients[id], "i1", RoleCandidate)
	}

	room, ok := h.registry.Get("i1")
	require.True(t, ok)
	require.Equal(t, 4, room.ParticipantCount())

	h.unregister(clients["b"])
	h.unregister(clients["b"]) // duplicate leave for the same id
	assert.Equal(t, 3, room.ParticipantCount())

	h.unregister(clients["a"])
	h.unregister(clients["c"])
	assert.Equal(t, 1, room.ParticipantCount())

	h.unregister(clients["d"])
	assert.Equal(t, 0, h.registry.Len())
}
