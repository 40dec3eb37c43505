package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skillsage/signaling/internal/config"
	"github.com/skillsage/signaling/internal/metrics"
	"github.com/skillsage/signaling/internal/peerlink"
	"github.com/skillsage/signaling/internal/signaling"
)

const recvTimeout = 2 * time.Second

func startTestServer(t *testing.T, cfg *config.Config) (srv *httptest.Server, wsURL string) {
	t.Helper()

	logger := zap.NewNop()
	registry := prometheus.NewRegistry()
	hub := signaling.NewHub(signaling.NewRegistry(), metrics.New(registry), logger)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv = httptest.NewServer(NewRouter(hub, cfg, registry, logger))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func connect(t *testing.T, wsURL string) *peerlink.RoomClient {
	t.Helper()
	client := peerlink.NewRoomClient(wsURL)
	require.NoError(t, client.Connect())
	t.Cleanup(client.Close)
	return client
}

func recvChan[T any](t *testing.T, ch chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(recvTimeout):
		t.Fatalf("timed out waiting for %s", what)
		var zero T
		return zero
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := startTestServer(t, &config.Config{AllowedOrigins: []string{"*"}})

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := startTestServer(t, &config.Config{AllowedOrigins: []string{"*"}})

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUpgradeRejectsDisallowedOrigin(t *testing.T) {
	_, wsURL := startTestServer(t, &config.Config{AllowedOrigins: []string{"https://app.example.com"}})

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if conn != nil {
		conn.Close()
	}
	if resp != nil {
		resp.Body.Close()
	}
	assert.Error(t, err)
}

func TestInterviewSessionEndToEnd(t *testing.T) {
	_, wsURL := startTestServer(t, &config.Config{AllowedOrigins: []string{"*"}})

	recruiter := connect(t, wsURL)
	require.NoError(t, recruiter.Join("sess-1", signaling.RoleRecruiter))
	assert.Empty(t, recvChan(t, recruiter.RoomUsers, "recruiter room-users"))
	recvChan(t, recruiter.ChatHistory, "recruiter chat-history")
	recvChan(t, recruiter.CodeState, "recruiter code-state")

	candidate := connect(t, wsURL)
	require.NoError(t, candidate.Join("sess-1", signaling.RoleCandidate))

	// The recruiter learns the candidate's connection id and vice versa.
	joined := recvChan(t, recruiter.UserJoined, "user-joined")
	assert.Equal(t, signaling.RoleCandidate, joined.Role)
	candidateID := joined.UserID

	users := recvChan(t, candidate.RoomUsers, "candidate room-users")
	require.Len(t, users, 1)
	var recruiterID string
	for id, info := range users {
		recruiterID = id
		assert.Equal(t, signaling.RoleRecruiter, info.Role)
	}
	recvChan(t, candidate.ChatHistory, "candidate chat-history")
	recvChan(t, candidate.CodeState, "candidate code-state")

	// Chat reaches both sides with the same id and content.
	require.NoError(t, candidate.PostChat("sess-1", "hello", signaling.RoleCandidate))
	forRecruiter := recvChan(t, recruiter.Chat, "recruiter chat")
	forCandidate := recvChan(t, candidate.Chat, "candidate chat")
	assert.Equal(t, "hello", forRecruiter.Content)
	assert.Equal(t, forRecruiter.ID, forCandidate.ID)
	assert.False(t, forRecruiter.IsOwn)

	// Code update fans out and lands in a later joiner's snapshot.
	require.NoError(t, candidate.SendCodeUpdate("sess-1", "q1", "print(42)", "python", 0))
	update := recvChan(t, recruiter.CodeUpdates, "code update")
	assert.Equal(t, "print(42)", update.Code)
	recvChan(t, candidate.CodeUpdates, "candidate's own code update")

	// SDP relay is targeted and stamped with the real sender id.
	sdp := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0\r\n"}
	require.NoError(t, recruiter.SendSignal(candidateID, signaling.KindOffer, sdp, false))
	relayed := recvChan(t, candidate.Signals, "relayed signal")
	assert.Equal(t, recruiterID, relayed.From)
	assert.Equal(t, signaling.KindOffer, relayed.Kind)

	require.NoError(t, candidate.SendCandidate(recruiterID, webrtc.ICECandidateInit{
		Candidate: "candidate:1 1 udp 2122252543 127.0.0.1 50000 typ host",
	}, true))
	ice := recvChan(t, recruiter.Candidates, "relayed candidate")
	assert.Equal(t, candidateID, ice.From)
	assert.True(t, ice.IsScreenShare)

	// Screen-share status reaches the other side only.
	require.NoError(t, candidate.SetScreenShareStatus("sess-1", true))
	status := recvChan(t, recruiter.ScreenShare, "screen-share status")
	assert.Equal(t, candidateID, status.UserID)
	assert.True(t, status.IsSharing)

	// Disconnecting the candidate produces user-left for the recruiter.
	candidate.Close()
	left := recvChan(t, recruiter.UserLeft, "user-left")
	assert.Equal(t, candidateID, left.UserID)
}

func TestRoomStateDiscardedWhenLastParticipantLeaves(t *testing.T) {
	_, wsURL := startTestServer(t, &config.Config{AllowedOrigins: []string{"*"}})

	first := connect(t, wsURL)
	require.NoError(t, first.Join("sess-2", signaling.RoleRecruiter))
	recvChan(t, first.RoomUsers, "room-users")
	recvChan(t, first.ChatHistory, "chat-history")
	recvChan(t, first.CodeState, "code-state")

	require.NoError(t, first.PostChat("sess-2", "ephemeral", signaling.RoleRecruiter))
	recvChan(t, first.Chat, "chat echo")
	first.Close()

	// Give the server a moment to process the disconnect.
	time.Sleep(200 * time.Millisecond)

	// The same session key now yields a brand-new, empty room.
	second := connect(t, wsURL)
	require.NoError(t, second.Join("sess-2", signaling.RoleCandidate))
	assert.Empty(t, recvChan(t, second.RoomUsers, "room-users"))
	assert.Empty(t, recvChan(t, second.ChatHistory, "chat-history"))
	state := recvChan(t, second.CodeState, "code-state")
	assert.Empty(t, state.CodeState)
}
