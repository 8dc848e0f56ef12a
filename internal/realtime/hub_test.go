package realtime_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sym-studio/sym-go/internal/realtime"
)

func startHub(t *testing.T) (*realtime.Hub, *httptest.Server) {
	t.Helper()
	hub := realtime.NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))

	mux := http.NewServeMux()
	for _, ns := range []realtime.Namespace{
		realtime.NamespaceProject, realtime.NamespaceAIJobs, realtime.NamespaceNotifications,
	} {
		mux.Handle("/ws/"+string(ns), hub.Handler(ns))
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, ns realtime.Namespace) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + string(ns)
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(realtime.Message{Event: event, Payload: data}))
}

func readEvent(t *testing.T, ws *websocket.Conn) realtime.Message {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg realtime.Message
	require.NoError(t, ws.ReadJSON(&msg))
	return msg
}

func assertSilent(t *testing.T, ws *websocket.Conn) {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	var msg realtime.Message
	err := ws.ReadJSON(&msg)
	require.Error(t, err, "expected no message, got %q", msg.Event)
}

func waitForRoomSize(t *testing.T, hub *realtime.Hub, ns realtime.Namespace, room string, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return hub.RoomSize(ns, room) == want
	}, 2*time.Second, 5*time.Millisecond, "room %s never reached %d members", room, want)
}

func TestParseNamespace(t *testing.T) {
	for _, valid := range []string{"project", "ai-jobs", "notifications"} {
		ns, ok := realtime.ParseNamespace(valid)
		assert.True(t, ok)
		assert.Equal(t, valid, string(ns))
	}
	_, ok := realtime.ParseNamespace("chat")
	assert.False(t, ok)
}

func TestJobSubscribeReceivesEmit(t *testing.T) {
	hub, srv := startHub(t)
	ws := dial(t, srv, realtime.NamespaceAIJobs)

	send(t, ws, "job:subscribe", map[string]string{"jobId": "job-123"})
	waitForRoomSize(t, hub, realtime.NamespaceAIJobs, realtime.JobRoom("job-123"), 1)

	hub.EmitToJob("job-123", "job:completed", map[string]any{"jobId": "job-123", "status": "completed"})

	msg := readEvent(t, ws)
	assert.Equal(t, "job:completed", msg.Event)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, "job-123", payload["jobId"])
	assert.Equal(t, "completed", payload["status"])
}

func TestJobUnsubscribeStopsDelivery(t *testing.T) {
	hub, srv := startHub(t)
	ws := dial(t, srv, realtime.NamespaceAIJobs)

	send(t, ws, "job:subscribe", map[string]string{"jobId": "job-123"})
	waitForRoomSize(t, hub, realtime.NamespaceAIJobs, realtime.JobRoom("job-123"), 1)

	send(t, ws, "job:unsubscribe", map[string]string{"jobId": "job-123"})
	waitForRoomSize(t, hub, realtime.NamespaceAIJobs, realtime.JobRoom("job-123"), 0)

	hub.EmitToJob("job-123", "job:completed", map[string]any{"jobId": "job-123"})
	assertSilent(t, ws)
}

func TestEmitToMissingRoomIsNoop(t *testing.T) {
	hub, _ := startHub(t)
	// Must not panic or block with nobody listening.
	hub.EmitToJob("ghost", "job:completed", map[string]any{"jobId": "ghost"})
}

func TestProjectPresenceExcludesSender(t *testing.T) {
	hub, srv := startHub(t)
	room := realtime.ProjectRoom("p1")

	alice := dial(t, srv, realtime.NamespaceProject)
	send(t, alice, "user:join", map[string]string{"projectId": "p1", "userId": "alice"})
	waitForRoomSize(t, hub, realtime.NamespaceProject, room, 1)

	bob := dial(t, srv, realtime.NamespaceProject)
	send(t, bob, "user:join", map[string]string{"projectId": "p1", "userId": "bob"})
	waitForRoomSize(t, hub, realtime.NamespaceProject, room, 2)

	// Alice sees bob arrive; bob does not see his own join.
	msg := readEvent(t, alice)
	assert.Equal(t, "user:presence", msg.Event)

	var presence realtime.PresencePayload
	require.NoError(t, json.Unmarshal(msg.Payload, &presence))
	assert.Equal(t, "bob", presence.UserID)
	assert.Equal(t, "online", presence.Status)
	assert.NotEmpty(t, presence.JoinedAt)

	assertSilent(t, bob)
}

func TestDisconnectBroadcastsOffline(t *testing.T) {
	hub, srv := startHub(t)
	room := realtime.ProjectRoom("p1")

	alice := dial(t, srv, realtime.NamespaceProject)
	send(t, alice, "user:join", map[string]string{"projectId": "p1", "userId": "alice"})
	waitForRoomSize(t, hub, realtime.NamespaceProject, room, 1)

	bob := dial(t, srv, realtime.NamespaceProject)
	send(t, bob, "user:join", map[string]string{"projectId": "p1", "userId": "bob"})
	waitForRoomSize(t, hub, realtime.NamespaceProject, room, 2)

	// Drain bob's online event first.
	online := readEvent(t, alice)
	require.Equal(t, "user:presence", online.Event)

	bob.Close()
	waitForRoomSize(t, hub, realtime.NamespaceProject, room, 1)

	msg := readEvent(t, alice)
	assert.Equal(t, "user:presence", msg.Event)

	var presence realtime.PresencePayload
	require.NoError(t, json.Unmarshal(msg.Payload, &presence))
	assert.Equal(t, "bob", presence.UserID)
	assert.Equal(t, "offline", presence.Status)
}

func TestEmitToProjectReachesAllMembers(t *testing.T) {
	hub, srv := startHub(t)
	room := realtime.ProjectRoom("p1")

	alice := dial(t, srv, realtime.NamespaceProject)
	send(t, alice, "user:join", map[string]string{"projectId": "p1", "userId": "alice"})
	bob := dial(t, srv, realtime.NamespaceProject)
	send(t, bob, "user:join", map[string]string{"projectId": "p1", "userId": "bob"})
	waitForRoomSize(t, hub, realtime.NamespaceProject, room, 2)

	// Alice gets bob's join first.
	readEvent(t, alice)

	hub.EmitToProject("p1", "project:updated", map[string]any{"projectId": "p1"})

	assert.Equal(t, "project:updated", readEvent(t, alice).Event)
	assert.Equal(t, "project:updated", readEvent(t, bob).Event)
}

func TestNotificationsDeliveredToUserRoom(t *testing.T) {
	hub, srv := startHub(t)

	ws := dial(t, srv, realtime.NamespaceNotifications)
	send(t, ws, "subscribe", map[string]string{"userId": "u1"})
	waitForRoomSize(t, hub, realtime.NamespaceNotifications, realtime.UserRoom("u1"), 1)

	hub.EmitToUser("u1", "notification", map[string]any{"message": "job finished"})

	msg := readEvent(t, ws)
	assert.Equal(t, "notification", msg.Event)

	hub.EmitToUser("u2", "notification", map[string]any{"message": "not for u1"})
	assertSilent(t, ws)
}

func TestMalformedFrameIsIgnored(t *testing.T) {
	hub, srv := startHub(t)
	ws := dial(t, srv, realtime.NamespaceAIJobs)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("not json")))

	// Connection stays usable after the bad frame.
	send(t, ws, "job:subscribe", map[string]string{"jobId": "job-9"})
	waitForRoomSize(t, hub, realtime.NamespaceAIJobs, realtime.JobRoom("job-9"), 1)
}
