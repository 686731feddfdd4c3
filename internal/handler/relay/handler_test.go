package relay

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	relayModel "github.com/scarface-loin/Wavy/internal/model/relay"
)

func setupRouter(t *testing.T) (*httptest.Server, *Server) {
	t.Helper()
	srv, _ := newTestServer(t, Options{BacklogLimit: 20, EchoSender: true, SendBuffer: 16, MaxMessageBytes: 4096})
	r := chi.NewRouter()
	srv.RegisterRoutes(r)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts, srv
}

func dial(t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readType(t *testing.T, ws *websocket.Conn, v any) string {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	var head struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(data, &head))
	if v != nil {
		require.NoError(t, json.Unmarshal(data, v))
	}
	return head.Type
}

func TestWebSocketRelaysGestureBetweenParticipants(t *testing.T) {
	ts, srv := setupRouter(t)

	ana := dial(t, ts, "/room/ROOM1")
	require.NoError(t, ana.WriteJSON(map[string]any{"type": "join", "username": "Ana", "roomId": "ROOM1"}))
	assert.Equal(t, relayModel.TypeHistory, readType(t, ana, nil))
	assert.Equal(t, relayModel.TypeJoined, readType(t, ana, nil))

	bo := dial(t, ts, "/ws")
	require.NoError(t, bo.WriteJSON(map[string]any{"type": "join", "username": "Bo", "roomId": "room1"}))
	assert.Equal(t, relayModel.TypeHistory, readType(t, bo, nil))
	var joined relayModel.Joined
	assert.Equal(t, relayModel.TypeJoined, readType(t, bo, &joined))
	assert.Len(t, joined.Participants, 2)

	var presence relayModel.Presence
	assert.Equal(t, relayModel.TypeParticipantJoined, readType(t, ana, &presence))
	assert.Equal(t, "Bo", presence.Username)

	require.NoError(t, bo.WriteJSON(map[string]any{"type": "gesture", "gesture": "Merci", "confidence": 0.8, "username": "Eve"}))
	var ev relayModel.Event
	assert.Equal(t, relayModel.TypeGesture, readType(t, ana, &ev))
	assert.Equal(t, "Bo", ev.Username)
	assert.Equal(t, "Merci", ev.Gesture)

	require.NoError(t, bo.Close())
	assert.Equal(t, relayModel.TypeParticipantLeft, readType(t, ana, &presence))
	assert.Equal(t, "Bo", presence.Username)
	assert.Len(t, presence.Participants, 1)

	require.NoError(t, ana.Close())
	require.Eventually(t, func() bool { return srv.registry.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketRejectsOversizedFrames(t *testing.T) {
	ts, srv := setupRouter(t)

	ws := dial(t, ts, "/ws")
	require.NoError(t, ws.WriteJSON(map[string]any{"type": "join", "username": "Ana", "roomId": "BIG"}))
	readType(t, ws, nil)
	readType(t, ws, nil)

	big := strings.Repeat("x", 8192)
	require.NoError(t, ws.WriteJSON(map[string]any{"type": "message", "message": big}))

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := ws.ReadMessage()
	require.Error(t, err)
	require.Eventually(t, func() bool { return srv.registry.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}
