package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	relayModel "github.com/scarface-loin/Wavy/internal/model/relay"
)

func TestWSURL(t *testing.T) {
	cases := map[string]string{
		":8080":          "ws://localhost:8080/ws",
		"0.0.0.0:9000":   "ws://localhost:9000/ws",
		"127.0.0.1:3000": "ws://127.0.0.1:3000/ws",
		"bogus":          "ws://localhost:8080/ws",
	}
	for addr, want := range cases {
		if got := wsURL(addr); got != want {
			t.Fatalf("wsURL(%q): expected %s, got %s", addr, want, got)
		}
	}
}

// recordingServer accepts one WebSocket and forwards every text frame it
// reads onto the returned channel, which closes when the peer goes away.
func recordingServer(t *testing.T) (string, <-chan []byte) {
	t.Helper()
	frames := make(chan []byte, 16)
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		defer close(frames)
		for {
			typ, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if typ == websocket.TextMessage {
				frames <- data
			}
		}
	}))
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws", frames
}

func TestRunClientSendsJoinThenGestures(t *testing.T) {
	url, frames := recordingServer(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := runClient(ctx, logger, clientOptions{
		url:        url,
		room:       "ROOM7",
		name:       "Ana",
		gesture:    "Merci",
		confidence: 0.75,
		count:      2,
		interval:   10 * time.Millisecond,
		listen:     20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("runClient: %v", err)
	}

	var got []relayModel.Inbound
	timeout := time.After(2 * time.Second)
	for done := false; !done; {
		select {
		case data, ok := <-frames:
			if !ok {
				done = true
				continue
			}
			var msg relayModel.Inbound
			if err := json.Unmarshal(data, &msg); err != nil {
				t.Fatalf("decode frame %s: %v", data, err)
			}
			got = append(got, msg)
		case <-timeout:
			t.Fatalf("server never saw the connection close, frames so far: %+v", got)
		}
	}

	if len(got) != 3 {
		t.Fatalf("expected 3 frames, got %d: %+v", len(got), got)
	}
	if got[0].Type != relayModel.TypeJoin || got[0].RoomID != "ROOM7" || got[0].Username != "Ana" {
		t.Fatalf("expected join for Ana in ROOM7, got %+v", got[0])
	}
	for _, msg := range got[1:] {
		if msg.Type != relayModel.TypeGesture || msg.Gesture != "Merci" {
			t.Fatalf("expected Merci gesture, got %+v", msg)
		}
		if msg.Confidence == nil || *msg.Confidence != 0.75 {
			t.Fatalf("expected confidence 0.75, got %v", msg.Confidence)
		}
	}
}

func TestRunClientFailsWhenServerUnreachable(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := runClient(ctx, logger, clientOptions{url: "ws://127.0.0.1:1/ws", room: "ROOM7", name: "Ana"})
	if err == nil {
		t.Fatal("expected dial error, got nil")
	}
}
