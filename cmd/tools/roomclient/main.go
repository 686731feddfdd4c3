// Command roomclient joins a relay room, sends a few gestures or chat lines
// and prints every frame it receives. Useful for poking a running server by
// hand.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"

	"github.com/scarface-loin/Wavy/internal/config"
	relayModel "github.com/scarface-loin/Wavy/internal/model/relay"
)

func main() {
	_ = godotenv.Load()

	defaultURL := "ws://localhost:8080/ws"
	if cfg, err := config.Load(); err == nil {
		defaultURL = wsURL(cfg.Server.Addr)
	}

	url := flag.String("url", defaultURL, "relay WebSocket URL")
	room := flag.String("room", "DEMO", "room code to join")
	name := flag.String("name", "tester", "display name")
	gesture := flag.String("gesture", "", "gesture label to send")
	confidence := flag.Float64("confidence", 0.9, "gesture confidence")
	message := flag.String("message", "", "chat line to send")
	count := flag.Int("count", 1, "how many times to send")
	interval := flag.Duration("interval", time.Second, "pause between sends")
	listen := flag.Duration("listen", 5*time.Second, "how long to keep printing frames after sending")
	flag.Parse()

	logger := config.NewLogger("dev")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runClient(ctx, logger, clientOptions{
		url:        *url,
		room:       *room,
		name:       *name,
		gesture:    *gesture,
		confidence: *confidence,
		message:    *message,
		count:      *count,
		interval:   *interval,
		listen:     *listen,
	}); err != nil {
		logger.Error("client.failed", "err", err)
		os.Exit(1)
	}
}

type clientOptions struct {
	url        string
	room       string
	name       string
	gesture    string
	confidence float64
	message    string
	count      int
	interval   time.Duration
	listen     time.Duration
}

// runClient dials opts.url, joins opts.room and sends the configured gestures
// and chat lines, then keeps printing frames for opts.listen.
func runClient(ctx context.Context, logger *slog.Logger, opts clientOptions) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.DialContext(ctx, opts.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", opts.url, err)
	}
	defer ws.Close()
	logger.Info("client.connected", "url", opts.url)

	go func() {
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			fmt.Println(string(data))
		}
	}()

	join := relayModel.Inbound{Type: relayModel.TypeJoin, RoomID: opts.room, Username: opts.name}
	if err := send(ws, join); err != nil {
		return err
	}

	for i := 0; i < opts.count; i++ {
		if opts.gesture != "" {
			c := opts.confidence
			if err := send(ws, relayModel.Inbound{Type: relayModel.TypeGesture, Gesture: opts.gesture, Confidence: &c}); err != nil {
				return err
			}
		}
		if opts.message != "" {
			if err := send(ws, relayModel.Inbound{Type: relayModel.TypeMessage, Message: opts.message}); err != nil {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(opts.interval):
		}
	}

	select {
	case <-ctx.Done():
	case <-time.After(opts.listen):
	}
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
		time.Now().Add(time.Second))
	return nil
}

func send(ws *websocket.Conn, msg relayModel.Inbound) error {
	frame, err := relayModel.Encode(msg)
	if err != nil {
		return err
	}
	if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("send %s: %w", msg.Type, err)
	}
	return nil
}

// wsURL turns a listen address such as ":8080" into a local WebSocket URL.
func wsURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "ws://localhost:8080/ws"
	}
	if host == "" || strings.HasPrefix(host, "0.0.0.0") {
		host = "localhost"
	}
	return "ws://" + net.JoinHostPort(host, port) + "/ws"
}
