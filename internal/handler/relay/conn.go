package relay

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// wsConn is one participant's WebSocket. Outbound frames go through a bounded
// queue drained by writePump; inbound frames are pushed by readPump onto the
// channel the session consumes.
type wsConn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	log  *slog.Logger

	closeOnce sync.Once
}

func newWSConn(id string, ws *websocket.Conn, buffer int, logger *slog.Logger) *wsConn {
	return &wsConn{
		id:   id,
		ws:   ws,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
		log:  logger,
	}
}

// Send queues frame without blocking. It reports false once the connection
// is closed or while its queue is full.
func (c *wsConn) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close stops both pumps. Safe to call more than once.
func (c *wsConn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// readPump forwards text and binary frames to inbound until the socket fails,
// then closes inbound.
func (c *wsConn) readPump(inbound chan<- []byte, maxBytes int64) {
	defer close(inbound)

	if maxBytes > 0 {
		c.ws.SetReadLimit(maxBytes)
	}
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		typ, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.log.Debug("conn.read", "err", err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		if typ != websocket.TextMessage && typ != websocket.BinaryMessage {
			continue
		}

		select {
		case inbound <- data:
		case <-c.done:
			return
		}
	}
}

// writePump drains the send queue and keeps the peer alive with pings.
func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug("conn.write", "err", err)
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
