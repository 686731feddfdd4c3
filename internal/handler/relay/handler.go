// Package relay serves the room WebSocket endpoint and runs one Session per
// connection.
package relay

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/scarface-loin/Wavy/internal/metrics"
	relayModel "github.com/scarface-loin/Wavy/internal/model/relay"
	"github.com/scarface-loin/Wavy/internal/service/bus"
	roomservice "github.com/scarface-loin/Wavy/internal/service/room"
)

const inboundBuffer = 16

// Options tunes per-connection behaviour.
type Options struct {
	BacklogLimit    int
	SendBuffer      int
	MaxMessageBytes int64
	EchoSender      bool
	MessageRate     float64
	MessageBurst    int
}

// Server upgrades HTTP requests and relays frames between room members.
type Server struct {
	registry *roomservice.Registry
	bus      bus.Bus
	metrics  *metrics.Metrics
	log      *slog.Logger
	opts     Options
	upgrader websocket.Upgrader
	now      func() time.Time
}

// New builds the relay server. b and m may be nil.
func New(registry *roomservice.Registry, opts Options, b bus.Bus, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.SendBuffer < 1 {
		opts.SendBuffer = 64
	}
	return &Server{
		registry: registry,
		bus:      b,
		metrics:  m,
		log:      logger.With("component", "relay"),
		opts:     opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		now: time.Now,
	}
}

// RegisterRoutes mounts the WebSocket endpoint. The room path segment is
// informational; the join message decides the room.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Get("/room/{roomID}", s.handleWebSocket)
	r.Get("/ws", s.handleWebSocket)
}

// NewSession returns an unjoined session bound to conn.
func (s *Server) NewSession(id string, conn roomservice.Conn) *Session {
	sess := &Session{
		server: s,
		conn:   conn,
		log:    s.log.With("conn", id),
		state:  stateUnjoined,
	}
	if s.opts.MessageRate > 0 {
		burst := s.opts.MessageBurst
		if burst < 1 {
			burst = 1
		}
		sess.limiter = rate.NewLimiter(rate.Limit(s.opts.MessageRate), burst)
	}
	return sess
}

// DeliverRemote applies an event published by another instance. Rooms are
// never created on behalf of remote traffic.
func (s *Server) DeliverRemote(env bus.Envelope) {
	switch env.Event.Type {
	case relayModel.TypeGesture, relayModel.TypeMessage:
	default:
		s.log.Warn("relay.remote.unknown_type", "type", env.Event.Type)
		return
	}

	rm, err := s.registry.Get(env.RoomID)
	if err != nil {
		return
	}
	if _, err := rm.Publish(env.Event, nil); err != nil {
		s.log.Error("relay.remote.publish", "room", env.RoomID, "err", err)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("relay.upgrade", "err", err)
		return
	}

	id := uuid.NewString()
	conn := newWSConn(id, ws, s.opts.SendBuffer, s.log.With("conn", id))
	s.metrics.ConnectionOpened()
	s.log.Debug("relay.connect", "conn", id, "path", r.URL.Path, "remote", r.RemoteAddr)
	defer func() {
		conn.Close()
		s.metrics.ConnectionClosed()
		s.log.Debug("relay.disconnect", "conn", id)
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan []byte, inboundBuffer)
	go conn.writePump()
	go conn.readPump(inbound, s.opts.MaxMessageBytes)

	s.NewSession(id, conn).Run(ctx, inbound)
}
