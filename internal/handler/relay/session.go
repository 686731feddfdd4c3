package relay

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/time/rate"

	relayModel "github.com/scarface-loin/Wavy/internal/model/relay"
	"github.com/scarface-loin/Wavy/internal/service/bus"
	roomservice "github.com/scarface-loin/Wavy/internal/service/room"
)

// joinAttempts bounds retries when a join races the deletion of its room.
const joinAttempts = 8

type sessionState int

const (
	stateUnjoined sessionState = iota
	stateJoined
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateUnjoined:
		return "unjoined"
	case stateJoined:
		return "joined"
	default:
		return "closed"
	}
}

// Session is the per-connection state machine. It is driven from a single
// goroutine: Run, or direct Handle/Close calls in tests.
type Session struct {
	server  *Server
	conn    roomservice.Conn
	log     *slog.Logger
	limiter *rate.Limiter

	state       sessionState
	room        *roomservice.Room
	participant roomservice.Participant
}

// Run consumes inbound frames until the channel closes or ctx ends, then
// releases the session's room membership.
func (s *Session) Run(ctx context.Context, inbound <-chan []byte) {
	defer s.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-inbound:
			if !ok {
				return
			}
			s.Handle(ctx, raw)
		}
	}
}

// Handle classifies one inbound frame and applies it.
func (s *Session) Handle(ctx context.Context, raw []byte) {
	if s.state == stateClosed {
		return
	}

	msg, err := relayModel.Decode(raw)
	if err != nil {
		s.log.Warn("relay.decode", "err", err)
		s.server.metrics.MessageRejected("malformed")
		return
	}

	switch msg.Type {
	case relayModel.TypeJoin:
		s.handleJoin(msg)
		return
	case relayModel.TypeGesture, relayModel.TypeMessage, relayModel.TypeSignal:
	default:
		s.log.Info("relay.unknown_type", "type", msg.Type)
		s.server.metrics.MessageRejected("unknown_type")
		return
	}

	if s.state != stateJoined {
		s.log.Debug("relay.ignored", "type", msg.Type, "state", s.state)
		s.server.metrics.MessageRejected("not_joined")
		return
	}
	if s.limiter != nil && !s.limiter.Allow() {
		s.server.metrics.MessageRejected("rate_limited")
		return
	}

	switch msg.Type {
	case relayModel.TypeGesture:
		s.handleGesture(ctx, msg)
	case relayModel.TypeMessage:
		s.handleChat(ctx, msg)
	case relayModel.TypeSignal:
		s.handleSignal(msg)
	}
}

// Close leaves the room, announcing the departure or deleting the room when
// it was the last member.
func (s *Session) Close() {
	if s.state == stateClosed {
		return
	}
	joined := s.state == stateJoined
	s.state = stateClosed
	if !joined {
		return
	}

	rm := s.room
	p, remaining, ok := rm.RemoveParticipant(s.conn)
	if !ok {
		return
	}
	s.log.Info("relay.leave", "user", p.UserID, "remaining", remaining)

	if remaining > 0 {
		left := relayModel.NewPresence(relayModel.TypeParticipantLeft, p.Username, p.UserID, rm.ParticipantsSnapshot())
		if _, err := rm.Broadcast(left, nil); err != nil {
			s.log.Error("relay.broadcast", "err", err)
		}
		return
	}
	if s.server.registry.Release(rm) {
		s.log.Info("room.deleted", "room", rm.ID())
	}
}

func (s *Session) handleJoin(msg relayModel.Inbound) {
	if s.state == stateJoined {
		s.log.Debug("relay.join.ignored", "room", s.room.ID())
		return
	}

	roomID := roomservice.NormalizeID(msg.RoomID)
	if roomID == "" || msg.Username == "" {
		s.send(relayModel.NewError("roomId and username are required"))
		s.server.metrics.MessageRejected("invalid_join")
		return
	}

	greet := func(userID string, backlog []relayModel.Event, participants []relayModel.Participant) {
		s.send(relayModel.NewHistory(tail(backlog, s.server.opts.BacklogLimit)))
		s.send(relayModel.NewJoined(roomID, userID, participants))
	}

	var (
		rm     *roomservice.Room
		userID string
		err    error
	)
	for attempt := 0; attempt < joinAttempts; attempt++ {
		rm, _ = s.server.registry.GetOrCreate(roomID)
		userID, err = rm.AddParticipant(s.conn, msg.Username, greet)
		if !errors.Is(err, roomservice.ErrRoomClosed) {
			break
		}
	}
	if err != nil {
		s.log.Error("relay.join", "room", roomID, "err", err)
		s.send(relayModel.NewError("could not join room, please retry"))
		return
	}

	s.state = stateJoined
	s.room = rm
	s.participant, _ = rm.Participant(s.conn)
	s.log = s.log.With("room", roomID, "user", userID)
	s.log.Info("relay.join", "username", msg.Username)
	s.server.metrics.MessageAccepted(relayModel.TypeJoin)

	joined := relayModel.NewPresence(relayModel.TypeParticipantJoined, msg.Username, userID, rm.ParticipantsSnapshot())
	if _, err := rm.Broadcast(joined, s.conn); err != nil {
		s.log.Error("relay.broadcast", "err", err)
	}
}

func (s *Session) handleGesture(ctx context.Context, msg relayModel.Inbound) {
	if msg.Gesture == "" || msg.Confidence == nil {
		s.log.Debug("relay.gesture.invalid")
		s.server.metrics.MessageRejected("invalid_gesture")
		return
	}
	ev := relayModel.NewGesture(s.participant.Username, msg.Gesture, *msg.Confidence, s.server.now().UnixMilli())
	s.publish(ctx, ev)
}

func (s *Session) handleChat(ctx context.Context, msg relayModel.Inbound) {
	if msg.Message == "" {
		s.log.Debug("relay.message.invalid")
		s.server.metrics.MessageRejected("invalid_message")
		return
	}
	ev := relayModel.NewChat(s.participant.Username, msg.Message, s.server.now().UnixMilli())
	s.publish(ctx, ev)
}

func (s *Session) handleSignal(msg relayModel.Inbound) {
	if msg.To == "" || len(msg.Signal) == 0 {
		s.server.metrics.MessageRejected("invalid_signal")
		return
	}
	ok, err := s.room.SendTo(msg.To, relayModel.NewSignal(s.participant.UserID, msg.Signal))
	if err != nil {
		s.log.Error("relay.signal", "err", err)
		return
	}
	if !ok {
		s.log.Debug("relay.signal.undelivered", "to", msg.To)
		return
	}
	s.server.metrics.MessageAccepted(relayModel.TypeSignal)
}

func (s *Session) publish(ctx context.Context, ev relayModel.Event) {
	var exclude roomservice.Conn
	if !s.server.opts.EchoSender {
		exclude = s.conn
	}
	if _, err := s.room.Publish(ev, exclude); err != nil {
		s.log.Error("relay.publish", "type", ev.Type, "err", err)
		return
	}
	s.server.metrics.MessageAccepted(ev.Type)

	if s.server.bus == nil {
		return
	}
	if err := s.server.bus.Publish(ctx, bus.Envelope{RoomID: s.room.ID(), Event: ev}); err != nil {
		s.log.Warn("relay.bus.publish", "err", err)
	}
}

func (s *Session) send(v any) {
	frame, err := relayModel.Encode(v)
	if err != nil {
		s.log.Error("relay.encode", "err", err)
		return
	}
	if !s.conn.Send(frame) {
		s.server.metrics.FrameDropped()
		s.log.Debug("relay.send.dropped")
	}
}

func tail(events []relayModel.Event, n int) []relayModel.Event {
	if n >= 0 && len(events) > n {
		return events[len(events)-n:]
	}
	return events
}
