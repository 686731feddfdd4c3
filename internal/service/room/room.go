package room

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scarface-loin/Wavy/internal/model/relay"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomClosed   = errors.New("room closed")
)

// DefaultHistoryLimit caps the number of events a room remembers.
const DefaultHistoryLimit = 100

// Conn is the outbound half of a participant's connection. Send must not
// block; it reports false when the frame could not be queued.
type Conn interface {
	Send(frame []byte) bool
}

// Participant binds a connection to a display identity inside one room.
type Participant struct {
	Username string
	UserID   string
	JoinedAt time.Time
}

// Public returns the wire view of the participant.
func (p Participant) Public() relay.Participant {
	return relay.Participant{Username: p.Username, UserID: p.UserID}
}

// Summary is a point-in-time description of a room used by status queries.
type Summary struct {
	RoomID       string
	Participants int
	Messages     int
	CreatedAt    time.Time
}

// Greeter is invoked by AddParticipant while the membership lock is held.
// Frames it queues on the new connection precede any later broadcast.
type Greeter func(userID string, backlog []relay.Event, participants []relay.Participant)

type member struct {
	participant Participant
	seq         uint64
}

// Room owns the participant table and bounded history of one room. All
// mutation is serialised by mu; sends happen outside of it on a snapshot.
type Room struct {
	id           string
	createdAt    time.Time
	historyLimit int
	log          *slog.Logger
	onDrop       func()

	mu      sync.Mutex
	members map[Conn]*member
	seq     uint64
	history []relay.Event
	closed  bool
}

func newRoom(id string, createdAt time.Time, opts Options) *Room {
	limit := opts.HistoryLimit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Room{
		id:           id,
		createdAt:    createdAt,
		historyLimit: limit,
		log:          logger.With("room", id),
		onDrop:       opts.OnDrop,
		members:      make(map[Conn]*member),
		history:      make([]relay.Event, 0, 16),
	}
}

// ID returns the normalised room identifier.
func (r *Room) ID() string { return r.id }

// CreatedAt returns when the room was first created.
func (r *Room) CreatedAt() time.Time { return r.createdAt }

// AddParticipant registers conn under username and returns its fresh userId.
func (r *Room) AddParticipant(conn Conn, username string, greet Greeter) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return "", ErrRoomClosed
	}
	if existing, ok := r.members[conn]; ok {
		return existing.participant.UserID, nil
	}

	r.seq++
	p := Participant{
		Username: username,
		UserID:   uuid.NewString(),
		JoinedAt: time.Now().UTC(),
	}
	r.members[conn] = &member{participant: p, seq: r.seq}

	if greet != nil {
		greet(p.UserID, r.historyLocked(0), r.participantsLocked())
	}
	return p.UserID, nil
}

// RemoveParticipant drops conn from the room. It returns the removed
// participant, the number of members left and whether conn was a member.
func (r *Room) RemoveParticipant(conn Conn) (Participant, int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[conn]
	if !ok {
		return Participant{}, len(r.members), false
	}
	delete(r.members, conn)
	return m.participant, len(r.members), true
}

// Participant looks up the member bound to conn.
func (r *Room) Participant(conn Conn) (Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[conn]
	if !ok {
		return Participant{}, false
	}
	return m.participant, true
}

// Len returns the current member count.
func (r *Room) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// ParticipantsSnapshot lists current members in join order.
func (r *Room) ParticipantsSnapshot() []relay.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.participantsLocked()
}

// RecordHistory appends ev, evicting the oldest entries beyond the cap.
func (r *Room) RecordHistory(ev relay.Event) {
	r.mu.Lock()
	r.recordLocked(ev)
	r.mu.Unlock()
}

// History returns up to limit of the most recent events, oldest first.
// A non-positive limit returns everything.
func (r *Room) History(limit int) []relay.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.historyLocked(limit)
}

// Broadcast sends v to every member except exclude and returns how many
// frames were queued.
func (r *Room) Broadcast(v any, exclude Conn) (int, error) {
	frame, err := relay.Encode(v)
	if err != nil {
		return 0, fmt.Errorf("encode %T: %w", v, err)
	}
	r.mu.Lock()
	targets := r.connsLocked(exclude)
	r.mu.Unlock()
	return r.deliver(frame, targets), nil
}

// Publish records ev and broadcasts it in one step, so a concurrent joiner
// sees the event either in its backlog or live, never both.
func (r *Room) Publish(ev relay.Event, exclude Conn) (int, error) {
	frame, err := relay.Encode(ev)
	if err != nil {
		return 0, fmt.Errorf("encode %s event: %w", ev.Type, err)
	}
	r.mu.Lock()
	r.recordLocked(ev)
	targets := r.connsLocked(exclude)
	r.mu.Unlock()
	return r.deliver(frame, targets), nil
}

// SendTo delivers v to the member whose userId matches. It reports false
// when nobody in the room has that id or the frame could not be queued.
func (r *Room) SendTo(userID string, v any) (bool, error) {
	frame, err := relay.Encode(v)
	if err != nil {
		return false, fmt.Errorf("encode %T: %w", v, err)
	}
	var target Conn
	r.mu.Lock()
	for c, m := range r.members {
		if m.participant.UserID == userID {
			target = c
			break
		}
	}
	r.mu.Unlock()
	if target == nil {
		return false, nil
	}
	return r.deliver(frame, []Conn{target}) == 1, nil
}

// Summary reports the room's counters at this instant.
func (r *Room) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Summary{
		RoomID:       r.id,
		Participants: len(r.members),
		Messages:     len(r.history),
		CreatedAt:    r.createdAt,
	}
}

func (r *Room) deliver(frame []byte, targets []Conn) int {
	sent := 0
	for _, c := range targets {
		if c.Send(frame) {
			sent++
			continue
		}
		r.log.Debug("room.send.dropped")
		if r.onDrop != nil {
			r.onDrop()
		}
	}
	return sent
}

func (r *Room) recordLocked(ev relay.Event) {
	if len(r.history) >= r.historyLimit {
		n := copy(r.history, r.history[len(r.history)-r.historyLimit+1:])
		r.history = r.history[:n]
	}
	r.history = append(r.history, ev)
}

func (r *Room) historyLocked(limit int) []relay.Event {
	start := 0
	if limit > 0 && limit < len(r.history) {
		start = len(r.history) - limit
	}
	out := make([]relay.Event, len(r.history)-start)
	copy(out, r.history[start:])
	return out
}

func (r *Room) connsLocked(exclude Conn) []Conn {
	out := make([]Conn, 0, len(r.members))
	for c := range r.members {
		if exclude != nil && c == exclude {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (r *Room) participantsLocked() []relay.Participant {
	ms := make([]*member, 0, len(r.members))
	for _, m := range r.members {
		ms = append(ms, m)
	}
	sort.Slice(ms, func(i, j int) bool { return ms[i].seq < ms[j].seq })

	out := make([]relay.Participant, len(ms))
	for i, m := range ms {
		out[i] = m.participant.Public()
	}
	return out
}
