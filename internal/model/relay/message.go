package relay

import "encoding/json"

// Inbound message types sent by clients.
const (
	TypeJoin    = "join"
	TypeGesture = "gesture"
	TypeMessage = "message"
	TypeSignal  = "signal"
)

// Outbound message types emitted by the relay.
const (
	TypeJoined            = "joined"
	TypeHistory           = "history"
	TypeParticipantJoined = "participant_joined"
	TypeParticipantLeft   = "participant_left"
	TypeError             = "error"
)

// Inbound is the union of every field a client may send. Which fields are
// meaningful depends on Type.
type Inbound struct {
	Type       string          `json:"type"`
	RoomID     string          `json:"roomId,omitempty"`
	Username   string          `json:"username,omitempty"`
	Gesture    string          `json:"gesture,omitempty"`
	Confidence *float64        `json:"confidence,omitempty"`
	Message    string          `json:"message,omitempty"`
	To         string          `json:"to,omitempty"`
	Signal     json.RawMessage `json:"signal,omitempty"`
}

// Participant is the public view of a room member.
type Participant struct {
	Username string `json:"username"`
	UserID   string `json:"userId"`
}

// Event is a gesture or chat message. Events are the only messages kept in
// room history.
type Event struct {
	Type       string   `json:"type"`
	Username   string   `json:"username"`
	Gesture    string   `json:"gesture,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Message    string   `json:"message,omitempty"`
	Timestamp  int64    `json:"timestamp"`
}

// NewGesture builds a gesture event stamped with the server time in ms.
func NewGesture(username, gesture string, confidence float64, timestamp int64) Event {
	return Event{
		Type:       TypeGesture,
		Username:   username,
		Gesture:    gesture,
		Confidence: &confidence,
		Timestamp:  timestamp,
	}
}

// NewChat builds a chat event stamped with the server time in ms.
func NewChat(username, message string, timestamp int64) Event {
	return Event{
		Type:      TypeMessage,
		Username:  username,
		Message:   message,
		Timestamp: timestamp,
	}
}

// Joined confirms a successful join to the joining connection.
type Joined struct {
	Type         string        `json:"type"`
	RoomID       string        `json:"roomId"`
	UserID       string        `json:"userId"`
	Participants []Participant `json:"participants"`
}

// History replays recent events to a late joiner.
type History struct {
	Type     string  `json:"type"`
	Messages []Event `json:"messages"`
}

// Presence announces a member joining or leaving.
type Presence struct {
	Type         string        `json:"type"`
	Username     string        `json:"username"`
	UserID       string        `json:"userId"`
	Participants []Participant `json:"participants"`
}

// Signal forwards an opaque payload to a single participant.
type Signal struct {
	Type   string          `json:"type"`
	From   string          `json:"from"`
	Signal json.RawMessage `json:"signal"`
}

// Error reports a rejected request back to its sender.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewJoined builds the join confirmation sent only to the joiner.
func NewJoined(roomID, userID string, participants []Participant) Joined {
	return Joined{Type: TypeJoined, RoomID: roomID, UserID: userID, Participants: nonNil(participants)}
}

// NewHistory wraps a backlog, never encoding a nil slice as null.
func NewHistory(events []Event) History {
	if events == nil {
		events = []Event{}
	}
	return History{Type: TypeHistory, Messages: events}
}

// NewPresence builds a participant_joined or participant_left notice; kind
// selects which.
func NewPresence(kind, username, userID string, participants []Participant) Presence {
	return Presence{Type: kind, Username: username, UserID: userID, Participants: nonNil(participants)}
}

// NewSignal addresses payload from the sending participant's id.
func NewSignal(from string, payload json.RawMessage) Signal {
	return Signal{Type: TypeSignal, From: from, Signal: payload}
}

// NewError builds an error frame for the offending connection.
func NewError(message string) Error {
	return Error{Type: TypeError, Message: message}
}

func nonNil(p []Participant) []Participant {
	if p == nil {
		return []Participant{}
	}
	return p
}
