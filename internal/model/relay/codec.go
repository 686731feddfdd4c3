package relay

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

// ErrMalformed is returned when an inbound frame is not a JSON object with a
// string "type" field.
var ErrMalformed = errors.New("malformed message")

var api = sonic.ConfigStd

// Decode parses one inbound frame.
func Decode(raw []byte) (Inbound, error) {
	var msg Inbound
	if err := api.Unmarshal(raw, &msg); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if msg.Type == "" {
		return Inbound{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return msg, nil
}

// Encode serialises an outbound message.
func Encode(v any) ([]byte, error) {
	return api.Marshal(v)
}
