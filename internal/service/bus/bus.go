// Package bus carries room events between relay instances so that members of
// the same room connected to different processes still see each other.
package bus

import (
	"context"

	"github.com/scarface-loin/Wavy/internal/model/relay"
)

// Envelope is one event travelling between instances.
type Envelope struct {
	Origin string      `json:"origin"`
	RoomID string      `json:"roomId"`
	Event  relay.Event `json:"event"`
}

// Bus publishes local events and delivers remote ones.
type Bus interface {
	Publish(ctx context.Context, env Envelope) error
	// Subscribe blocks, calling fn for every envelope from another origin,
	// until ctx is cancelled.
	Subscribe(ctx context.Context, fn func(Envelope)) error
	Close() error
}
