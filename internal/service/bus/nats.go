package bus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const DefaultSubject = "wavy.rooms"

// NATSConfig selects the NATS server backing the bus.
type NATSConfig struct {
	URL     string
	Subject string
}

// NATSBus fans events out over a single NATS subject; the envelope carries
// the room id, so room codes never have to be valid subject tokens.
type NATSBus struct {
	nc      *nats.Conn
	subject string
	origin  string
	log     *slog.Logger
}

// NewNATSBus connects to the server at cfg.URL.
func NewNATSBus(cfg NATSConfig, logger *slog.Logger) (*NATSBus, error) {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "bus")

	nc, err := nats.Connect(cfg.URL,
		nats.Name("wavy-relay"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("bus.nats.disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("bus.nats.reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", cfg.URL, err)
	}

	subject := cfg.Subject
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSBus{
		nc:      nc,
		subject: subject,
		origin:  uuid.NewString(),
		log:     log,
	}, nil
}

// Origin identifies this process on the bus.
func (b *NATSBus) Origin() string { return b.origin }

// Publish sends env, stamping this instance as origin.
func (b *NATSBus) Publish(ctx context.Context, env Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	env.Origin = b.origin
	raw, err := sonic.ConfigStd.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return b.nc.Publish(b.subject, raw)
}

// Subscribe delivers envelopes from other instances until ctx is cancelled.
func (b *NATSBus) Subscribe(ctx context.Context, fn func(Envelope)) error {
	ch := make(chan *nats.Msg, 256)
	sub, err := b.nc.ChanSubscribe(b.subject, ch)
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", b.subject, err)
	}
	defer sub.Unsubscribe()
	if err := b.nc.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-ch:
			var env Envelope
			if err := sonic.ConfigStd.Unmarshal(msg.Data, &env); err != nil {
				b.log.Warn("bus.decode", "subject", msg.Subject, "err", err)
				continue
			}
			if env.Origin == b.origin || env.RoomID == "" {
				continue
			}
			fn(env)
		}
	}
}

// Close drains pending messages and closes the connection.
func (b *NATSBus) Close() error {
	return b.nc.Drain()
}
