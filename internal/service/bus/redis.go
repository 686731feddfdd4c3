package bus

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DefaultChannelPrefix = "wavy:room:"

// RedisConfig selects the redis server backing the bus.
type RedisConfig struct {
	Addr          string
	DB            int
	ChannelPrefix string
}

// RedisBus fans events out over redis pub/sub, one channel per room.
type RedisBus struct {
	rdb    *redis.Client
	prefix string
	origin string
	log    *slog.Logger
}

// NewRedisBus connects to redis and verifies connectivity.
func NewRedisBus(ctx context.Context, cfg RedisConfig, logger *slog.Logger) (*RedisBus, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
		DB:   cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	prefix := cfg.ChannelPrefix
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBus{
		rdb:    rdb,
		prefix: prefix,
		origin: uuid.NewString(),
		log:    logger.With("component", "bus"),
	}, nil
}

// Origin identifies this process on the bus.
func (b *RedisBus) Origin() string { return b.origin }

// Publish sends env on its room channel, stamping this instance as origin.
func (b *RedisBus) Publish(ctx context.Context, env Envelope) error {
	env.Origin = b.origin
	raw, err := sonic.ConfigStd.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return b.rdb.Publish(ctx, b.channel(env.RoomID), raw).Err()
}

// Subscribe listens on every room channel until ctx is cancelled.
func (b *RedisBus) Subscribe(ctx context.Context, fn func(Envelope)) error {
	pubsub := b.rdb.PSubscribe(ctx, b.channel("*"))
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis psubscribe: %w", err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env Envelope
			if err := sonic.ConfigStd.UnmarshalFromString(msg.Payload, &env); err != nil {
				b.log.Warn("bus.decode", "channel", msg.Channel, "err", err)
				continue
			}
			if env.Origin == b.origin {
				continue
			}
			if env.RoomID == "" {
				env.RoomID = strings.TrimPrefix(msg.Channel, b.prefix)
			}
			fn(env)
		}
	}
}

// Close shuts down the redis connection.
func (b *RedisBus) Close() error { return b.rdb.Close() }

func (b *RedisBus) channel(roomID string) string { return b.prefix + roomID }
