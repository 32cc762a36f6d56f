package realtime

import (
	"context"
	"errors"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Relay carries serialized bus envelopes between nodes.
type Relay interface {
	Name() string
	Publish(ctx context.Context, payload []byte) error
	// Consume delivers every received payload to handle until ctx is done.
	Consume(ctx context.Context, handle func([]byte)) error
}

// RedisRelay relays events over a Redis pub/sub channel.
type RedisRelay struct {
	client  *redis.Client
	channel string
	log     zerolog.Logger
}

// NewRedisRelay returns nil when client is nil so callers can pass the result straight to NewBus.
func NewRedisRelay(client *redis.Client, channelBase string, logger zerolog.Logger) Relay {
	if client == nil || channelBase == "" {
		return nil
	}
	return &RedisRelay{
		client:  client,
		channel: channelBase + ":events",
		log:     logger.With().Str("component", "redis_relay").Logger(),
	}
}

func (r *RedisRelay) Name() string { return "redis" }

func (r *RedisRelay) Publish(ctx context.Context, payload []byte) error {
	return r.client.Publish(ctx, r.channel, payload).Err()
}

func (r *RedisRelay) Consume(ctx context.Context, handle func([]byte)) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}

	go func() {
		defer func() {
			_ = pubsub.Close()
		}()
		for {
			msg, err := pubsub.ReceiveMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || ctx.Err() != nil {
					return
				}
				r.log.Error().Err(err).Msg("realtime redis subscription closed")
				return
			}
			handle([]byte(msg.Payload))
		}
	}()
	return nil
}

// NATSRelay relays events over a NATS subject. Every node subscribes
// individually so each one sees every event.
type NATSRelay struct {
	conn    *nats.Conn
	subject string
	log     zerolog.Logger
}

// NewNATSRelay returns nil when conn is nil.
func NewNATSRelay(conn *nats.Conn, channelBase string, logger zerolog.Logger) Relay {
	if conn == nil || channelBase == "" {
		return nil
	}
	return &NATSRelay{
		conn:    conn,
		subject: strings.ReplaceAll(channelBase, ":", ".") + ".events",
		log:     logger.With().Str("component", "nats_relay").Logger(),
	}
}

func (r *NATSRelay) Name() string { return "nats" }

func (r *NATSRelay) Publish(_ context.Context, payload []byte) error {
	return r.conn.Publish(r.subject, payload)
}

func (r *NATSRelay) Consume(ctx context.Context, handle func([]byte)) error {
	sub, err := r.conn.Subscribe(r.subject, func(msg *nats.Msg) {
		handle(msg.Data)
	})
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			r.log.Warn().Err(err).Msg("failed to drain realtime nats subscription")
		}
	}()
	return nil
}
