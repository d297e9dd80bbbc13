package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"fundify-chat/internal/logger"
)

// RedisBus publishes every persisted message on one Redis channel. Each
// instance subscribes and fans out to its own websocket clients.
type RedisBus struct {
	client  *redis.Client
	channel string
	log     zerolog.Logger
}

func NewRedisBus(client *redis.Client, channel string, log zerolog.Logger) *RedisBus {
	return &RedisBus{
		client:  client,
		channel: channel,
		log:     log.With().Str(logger.FieldComponent, "redis_bus").Logger(),
	}
}

func (b *RedisBus) Publish(ctx context.Context, msg *Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe waits for Redis to confirm the subscription before returning, so
// nothing published after it returns is missed.
func (b *RedisBus) Subscribe(ctx context.Context) (<-chan *Message, error) {
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", b.channel, err)
	}

	out := make(chan *Message, 256)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-ch:
				if !ok {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
					b.log.Warn().Err(err).Msg("dropping undecodable broadcast")
					continue
				}
				select {
				case out <- &msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close releases the client. Subscriptions end with their contexts.
func (b *RedisBus) Close() error {
	return b.client.Close()
}
