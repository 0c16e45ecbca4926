package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/repair-tracker/internal/events"
)

// DefaultChannel is the Redis pub/sub channel shared by all instances.
const DefaultChannel = "repair-tracker:events"

// RedisBridge fans events out across instances. Deliver publishes to Redis;
// Run relays every received message into the local Hub.
type RedisBridge struct {
	client  *redis.Client
	channel string
	hub     *Hub
	logger  *zap.Logger
}

// NewRedisBridge builds a bridge on channel, or DefaultChannel when empty.
func NewRedisBridge(client *redis.Client, channel string, hub *Hub, logger *zap.Logger) *RedisBridge {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBridge{client: client, channel: channel, hub: hub, logger: logger}
}

// Deliver publishes event for every instance, this one included.
func (b *RedisBridge) Deliver(ctx context.Context, event events.Event) error {
	payload, err := encodeEvent(event)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", b.channel, err)
	}
	return nil
}

// Run subscribes to the channel and relays messages until ctx is done.
func (b *RedisBridge) Run(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", b.channel, err)
	}
	b.logger.Info("realtime bridge subscribed", zap.String("channel", b.channel))

	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			event, err := decodeEvent(msg.Payload)
			if err != nil {
				b.logger.Warn("discarding malformed event", zap.Error(err))
				continue
			}
			b.hub.Broadcast(event)
		}
	}
}

func encodeEvent(event events.Event) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event %s: %w", event.ID, err)
	}
	return payload, nil
}

func decodeEvent(payload string) (events.Event, error) {
	var event events.Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return events.Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	if event.Type == "" {
		return events.Event{}, fmt.Errorf("unmarshal event: missing type")
	}
	return event, nil
}
