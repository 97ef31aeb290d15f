package provider

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultEventsChannel is the redis channel used when none is configured.
const DefaultEventsChannel = "identity.events"

// Bus carries provider events between processes over redis pub/sub and
// replays them into a local Hub. Session tokens never travel on the bus.
type Bus struct {
	client  *redis.Client
	channel string
	hub     *Hub
	logger  *slog.Logger
}

// NewBus constructs a Bus.
func NewBus(client *redis.Client, channel string, hub *Hub, logger *slog.Logger) *Bus {
	if channel == "" {
		channel = DefaultEventsChannel
	}
	return &Bus{client: client, channel: channel, hub: hub, logger: logger}
}

// Publish broadcasts e to every listening process.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	if b == nil || b.client == nil {
		return errors.New("provider bus: not configured")
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

// Listen subscribes to the channel and dispatches events until ctx ends. It
// returns once the subscription is confirmed.
func (b *Bus) Listen(ctx context.Context) error {
	if b == nil || b.client == nil || b.hub == nil {
		return errors.New("provider bus: not configured")
	}
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var e Event
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil || e.Type == "" {
					if b.logger != nil {
						b.logger.Warn("provider bus: drop malformed event", slog.String("payload", msg.Payload))
					}
					continue
				}
				b.hub.Dispatch(e)
			}
		}
	}()
	return nil
}
