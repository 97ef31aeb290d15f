package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// DefaultFeedChannel carries stored items to every web process.
const DefaultFeedChannel = "notifications.created"

// Feed announces stored items over redis pub/sub.
type Feed struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// NewFeed constructs a Feed.
func NewFeed(client *redis.Client, channel string, logger *slog.Logger) *Feed {
	if channel == "" {
		channel = DefaultFeedChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{client: client, channel: channel, logger: logger}
}

// Announce implements Announcer.
func (f *Feed) Announce(ctx context.Context, item Item) error {
	raw, err := json.Marshal(item)
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, f.channel, raw).Err()
}

// Listen delivers announced items to deliver until ctx ends. It returns
// once the subscription is confirmed.
func (f *Feed) Listen(ctx context.Context, deliver func(Item)) error {
	pubsub := f.client.Subscribe(ctx, f.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("notification feed: subscribe: %w", err)
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
				var item Item
				if err := json.Unmarshal([]byte(msg.Payload), &item); err != nil {
					f.logger.Warn("drop malformed notification", slog.Any("error", err))
					continue
				}
				deliver(item)
			}
		}
	}()
	return nil
}
