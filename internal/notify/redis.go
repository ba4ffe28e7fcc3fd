// Package notify provides the Redis wake-up channel between the API and the
// server-mode fan-out worker. Nudges are best effort; the worker's polling
// loop guarantees progress when Redis is down.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultChannel = "almanac:outbox"

// Channel publishes and subscribes worker nudges over Redis pub/sub.
type Channel struct {
	client  *redis.Client
	channel string
}

// NewChannel connects to Redis and verifies the connection.
func NewChannel(redisURL string) (*Channel, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Channel{client: client, channel: defaultChannel}, nil
}

// NewChannelWithClient creates a channel from an existing Redis client.
func NewChannelWithClient(client *redis.Client) *Channel {
	return &Channel{client: client, channel: defaultChannel}
}

// Nudge signals the worker that new outbox records exist.
func (c *Channel) Nudge(ctx context.Context) error {
	if err := c.client.Publish(ctx, c.channel, "wake").Err(); err != nil {
		return fmt.Errorf("publish nudge: %w", err)
	}
	return nil
}

// Listen subscribes to nudges and forwards them as empty struct ticks.
// The returned channel closes when ctx is cancelled.
func (c *Channel) Listen(ctx context.Context) <-chan struct{} {
	sub := c.client.Subscribe(ctx, c.channel)
	wake := make(chan struct{}, 1)

	go func() {
		defer close(wake)
		defer sub.Close()
		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-messages:
				if !ok {
					return
				}
				select {
				case wake <- struct{}{}:
				default:
					// A wake is already queued; coalesce.
				}
			}
		}
	}()

	return wake
}

// Ping checks if Redis is reachable.
func (c *Channel) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Channel) Close() error {
	return c.client.Close()
}
