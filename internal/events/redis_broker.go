package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Baaaki/resource-hub/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannel is the Redis pub/sub channel resource events travel on
const DefaultChannel = "resources:events"

// RedisBroker implements Publisher and Subscriber on top of Redis pub/sub
type RedisBroker struct {
	client  *redis.Client
	channel string
}

func NewRedisBroker(client *redis.Client, channel string) *RedisBroker {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBroker{
		client:  client,
		channel: channel,
	}
}

func (r *RedisBroker) Publish(ctx context.Context, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	return r.client.Publish(ctx, r.channel, data).Err()
}

// Subscribe returns once the subscription is confirmed by Redis, so events
// published afterwards are guaranteed to be delivered.
func (r *RedisBroker) Subscribe(ctx context.Context) (<-chan Event, error) {
	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", r.channel, err)
	}

	out := make(chan Event, 100)

	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}

				var evt Event
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					logger.Log.Warn("Dropping malformed resource event",
						zap.String("channel", r.channel),
						zap.Error(err),
					)
					continue
				}

				select {
				case out <- evt:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
