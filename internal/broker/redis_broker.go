package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Baaaki/scooter-fleet/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultRedisChannel = "fleet-chat:events"

// DialRedis parses the URL and checks the server answers
func DialRedis(redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return client, nil
}

// RedisBroker implements Broker using Redis pub/sub
type RedisBroker struct {
	client  *redis.Client
	channel string
}

func NewRedisBroker(client *redis.Client, channel string) *RedisBroker {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisBroker{client: client, channel: channel}
}

// Publish sends the envelope to every subscribed instance, this one included.
func (r *RedisBroker) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, data).Err()
}

func (r *RedisBroker) Subscribe(ctx context.Context) (<-chan Envelope, error) {
	pubsub := r.client.Subscribe(ctx, r.channel)

	// Wait for the subscription to be confirmed so nothing published after
	// Subscribe returns is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", r.channel, err)
	}

	out := make(chan Envelope, localBufferSize)

	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case redisMsg, ok := <-msgs:
				if !ok {
					return
				}

				var env Envelope
				if err := json.Unmarshal([]byte(redisMsg.Payload), &env); err != nil {
					logger.Log.Warn("Dropping malformed broker payload", zap.Error(err))
					continue
				}

				select {
				case out <- env:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close is a no-op. The client belongs to the caller, which may share it with
// other components, and the subscription loop ends with its context.
func (r *RedisBroker) Close() error {
	return nil
}
