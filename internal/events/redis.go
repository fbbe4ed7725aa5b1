package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const DefaultChannel = "craftbridge:events"

// RedisPublisher publishes each message as JSON on a Redis channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher accepts a redis:// or rediss:// URL, or a bare
// host:port.
func NewRedisPublisher(ctx context.Context, addr, channel string) (*RedisPublisher, error) {
	var opts *redis.Options
	if strings.Contains(addr, "://") {
		var err error
		if opts, err = redis.ParseURL(addr); err != nil {
			return nil, fmt.Errorf("redis url: %w", err)
		}
	} else {
		opts = &redis.Options{Addr: addr}
	}
	if channel == "" {
		channel = DefaultChannel
	}
	c := redis.NewClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisPublisher{client: c, channel: channel}, nil
}

func (p *RedisPublisher) Publish(ctx context.Context, msg Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel, b).Err()
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
