package channel

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisTransport uses Redis pub/sub as the bus. go-redis reconnects pub/sub connections on
// its own and exposes no reconnect hooks, so status reporting is limited to connect and close.
type RedisTransport struct {
	opts redis.Options
}

// NewRedisTransport parses a redis:// URL into a transport
func NewRedisTransport(url string) (*RedisTransport, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return &RedisTransport{opts: *opts}, nil
}

type redisConn struct {
	client   *redis.Client
	onStatus func(Status)
}

// Dial opens a dedicated client for one Channel
func (t *RedisTransport) Dial(ctx context.Context, onStatus func(Status)) (Conn, error) {
	opts := t.opts
	client := redis.NewClient(&opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &redisConn{client: client, onStatus: onStatus}, nil
}

type redisSubscription struct {
	ps *redis.PubSub
}

func (s *redisSubscription) Unsubscribe() error {
	return s.ps.Close()
}

func (c *redisConn) Subscribe(ctx context.Context, topic string, deliver func(data []byte)) (Subscription, error) {
	ps := c.client.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to confirm subscription: %w", err)
	}

	ch := ps.Channel()
	go func() {
		for msg := range ch {
			deliver([]byte(msg.Payload))
		}
		log.Debug().Str("topic", topic).Msg("redis subscription drained")
	}()

	return &redisSubscription{ps: ps}, nil
}

func (c *redisConn) Publish(ctx context.Context, topic string, data []byte) error {
	return c.client.Publish(ctx, topic, data).Err()
}

func (c *redisConn) Close() error {
	err := c.client.Close()
	c.onStatus(StatusDisconnected)
	return err
}
