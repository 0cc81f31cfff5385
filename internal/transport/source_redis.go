package transport

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/dm/crawlwatch/internal/model"
)

// RedisSource subscribes to a pub/sub channel the server publishes session
// updates to (crawler_updates by default). Each message must be a plain
// JSON payload, the same frames the websocket endpoint sends. A stock
// Django channels_redis layer does not produce this: it stores msgpack
// envelopes under prefixed keys rather than publishing on a channel, so
// the server needs a publisher that writes the JSON with PUBLISH.
type RedisSource struct {
	rdb     *redis.Client
	channel string
}

// NewRedisSource parses a redis:// URL and prepares a source for channel.
// No connection is made until Open.
func NewRedisSource(rawURL, channel string) (*RedisSource, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: redis url: %w", model.ErrInvalidConfig, err)
	}
	if channel == "" {
		return nil, fmt.Errorf("%w: redis channel is required", model.ErrInvalidConfig)
	}
	return &RedisSource{rdb: redis.NewClient(opts), channel: channel}, nil
}

func (s *RedisSource) String() string { return "redis " + s.channel }

// Open implements Source. It waits for the subscription to be confirmed so
// that a dead server is reported as a dial failure.
func (s *RedisSource) Open(ctx context.Context) (Stream, error) {
	ps := s.rdb.Subscribe(ctx, s.channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("%w: subscribe %s: %w", model.ErrTransport, s.channel, err)
	}
	return &redisStream{ps: ps}, nil
}

// Close releases the underlying client.
func (s *RedisSource) Close() error {
	return s.rdb.Close()
}

type redisStream struct {
	ps *redis.PubSub
}

func (r *redisStream) Read(ctx context.Context) ([]byte, error) {
	msg, err := r.ps.ReceiveMessage(ctx)
	if err != nil {
		return nil, err
	}
	return []byte(msg.Payload), nil
}

func (r *redisStream) Close() error {
	return r.ps.Close()
}
