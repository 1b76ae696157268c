package respcache

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis backs the cache with a shared redis instance so multiple
// pipeline processes see each other's fetches.
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	body, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		slog.WarnContext(ctx, "response cache read failed", "key", key, "err", err)
		return nil, false
	}
	return body, true
}

func (r *Redis) Set(ctx context.Context, key string, body []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	err := r.client.Set(ctx, r.prefix+key, body, ttl).Err()
	if err != nil {
		slog.WarnContext(ctx, "response cache write failed", "key", key, "err", err)
	}
}
