package checkin

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisGuard holds a short-lived key per nonce so that kiosks on different
// instances do not redeem the same code at the same time.
type RedisGuard struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
}

func NewRedisGuard(rdb redis.Cmdable, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &RedisGuard{rdb: rdb, ttl: ttl, prefix: "checkin:scan:"}
}

func (g *RedisGuard) Acquire(ctx context.Context, key string) (bool, error) {
	return g.rdb.SetNX(ctx, g.prefix+key, 1, g.ttl).Result()
}

func (g *RedisGuard) Release(ctx context.Context, key string) {
	_ = g.rdb.Del(ctx, g.prefix+key).Err()
}
