package publisher

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/atlasrisk/rulegate/pkg/errdefs"
	"github.com/atlasrisk/rulegate/pkg/manifest"
)

// PartitionLock serializes publishes within one partition. The lock is
// advisory: the manifest store's unique version constraint remains the
// correctness backstop either way.
type PartitionLock interface {
	// Acquire takes the partition lock, returning a release function, or a
	// Conflict when another publisher holds it.
	Acquire(ctx context.Context, p manifest.Partition) (func(context.Context), error)
}

// releaseLockScript deletes the lock only if the caller still owns it, so
// an expired-and-reacquired lock is never released by the old holder.
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock implements PartitionLock with SET NX + TTL and a fenced
// release.
type RedisLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLock creates a Redis-backed partition lock.
func NewRedisLock(addr, password string, db int, ttl time.Duration) *RedisLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisLock{client: rdb, ttl: ttl}
}

func (l *RedisLock) Acquire(ctx context.Context, p manifest.Partition) (func(context.Context), error) {
	key := fmt.Sprintf("rulegate:publish:%s:%s:%s:%s", p.Environment, p.Region, p.Country, p.RuleType)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, errdefs.Storage("partition lock acquisition failed", err)
	}
	if !ok {
		return nil, errdefs.Conflict("another publish is in progress for partition %s/%s/%s/%s",
			p.Environment, p.Region, p.Country, p.RuleType)
	}

	release := func(ctx context.Context) {
		// Best-effort: an unreleased lock expires with the TTL.
		_, _ = releaseLockScript.Run(ctx, l.client, []string{key}, token).Result()
	}
	return release, nil
}
