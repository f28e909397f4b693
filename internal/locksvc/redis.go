// Redis lease-based Locker for overlapping runs across hosts.

package locksvc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock key only if this lease still owns it,
// so a lease that outlived its TTL cannot release a successor's lock.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker implements [Locker] as a Redis SET NX PX lease. Keys are
// namespaced under prefix; the value is a per-lease owner token.
type RedisLocker struct {
	client *redis.Client
	prefix string
}

// NewRedisLocker creates a Redis-backed locker. prefix namespaces the
// lock keys (e.g. "snapsync:lock:").
func NewRedisLocker(client *redis.Client, prefix string) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix}
}

var _ Locker = (*RedisLocker)(nil)

// TryAcquire implements Locker.
func (l *RedisLocker) TryAcquire(ctx context.Context, name string, ttl time.Duration) (Lease, error) {
	owner := uuid.NewString()
	key := l.prefix + name
	ok, err := l.client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", name, err)
	}
	if !ok {
		return nil, ErrNotAcquired
	}
	return &redisLease{locker: l, key: key, owner: owner}, nil
}

type redisLease struct {
	locker *RedisLocker
	key    string
	owner  string
}

// Release implements Lease.
func (r *redisLease) Release(ctx context.Context) error {
	_, err := releaseScript.Run(ctx, r.locker.client, []string{r.key}, r.owner).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("unlock %s: %w", r.key, err)
	}
	return nil
}
