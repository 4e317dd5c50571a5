package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shadecraft/channelsync/internal/models"
	"github.com/shadecraft/channelsync/internal/utils"
)

// SyncLock serializes reconciliation per (product, group, channel) key.
// Two concurrent runs for the same key must not race to create duplicate
// remote entities; the second waits for the first and then observes its
// SyncRecord instead of reconciling blind.
type SyncLock struct {
	redis *RedisClient
	ttl   time.Duration
	wait  time.Duration
}

// NewSyncLock creates a lock helper. ttl caps how long a lock can be held
// (crash protection); wait caps how long an acquire blocks.
func NewSyncLock(redis *RedisClient, ttl, wait time.Duration) *SyncLock {
	return &SyncLock{redis: redis, ttl: ttl, wait: wait}
}

// releaseScript deletes the lock only if still owned by the given token,
// so an expired lock taken over by another run is never released by us.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
end
return 0`

func lockKey(productID int, groupKey string, channel models.ChannelCode) string {
	return fmt.Sprintf("synclock:%d:%s:%s", productID, groupKey, channel)
}

// Acquire blocks until the lock for the key is held, the wait budget is
// spent, or ctx is canceled. Returns a release func on success.
func (l *SyncLock) Acquire(ctx context.Context, productID int, groupKey string, channel models.ChannelCode) (func(), error) {
	key := lockKey(productID, groupKey, channel)
	token := uuid.New().String()

	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.redis.SetNX(ctx, key, token, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("sync lock: %w", err)
		}
		if ok {
			release := func() {
				// Best-effort: the TTL covers a lost release.
				rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_, _ = l.redis.Eval(rctx, releaseScript, []string{key}, token)
			}
			return release, nil
		}
		if time.Now().After(deadline) {
			return nil, utils.ErrLockNotAcquired
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}
