package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/aarontekluuu/pm.ag-sub000/internal/domain"
)

// unlockLua deletes a lock key only when its value still matches the
// holder's token, so an expired lock taken over by another instance is
// never released by the old holder.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// LockManager implements domain.LockManager with SETNX plus a TTL and a
// token-checked Lua unlock. The refresh pipeline uses it to elect a
// single leader per cycle across instances.
type LockManager struct {
	rdb      *redis.Client
	unlockSc *redis.Script
}

// NewLockManager creates a LockManager backed by the given Client.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{
		rdb:      c.Underlying(),
		unlockSc: redis.NewScript(unlockLua),
	}
}

func lockKey(key string) string {
	return "pmag:lock:" + key
}

// Acquire takes the distributed lock for key with the given TTL. On
// success it returns an unlock function, safe to call more than once.
// When another holder owns the lock it returns domain.ErrLockHeld.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	lk := lockKey(key)
	token := uuid.NewString()

	switch ok, err := lm.rdb.SetNX(ctx, lk, token, ttl).Result(); {
	case err != nil:
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	case !ok:
		return nil, domain.ErrLockHeld
	}

	var once sync.Once
	return func() {
		once.Do(func() { lm.release(lk, token) })
	}, nil
}

// release deletes the lock on a background context so unlock still works
// after the caller's context is cancelled.
func (lm *LockManager) release(lk, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = lm.unlockSc.Run(ctx, lm.rdb, []string{lk}, token).Err()
}

// Compile-time interface check.
var _ domain.LockManager = (*LockManager)(nil)
