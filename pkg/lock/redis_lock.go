package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when another holder owns the key
var ErrNotAcquired = errors.New("lock not acquired")

// Lua script for token-checked release so an expired holder cannot delete a
// lock that has since been taken by someone else
const luaReleaseLock = `
-- KEYS[1] = lock key
-- ARGV[1] = holder token
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisLocker hands out per-key leases stored in Redis
type RedisLocker struct {
	redis    *redis.Client
	newToken func() string
}

// NewRedisLocker creates a new Redis backed locker
func NewRedisLocker(redisClient *redis.Client) *RedisLocker {
	return &RedisLocker{
		redis:    redisClient,
		newToken: uuid.NewString,
	}
}

// TryLock takes key for ttl without waiting
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	if l.redis == nil {
		return nil, fmt.Errorf("redis client not available")
	}

	token := l.newToken()
	acquired, err := l.redis.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !acquired {
		return nil, ErrNotAcquired
	}

	return func(ctx context.Context) error {
		return l.release(ctx, key, token)
	}, nil
}

func (l *RedisLocker) release(ctx context.Context, key, token string) error {
	released, err := l.redis.Eval(ctx, luaReleaseLock, []string{key}, token).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", key, err)
	}
	if released == 0 {
		return fmt.Errorf("lock %s expired before release", key)
	}
	return nil
}

// LocalLocker is the in-process equivalent used when no Redis is configured
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

// NewLocalLocker creates an in-process locker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		held: make(map[string]time.Time),
		now:  time.Now,
	}
}

// TryLock takes key for ttl without waiting
func (l *LocalLocker) TryLock(_ context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if expires, ok := l.held[key]; ok && now.Before(expires) {
		return nil, ErrNotAcquired
	}
	expires := now.Add(ttl)
	l.held[key] = expires

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[key].Equal(expires) {
			delete(l.held, key)
		}
		return nil
	}, nil
}
