package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock key only if this process still owns it,
// so a lock that expired and was re-acquired elsewhere is never released
// by the previous holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker using Redis SET NX with per-holder tokens.
type RedisLocker struct {
	client *redis.Client

	mu     sync.Mutex
	tokens map[string]string
}

// NewRedisLocker creates a Redis-backed locker.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{
		client: client,
		tokens: make(map[string]string),
	}
}

// Acquire attempts to acquire a lock.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()

	acquired, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !acquired {
		return false, nil
	}

	l.mu.Lock()
	l.tokens[key] = token
	l.mu.Unlock()

	return true, nil
}

// Release releases a lock held by this process.
func (l *RedisLocker) Release(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	token, held := l.tokens[key]
	delete(l.tokens, key)
	l.mu.Unlock()

	if !held {
		return false, nil
	}

	released, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int()
	if err != nil {
		return false, fmt.Errorf("failed to release lock %s: %w", key, err)
	}

	return released == 1, nil
}

// Ensure RedisLocker implements Locker.
var _ Locker = (*RedisLocker)(nil)
