package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisLeaderLock elects one holder per key across worker processes
type RedisLeaderLock struct {
	locker *redislock.Client
	logger *zap.Logger
}

// NewRedisLeaderLock creates a lock client on an existing Redis client
func NewRedisLeaderLock(client *redis.Client, logger *zap.Logger) *RedisLeaderLock {
	return &RedisLeaderLock{locker: redislock.New(client), logger: logger}
}

// TryAcquire takes key for ttl without waiting. ok is false when another
// process holds it. release is safe to call after the lock expired.
func (l *RedisLeaderLock) TryAcquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	lock, err := l.locker.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("obtain lock %s: %w", key, err)
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.Warn("Failed to release lock", zap.String("key", key), zap.Error(err))
		}
	}
	return release, true, nil
}
