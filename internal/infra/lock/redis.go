package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ErrNotObtained is returned when the lock could not be taken before ctx ended.
var ErrNotObtained = errors.New("lock not obtained")

const (
	defaultTTL      = 10 * time.Second
	defaultWaitTime = 5 * time.Second
	retryInterval   = 50 * time.Millisecond
)

// RedisLocker takes per-key locks in Redis so several service instances
// serialize writes to the same driver.
type RedisLocker struct {
	locker *redislock.Client
	ttl    time.Duration
	wait   time.Duration
	logger *logrus.Entry
}

func NewRedisLocker(client redis.UniversalClient, ttl time.Duration, logger *logrus.Entry) *RedisLocker {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisLocker{
		locker: redislock.New(client),
		ttl:    ttl,
		wait:   defaultWaitTime,
		logger: logger.WithField("component", "redis_locker"),
	}
}

// Lock retries until the key is obtained, ctx is done or the wait time elapses.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	lk, err := l.locker.Obtain(ctx, key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(retryInterval),
	})
	if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %s", ErrNotObtained, key)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}

	return func() {
		// the caller's context may already be cancelled
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := lk.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.WithError(err).WithField("key", key).Warn("Failed to release lock")
		}
	}, nil
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		PoolSize: 20,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}
	return rdb, nil
}
