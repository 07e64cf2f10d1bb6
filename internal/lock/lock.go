// Package lock provides single-flight run locks for inventory recomputes.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/MarkoPoloResearchLab/cafestock/pkg/inventory"
)

// DefaultTTL bounds how long a crashed holder can block other runs.
const DefaultTTL = 10 * time.Minute

const redisKeyPrefix = "cafestock:lock:"

var errNilRedisClient = errors.New("lock: redis client is nil")

// RedisLocker holds run locks in Redis so that several processes share them.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
}

// NewRedisLocker builds a locker on top of an existing Redis client.
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) (*RedisLocker, error) {
	if client == nil {
		return nil, errNilRedisClient
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLocker{client: redislock.New(client), ttl: ttl}, nil
}

// Acquire obtains the lock without waiting. A held key yields inventory.ErrRunInProgress.
func (locker *RedisLocker) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	held, err := locker.client.Obtain(ctx, redisKeyPrefix+key, locker.ttl, nil)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, fmt.Errorf("%w: %s", inventory.ErrRunInProgress, key)
		}
		return nil, fmt.Errorf("lock: obtain %s: %w", key, err)
	}
	return func(releaseCtx context.Context) error {
		releaseErr := held.Release(releaseCtx)
		if releaseErr == nil || errors.Is(releaseErr, redislock.ErrLockNotHeld) {
			// an expired lock has already been released by its TTL
			return nil
		}
		return fmt.Errorf("lock: release %s: %w", key, releaseErr)
	}, nil
}

// LocalLocker serializes runs inside one process.
type LocalLocker struct {
	mutex sync.Mutex
	held  map[string]struct{}
}

// NewLocalLocker returns an empty process-local locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

// Acquire marks the key held. A held key yields inventory.ErrRunInProgress.
func (locker *LocalLocker) Acquire(_ context.Context, key string) (func(context.Context) error, error) {
	locker.mutex.Lock()
	defer locker.mutex.Unlock()
	if _, exists := locker.held[key]; exists {
		return nil, fmt.Errorf("%w: %s", inventory.ErrRunInProgress, key)
	}
	locker.held[key] = struct{}{}
	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			locker.mutex.Lock()
			delete(locker.held, key)
			locker.mutex.Unlock()
		})
		return nil
	}, nil
}
