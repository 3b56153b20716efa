// Package lock serialises check-then-write sequences per room.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotAcquired is returned when a lock stays held by someone else for every attempt.
var ErrLockNotAcquired = errors.New("lock not acquired")

// Locker hands out exclusive named locks. The returned function releases the lock.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// RoomKey is the lock name guarding bookings of a room.
func RoomKey(roomID int64) string {
	return fmt.Sprintf("orgcal:lock:room:%d", roomID)
}

// releaseScript deletes the key only when it still holds our token, so an expired lock
// re-acquired by another holder is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker implements Locker with SET NX PX so that several instances sharing one
// database also share locks.
type RedisLocker struct {
	client   *redis.Client
	ttl      time.Duration
	attempts uint
	delay    time.Duration
}

// NewRedisLocker creates a locker. Locks expire after ttl even if never released.
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl, attempts: 20, delay: 50 * time.Millisecond}
}

// WithRetry overrides the acquisition attempts and the delay between them.
func (l *RedisLocker) WithRetry(attempts uint, delay time.Duration) *RedisLocker {
	l.attempts = attempts
	l.delay = delay
	return l
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()

	err := retry.Do(
		func() error {
			ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("redis setnx %s: %w", key, err))
			}
			if !ok {
				return ErrLockNotAcquired
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(l.attempts),
		retry.Delay(l.delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}

	release := func() {
		// The caller's context may already be done; release must still run.
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}
	return release, nil
}

// LocalLocker implements Locker with in-process mutexes, for single-instance deployments.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]chan struct{})}
}

func (l *LocalLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[key] = ch
	}
	return ch
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(), error) {
	ch := l.slot(key)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrLockNotAcquired, ctx.Err())
	}

	var once sync.Once
	return func() { once.Do(func() { <-ch }) }, nil
}
