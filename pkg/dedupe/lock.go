package dedupe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serializes resolution per dedupe key so concurrent identical
// submissions cannot both take the lookup-then-create path.
type Locker interface {
	// Acquire blocks until the key lock is held or the context is done, and
	// returns the release func.
	Acquire(ctx context.Context, key string) (func(context.Context) error, error)
}

// LocalLocker serializes within one process. Suitable for the file store and
// for tests; multi-instance deployments need the redis locker.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLocalLocker creates an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *LocalLocker) Acquire(_ context.Context, key string) (func(context.Context) error, error) {
	l.mu.Lock()
	lock, ok := l.locks[key]

	if !ok {
		lock = &sync.Mutex{}
		l.locks[key] = lock
	}
	l.mu.Unlock()

	lock.Lock()

	return func(context.Context) error {
		lock.Unlock()

		return nil
	}, nil
}

// unlockScript deletes the lock only when still held by the releasing owner.
var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker serializes across engine instances with a SET NX lease.
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	retry  time.Duration
}

// NewRedisLocker creates a locker on an existing redis client. The ttl bounds
// how long a crashed holder can block others.
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	return &RedisLocker{client: client, ttl: ttl, retry: 50 * time.Millisecond}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	token, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate lock token: %w", err)
	}

	owner := token.String()
	redisKey := "rulegate:dedupe:" + key

	for {
		ok, err := l.client.SetNX(ctx, redisKey, owner, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire dedupe lock %q: %w", key, err)
		}

		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}

	release := func(ctx context.Context) error {
		err := unlockScript.Run(ctx, l.client, []string{redisKey}, owner).Err()
		if err != nil {
			return fmt.Errorf("failed to release dedupe lock %q: %w", key, err)
		}

		return nil
	}

	return release, nil
}
