package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var (
	errLockNotConfigured = errors.New("lock client not configured")
	errEmptyLockKey      = errors.New("lock key is empty")
	errInvalidLockTTL    = errors.New("lock ttl must be positive")
)

// Locker hands the sweep to one replica at a time.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key string, token string) error
}

// RedisLocker implements Locker with SET NX and a compare-and-delete release.
type RedisLocker struct {
	client *redis.Client
	script *redis.Script
	newID  func() string
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	if client == nil {
		return nil
	}
	return &RedisLocker{
		client: client,
		script: redis.NewScript(lockReleaseScript),
		newID:  uuid.NewString,
	}
}

func (locker *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if locker == nil || locker.client == nil {
		return "", false, errLockNotConfigured
	}
	if key == "" {
		return "", false, errEmptyLockKey
	}
	if ttl <= 0 {
		return "", false, errInvalidLockTTL
	}
	token := locker.newID()
	acquired, err := locker.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, acquired, nil
}

func (locker *RedisLocker) Release(ctx context.Context, key string, token string) error {
	if locker == nil || locker.client == nil {
		return nil
	}
	if key == "" || token == "" {
		return nil
	}
	return locker.script.Run(ctx, locker.client, []string{key}, token).Err()
}
