package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	domerrors "github.com/voenmeh-bot/timetable-go/internal/errors"
)

const lockKey = "timetable:refresh:lock"

// Release and renew must only act when the stored owner token still
// matches, otherwise a slow holder could clobber a lock someone else has
// since acquired.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// Lock is a Redis-backed mutual exclusion lock for the refresh critical
// section. One Lock value tracks one acquisition; create a new value per
// attempt.
type Lock struct {
	client *redis.Client
	token  string
	ttl    time.Duration
}

// NewLock creates an unacquired lock handle with a unique owner token.
func NewLock(client *redis.Client, ttl time.Duration) *Lock {
	return &Lock{client: client, token: uuid.NewString(), ttl: ttl}
}

// TryAcquire attempts a non-blocking acquisition (SET NX with TTL).
// Returns ErrLockNotAcquired when another owner holds the lock. The TTL
// bounds how long a crashed holder can block everyone else.
func (l *Lock) TryAcquire(ctx context.Context) error {
	ok, err := l.client.SetNX(ctx, lockKey, l.token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis setnx %s: %w", lockKey, err)
	}
	if !ok {
		return domerrors.ErrLockNotAcquired
	}
	return nil
}

// Renew extends the TTL of a held lock. Returns ErrLockNotAcquired when
// the lock has expired or been taken by another owner in the meantime.
func (l *Lock) Renew(ctx context.Context) error {
	res, err := renewScript.Run(ctx, l.client, []string{lockKey}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("renew lock %s: %w", lockKey, err)
	}
	if res == 0 {
		return domerrors.ErrLockNotAcquired
	}
	return nil
}

// Release frees the lock if this handle still owns it. Releasing a lock
// that already expired is not an error.
func (l *Lock) Release(ctx context.Context) error {
	if _, err := releaseScript.Run(ctx, l.client, []string{lockKey}, l.token).Int(); err != nil {
		return fmt.Errorf("release lock %s: %w", lockKey, err)
	}
	return nil
}

// Token exposes the owner token for logging.
func (l *Lock) Token() string {
	return l.token
}
