package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	domerrors "github.com/voenmeh-bot/timetable-go/internal/errors"
	"github.com/voenmeh-bot/timetable-go/internal/timetable"
)

// Cache key layout. The snapshot key holds the full serialized snapshot;
// the hash key holds the MD5 of the last ingested feed so the change
// monitor can do a cheap comparison without loading the snapshot.
const (
	snapshotKey = "timetable:cache"
	hashKey     = "timetable:hash"
)

// Cache is the hot snapshot cache. Keys carry no expiry: stale data
// beats no data when the upstream is down, and the change monitor
// refreshes content on its own schedule.
type Cache struct {
	client *redis.Client
}

// NewCache wraps a Redis client as the snapshot cache.
func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// LoadSnapshot reads and deserializes the cached snapshot.
// Returns ErrCacheMiss when the key is absent.
func (c *Cache) LoadSnapshot(ctx context.Context) (*timetable.Snapshot, error) {
	raw, err := c.client.Get(ctx, snapshotKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domerrors.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", snapshotKey, err)
	}

	snapshot, err := timetable.Unmarshal(raw)
	if err != nil {
		return nil, fmt.Errorf("decode cached snapshot: %w", err)
	}
	return snapshot, nil
}

// SaveSnapshot serializes and stores the snapshot, and records its feed
// hash alongside. Both writes are unconditional; the caller decides when
// a snapshot is worth persisting.
func (c *Cache) SaveSnapshot(ctx context.Context, snapshot *timetable.Snapshot) error {
	payload, err := snapshot.Marshal()
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if err := c.client.Set(ctx, snapshotKey, payload, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", snapshotKey, err)
	}
	if err := c.client.Set(ctx, hashKey, snapshot.Hash, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", hashKey, err)
	}
	return nil
}

// KnownHash returns the feed hash of the last persisted snapshot, or ""
// when none has been recorded.
func (c *Cache) KnownHash(ctx context.Context) (string, error) {
	hash, err := c.client.Get(ctx, hashKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", hashKey, err)
	}
	return hash, nil
}

// RawSnapshot returns the serialized snapshot bytes without decoding,
// for the backup job to copy verbatim. Returns ErrCacheMiss when absent.
func (c *Cache) RawSnapshot(ctx context.Context) ([]byte, error) {
	raw, err := c.client.Get(ctx, snapshotKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domerrors.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", snapshotKey, err)
	}
	return raw, nil
}
