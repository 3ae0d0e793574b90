package redisstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	domerrors "github.com/voenmeh-bot/timetable-go/internal/errors"
	"github.com/voenmeh-bot/timetable-go/internal/timetable"
)

// backupPrefix plus a UTC timestamp forms one backup key, e.g.
// "timetable:backup:20240901_120000". Keys sort lexicographically in
// chronological order.
const (
	backupPrefix  = "timetable:backup:"
	backupTimeFmt = "20060102_150405"
)

// Backups manages the timestamped snapshot backup ring in Redis.
type Backups struct {
	client *redis.Client
}

// NewBackups wraps a Redis client as the backup store.
func NewBackups(client *redis.Client) *Backups {
	return &Backups{client: client}
}

// Save stores one serialized snapshot under a fresh timestamped key.
// It takes raw bytes rather than a snapshot so the backup job can copy
// the cache value without a decode/encode round trip.
func (b *Backups) Save(ctx context.Context, raw []byte, now time.Time) error {
	key := backupPrefix + now.UTC().Format(backupTimeFmt)
	if err := b.client.Set(ctx, key, raw, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// List returns every backup timestamp, newest first.
func (b *Backups) List(ctx context.Context) ([]time.Time, error) {
	keys, err := b.scanKeys(ctx)
	if err != nil {
		return nil, err
	}

	stamps := make([]time.Time, 0, len(keys))
	for _, key := range keys {
		ts, err := time.Parse(backupTimeFmt, strings.TrimPrefix(key, backupPrefix))
		if err != nil {
			continue // foreign key under our prefix, not ours to touch
		}
		stamps = append(stamps, ts.UTC())
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].After(stamps[j]) })
	return stamps, nil
}

// LoadLatest returns the newest backup not older than maxAge (zero maxAge
// accepts any age). Returns ErrCacheMiss when no acceptable backup exists.
func (b *Backups) LoadLatest(ctx context.Context, now time.Time, maxAge time.Duration) (*timetable.Snapshot, error) {
	stamps, err := b.List(ctx)
	if err != nil {
		return nil, err
	}

	for _, ts := range stamps {
		if maxAge > 0 && now.UTC().Sub(ts) > maxAge {
			continue
		}
		key := backupPrefix + ts.Format(backupTimeFmt)
		raw, err := b.client.Get(ctx, key).Bytes()
		if err != nil {
			// Deleted between scan and get; try the next one.
			continue
		}
		snapshot, err := timetable.Unmarshal(raw)
		if err != nil {
			return nil, fmt.Errorf("decode backup %s: %w", key, err)
		}
		return snapshot, nil
	}

	return nil, domerrors.ErrCacheMiss
}

// Prune deletes all but the newest keep backups. A keep of zero or less
// is a no-op.
func (b *Backups) Prune(ctx context.Context, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}

	stamps, err := b.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(stamps) <= keep {
		return 0, nil
	}

	deleted := 0
	for _, ts := range stamps[keep:] {
		key := backupPrefix + ts.Format(backupTimeFmt)
		if err := b.client.Del(ctx, key).Err(); err != nil {
			return deleted, fmt.Errorf("redis del %s: %w", key, err)
		}
		deleted++
	}
	return deleted, nil
}

func (b *Backups) scanKeys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := b.client.Scan(ctx, 0, backupPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan %s*: %w", backupPrefix, err)
	}
	return keys, nil
}
