// Package redisstore holds the Redis-backed persistence for timetable
// snapshots: the hot cache, the timestamped backup ring, and the
// distributed refresh lock.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Connect parses a Redis URL (redis://[user:pass@]host:port/db) and
// returns a client. A failed ping is reported alongside the client
// rather than instead of it: go-redis reconnects on its own once the
// server comes back, and the snapshot loading tiers tolerate a cold
// cache. Only an unparseable URL returns a nil client.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return client, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}
