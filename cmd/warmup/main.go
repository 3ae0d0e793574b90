// Command warmup seeds the Redis cache and the local fallback file with a
// fresh snapshot before the server starts. Running it during deployment
// means the first server instance boots from the cache tier instead of
// hitting the university feed.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/voenmeh-bot/timetable-go/internal/config"
	domerrors "github.com/voenmeh-bot/timetable-go/internal/errors"
	"github.com/voenmeh-bot/timetable-go/internal/fetch"
	"github.com/voenmeh-bot/timetable-go/internal/logger"
	"github.com/voenmeh-bot/timetable-go/internal/redisstore"
	"github.com/voenmeh-bot/timetable-go/internal/timetable"
)

// CLI flags
var (
	forceFlag = flag.Bool("force", false, "Rebuild even when the feed hash matches the cached one")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	log.Info("Starting warmup tool")

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.WithError(err).Fatal("Failed to create data directory")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.FetchTimeout+time.Minute)
	defer cancel()

	redisClient, err := redisstore.Connect(ctx, cfg.RedisURL)
	if err != nil {
		if redisClient == nil {
			log.WithError(err).Fatal("Invalid Redis URL")
		}
		log.WithError(err).Warn("Redis unreachable, only the fallback file will be written")
	}
	defer func() { _ = redisClient.Close() }()

	cache := redisstore.NewCache(redisClient)

	knownHash := ""
	if !*forceFlag {
		if hash, err := cache.KnownHash(ctx); err == nil {
			knownHash = hash
		}
	}

	start := time.Now()
	client := fetch.NewClient(cfg.FeedURL, cfg.FetchTimeout, cfg.FetchRetries)
	feed, err := client.Fetch(ctx, knownHash)
	if err != nil {
		if errors.Is(err, domerrors.ErrNotModified) {
			log.WithField("hash", knownHash).Info("Feed unchanged, cache already warm")
			return
		}
		log.WithError(err).Fatal("Failed to fetch feed")
	}

	snapshot, err := timetable.Build(feed.Result.Lessons, feed.Hash, feed.FetchedAt, &feed.Result.Period)
	if err != nil {
		log.WithError(err).Fatal("Failed to build snapshot")
	}

	if err := cache.SaveSnapshot(ctx, snapshot); err != nil {
		log.WithError(err).Warn("Failed to save snapshot to Redis")
	} else {
		log.Info("Snapshot cached in Redis")
	}

	if err := snapshot.WriteFile(cfg.FallbackPath()); err != nil {
		log.WithError(err).Fatal("Failed to write fallback file")
	}
	log.WithField("path", filepath.Clean(cfg.FallbackPath())).Info("Fallback file written")

	log.WithFields(map[string]any{
		"hash":       snapshot.Hash,
		"groups":     snapshot.GroupCount(),
		"teachers":   len(snapshot.TeacherNames()),
		"classrooms": len(snapshot.ClassroomNames()),
		"skipped":    feed.Result.Skipped,
		"duration":   time.Since(start).Round(time.Millisecond).String(),
	}).Info("Warmup complete")
}
