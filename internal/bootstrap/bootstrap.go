// Package bootstrap drives snapshot acquisition: the tiered startup
// sequence that turns "some source, any source" into a served snapshot,
// and the periodic refresh that keeps it current.
//
// Source order at startup: Redis cache, upstream feed (behind a
// distributed lock so one instance downloads for the whole fleet), the
// newest Redis backup, and finally the local fallback file. The order is
// freshness-first: each tier is assumed staler than the one before it.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	domerrors "github.com/voenmeh-bot/timetable-go/internal/errors"
	"github.com/voenmeh-bot/timetable-go/internal/fetch"
	"github.com/voenmeh-bot/timetable-go/internal/logger"
	"github.com/voenmeh-bot/timetable-go/internal/metrics"
	"github.com/voenmeh-bot/timetable-go/internal/timetable"
)

// CacheStore is the hot cache tier.
type CacheStore interface {
	LoadSnapshot(ctx context.Context) (*timetable.Snapshot, error)
	SaveSnapshot(ctx context.Context, snapshot *timetable.Snapshot) error
	KnownHash(ctx context.Context) (string, error)
}

// BackupStore is the timestamped backup tier.
type BackupStore interface {
	LoadLatest(ctx context.Context, now time.Time, maxAge time.Duration) (*timetable.Snapshot, error)
}

// Fetcher downloads and parses the upstream feed.
type Fetcher interface {
	Fetch(ctx context.Context, knownHash string) (*fetch.Feed, error)
}

// Locker is one acquisition attempt of the distributed refresh lock.
type Locker interface {
	TryAcquire(ctx context.Context) error
	Release(ctx context.Context) error
}

// Config wires the coordinator's collaborators and tuning knobs.
type Config struct {
	Cache   CacheStore
	Backups BackupStore
	Fetcher Fetcher
	NewLock func() Locker // fresh lock handle per attempt

	FallbackPath string        // local snapshot file, last bootstrap tier
	BackupMaxAge time.Duration // backups older than this are not trusted; zero accepts any

	// When another instance holds the refresh lock at startup, this
	// instance waits for the winner's result to land in the cache instead
	// of hammering the upstream itself.
	LockWait         time.Duration
	LockPollInterval time.Duration

	Now func() time.Time // defaults to time.Now; tests override
}

// Coordinator runs the bootstrap sequence and scheduled refreshes.
type Coordinator struct {
	cfg     Config
	log     *logger.Logger
	metrics *metrics.Metrics
	group   singleflight.Group
}

// New creates a bootstrap coordinator.
func New(cfg Config, log *logger.Logger, m *metrics.Metrics) *Coordinator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.LockPollInterval <= 0 {
		cfg.LockPollInterval = 2 * time.Second
	}
	return &Coordinator{cfg: cfg, log: log.WithModule("bootstrap"), metrics: m}
}

// Bootstrap obtains a snapshot from the freshest available source.
//
// Concurrent callers within the process collapse into one run. Returns
// ErrNoData only after every tier has been tried; any snapshot, however
// stale, beats refusing to start.
func (c *Coordinator) Bootstrap(ctx context.Context) (*timetable.Snapshot, error) {
	result, err, _ := c.group.Do("bootstrap", func() (any, error) {
		started := c.cfg.Now()
		snapshot, err := c.bootstrap(ctx)
		c.metrics.RecordBootstrapDuration(c.cfg.Now().Sub(started).Seconds())
		return snapshot, err
	})
	if err != nil {
		return nil, err
	}
	return result.(*timetable.Snapshot), nil
}

func (c *Coordinator) bootstrap(ctx context.Context) (*timetable.Snapshot, error) {
	// Tier 1: hot cache.
	if snapshot, ok := c.tryCache(ctx); ok {
		return snapshot, nil
	}

	// Tier 2: upstream feed, one downloader fleet-wide.
	if snapshot, ok := c.tryUpstream(ctx); ok {
		return snapshot, nil
	}

	// Tier 3: newest acceptable backup.
	if snapshot, ok := c.tryBackup(ctx); ok {
		return snapshot, nil
	}

	// Tier 4: local fallback file.
	if snapshot, ok := c.tryFallbackFile(); ok {
		return snapshot, nil
	}

	c.log.Error("all bootstrap sources exhausted")
	return nil, domerrors.ErrNoData
}

func (c *Coordinator) tryCache(ctx context.Context) (*timetable.Snapshot, bool) {
	snapshot, err := c.cfg.Cache.LoadSnapshot(ctx)
	switch {
	case err == nil:
		c.metrics.RecordBootstrapSource("cache", "success")
		c.log.Info("bootstrap from cache", "hash", snapshot.Hash, "groups", snapshot.GroupCount())
		return snapshot, true
	case errors.Is(err, domerrors.ErrCacheMiss):
		c.metrics.RecordBootstrapSource("cache", "miss")
		c.log.Info("cache empty, falling through to upstream")
	default:
		c.metrics.RecordBootstrapSource("cache", "error")
		c.log.WithError(err).Warn("cache unavailable, falling through to upstream")
	}
	return nil, false
}

func (c *Coordinator) tryUpstream(ctx context.Context) (*timetable.Snapshot, bool) {
	lock := c.cfg.NewLock()
	err := lock.TryAcquire(ctx)
	if errors.Is(err, domerrors.ErrLockNotAcquired) {
		// Another instance is downloading; wait for its snapshot to show
		// up in the cache rather than fetching in parallel.
		if snapshot, ok := c.waitForCache(ctx); ok {
			c.metrics.RecordBootstrapSource("upstream", "success")
			return snapshot, true
		}
		c.metrics.RecordBootstrapSource("upstream", "error")
		return nil, false
	}
	if err != nil {
		// Lock backend down. Proceed without the lock: double download is
		// wasteful but correct, and better than skipping a live upstream.
		c.log.WithError(err).Warn("refresh lock unavailable, fetching without it")
	} else {
		defer func() { _ = lock.Release(ctx) }()
	}

	feed, err := c.cfg.Fetcher.Fetch(ctx, "")
	if err != nil {
		c.metrics.RecordBootstrapSource("upstream", "error")
		c.log.WithError(err).Warn("upstream fetch failed, falling through to backup")
		return nil, false
	}

	snapshot, err := timetable.Build(feed.Result.Lessons, feed.Hash, feed.FetchedAt, &feed.Result.Period)
	if err != nil {
		c.metrics.RecordBootstrapSource("upstream", "error")
		c.log.WithError(err).Error("feed downloaded but snapshot build failed")
		return nil, false
	}

	c.metrics.RecordBootstrapSource("upstream", "success")
	c.log.Info("bootstrap from upstream", "hash", snapshot.Hash, "groups", snapshot.GroupCount(), "skipped", feed.Result.Skipped)
	c.persist(ctx, snapshot)
	return snapshot, true
}

// waitForCache polls the cache while another instance refreshes it.
func (c *Coordinator) waitForCache(ctx context.Context) (*timetable.Snapshot, bool) {
	c.log.Info("refresh lock held elsewhere, waiting for cached result", "wait", c.cfg.LockWait.String())

	deadline := c.cfg.Now().Add(c.cfg.LockWait)
	ticker := time.NewTicker(c.cfg.LockPollInterval)
	defer ticker.Stop()

	for c.cfg.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, false
		case <-ticker.C:
		}
		snapshot, err := c.cfg.Cache.LoadSnapshot(ctx)
		if err == nil {
			c.log.Info("lock holder delivered snapshot", "hash", snapshot.Hash)
			return snapshot, true
		}
	}

	c.log.Warn("gave up waiting for the lock holder")
	return nil, false
}

func (c *Coordinator) tryBackup(ctx context.Context) (*timetable.Snapshot, bool) {
	snapshot, err := c.cfg.Backups.LoadLatest(ctx, c.cfg.Now(), c.cfg.BackupMaxAge)
	switch {
	case err == nil:
		c.metrics.RecordBootstrapSource("backup", "success")
		c.log.Warn("bootstrap from backup", "hash", snapshot.Hash, "fetched_at", snapshot.FetchedAt)
		c.persist(ctx, snapshot)
		return snapshot, true
	case errors.Is(err, domerrors.ErrCacheMiss):
		c.metrics.RecordBootstrapSource("backup", "miss")
		c.log.Info("no acceptable backup, falling through to fallback file")
	default:
		c.metrics.RecordBootstrapSource("backup", "error")
		c.log.WithError(err).Warn("backup store unavailable, falling through to fallback file")
	}
	return nil, false
}

func (c *Coordinator) tryFallbackFile() (*timetable.Snapshot, bool) {
	if c.cfg.FallbackPath == "" {
		c.metrics.RecordBootstrapSource("fallback", "miss")
		return nil, false
	}
	snapshot, err := timetable.ReadFile(c.cfg.FallbackPath)
	if err != nil {
		c.metrics.RecordBootstrapSource("fallback", "error")
		c.log.WithError(err).Warn("fallback file unusable")
		return nil, false
	}
	c.metrics.RecordBootstrapSource("fallback", "success")
	c.log.Warn("bootstrap from fallback file", "path", c.cfg.FallbackPath, "hash", snapshot.Hash)
	return snapshot, true
}

// persist writes a freshly obtained snapshot back to the faster tiers so
// the next startup finds it closer. Both writes are best effort.
func (c *Coordinator) persist(ctx context.Context, snapshot *timetable.Snapshot) {
	if err := c.cfg.Cache.SaveSnapshot(ctx, snapshot); err != nil {
		c.log.WithError(err).Warn("persist snapshot to cache failed")
	}
	if c.cfg.FallbackPath != "" {
		if err := snapshot.WriteFile(c.cfg.FallbackPath); err != nil {
			c.log.WithError(err).Warn("persist snapshot to fallback file failed", "path", c.cfg.FallbackPath)
		}
	}
}

// Refresh downloads the feed if its content changed and returns the new
// snapshot.
//
// Returns ErrNotModified when the upstream hash matches the cached one,
// and ErrLockNotAcquired when another instance is already refreshing.
// The caller decides whether to publish the result.
func (c *Coordinator) Refresh(ctx context.Context) (*timetable.Snapshot, error) {
	result, err, _ := c.group.Do("refresh", func() (any, error) {
		return c.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.(*timetable.Snapshot), nil
}

func (c *Coordinator) refresh(ctx context.Context) (*timetable.Snapshot, error) {
	started := c.cfg.Now()

	lock := c.cfg.NewLock()
	if err := lock.TryAcquire(ctx); err != nil {
		if errors.Is(err, domerrors.ErrLockNotAcquired) {
			c.metrics.RecordRefresh("lock_held", c.cfg.Now().Sub(started).Seconds())
			return nil, err
		}
		return nil, fmt.Errorf("acquire refresh lock: %w", err)
	}
	defer func() { _ = lock.Release(ctx) }()

	knownHash, err := c.cfg.Cache.KnownHash(ctx)
	if err != nil {
		c.log.WithError(err).Warn("known hash unavailable, refreshing unconditionally")
		knownHash = ""
	}

	feed, err := c.cfg.Fetcher.Fetch(ctx, knownHash)
	if errors.Is(err, domerrors.ErrNotModified) {
		c.metrics.RecordRefresh("unchanged", c.cfg.Now().Sub(started).Seconds())
		return nil, err
	}
	if err != nil {
		c.metrics.RecordRefresh("error", c.cfg.Now().Sub(started).Seconds())
		return nil, fmt.Errorf("refresh fetch: %w", err)
	}

	snapshot, err := timetable.Build(feed.Result.Lessons, feed.Hash, feed.FetchedAt, &feed.Result.Period)
	if err != nil {
		c.metrics.RecordRefresh("error", c.cfg.Now().Sub(started).Seconds())
		return nil, fmt.Errorf("refresh build: %w", err)
	}

	c.persist(ctx, snapshot)
	c.metrics.RecordRefresh("updated", c.cfg.Now().Sub(started).Seconds())
	c.log.Info("timetable updated", "old_hash", knownHash, "new_hash", snapshot.Hash, "groups", snapshot.GroupCount())
	return snapshot, nil
}
