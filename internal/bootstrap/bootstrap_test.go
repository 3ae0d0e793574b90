package bootstrap

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domerrors "github.com/voenmeh-bot/timetable-go/internal/errors"
	"github.com/voenmeh-bot/timetable-go/internal/fetch"
	"github.com/voenmeh-bot/timetable-go/internal/logger"
	"github.com/voenmeh-bot/timetable-go/internal/metrics"
	"github.com/voenmeh-bot/timetable-go/internal/timetable"
)

// --- fakes -----------------------------------------------------------------

type fakeCache struct {
	mu       sync.Mutex
	snapshot *timetable.Snapshot
	hash     string
	loadErr  error
	saveErr  error
	saves    int
}

func (f *fakeCache) LoadSnapshot(context.Context) (*timetable.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	if f.snapshot == nil {
		return nil, domerrors.ErrCacheMiss
	}
	return f.snapshot, nil
}

func (f *fakeCache) SaveSnapshot(_ context.Context, s *timetable.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.snapshot = s
	f.hash = s.Hash
	return nil
}

func (f *fakeCache) KnownHash(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hash, nil
}

func (f *fakeCache) put(s *timetable.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshot = s
	f.hash = s.Hash
}

type fakeBackups struct {
	snapshot *timetable.Snapshot
	err      error
}

func (f *fakeBackups) LoadLatest(context.Context, time.Time, time.Duration) (*timetable.Snapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.snapshot == nil {
		return nil, domerrors.ErrCacheMiss
	}
	return f.snapshot, nil
}

type fakeFetcher struct {
	feed  *fetch.Feed
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, knownHash string) (*fetch.Feed, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if knownHash != "" && f.feed != nil && f.feed.Hash == knownHash {
		return nil, domerrors.ErrNotModified
	}
	return f.feed, nil
}

type fakeLock struct {
	acquireErr error
	released   int
}

func (f *fakeLock) TryAcquire(context.Context) error { return f.acquireErr }
func (f *fakeLock) Release(context.Context) error    { f.released++; return nil }

// --- helpers ---------------------------------------------------------------

func testLessons() []timetable.Lesson {
	return []timetable.Lesson{
		{
			Group:    "О-123",
			Day:      timetable.Monday,
			Parity:   timetable.ParityOdd,
			Time:     "09:00-10:30",
			StartRaw: "09:00",
			EndRaw:   "10:30",
			Subject:  "Математический анализ",
			Kind:     "лек",
			Room:     "418",
			Teachers: []string{"Землянская Е.Р."},
		},
	}
}

func buildSnapshot(t *testing.T, hash string) *timetable.Snapshot {
	t.Helper()

	snapshot, err := timetable.Build(testLessons(), hash, time.Now().UTC(), nil)
	require.NoError(t, err)
	return snapshot
}

func testFeed(hash string) *fetch.Feed {
	return &fetch.Feed{
		Hash:      hash,
		FetchedAt: time.Now().UTC(),
		Result: &fetch.ParseResult{
			Lessons: testLessons(),
			Period:  timetable.Period{StartYear: 2024, StartMonth: 9, StartDay: 1},
		},
	}
}

func newCoordinator(t *testing.T, cfg Config) *Coordinator {
	t.Helper()

	if cfg.NewLock == nil {
		cfg.NewLock = func() Locker { return &fakeLock{} }
	}
	log := logger.NewWithWriter("error", io.Discard)
	return New(cfg, log, metrics.New(prometheus.NewRegistry()))
}

// --- bootstrap tiers -------------------------------------------------------

func TestBootstrapFromCache(t *testing.T) {
	t.Parallel()

	cache := &fakeCache{}
	cache.put(buildSnapshot(t, "cached"))
	fetcher := &fakeFetcher{feed: testFeed("fresh")}

	c := newCoordinator(t, Config{Cache: cache, Backups: &fakeBackups{}, Fetcher: fetcher})

	snapshot, err := c.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cached", snapshot.Hash)
	assert.Zero(t, fetcher.calls, "cache hit short-circuits the upstream")
}

func TestBootstrapFromUpstream(t *testing.T) {
	t.Parallel()

	cache := &fakeCache{}
	fetcher := &fakeFetcher{feed: testFeed("fresh")}
	fallback := filepath.Join(t.TempDir(), "snapshot.json.zst")

	c := newCoordinator(t, Config{
		Cache:        cache,
		Backups:      &fakeBackups{},
		Fetcher:      fetcher,
		FallbackPath: fallback,
	})

	snapshot, err := c.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", snapshot.Hash)

	// The fresh snapshot is persisted to both faster tiers.
	assert.Equal(t, 1, cache.saves)
	fromFile, err := timetable.ReadFile(fallback)
	require.NoError(t, err)
	assert.Equal(t, "fresh", fromFile.Hash)
}

func TestBootstrapFromBackupWhenCacheAndUpstreamDown(t *testing.T) {
	t.Parallel()

	cache := &fakeCache{loadErr: errors.New("connection refused"), saveErr: errors.New("connection refused")}
	fetcher := &fakeFetcher{err: domerrors.NewSourceError("upstream", errors.New("timeout"))}
	backups := &fakeBackups{snapshot: buildSnapshot(t, "backup")}
	fallback := filepath.Join(t.TempDir(), "snapshot.json.zst")

	c := newCoordinator(t, Config{
		Cache:        cache,
		Backups:      backups,
		Fetcher:      fetcher,
		FallbackPath: fallback,
	})

	snapshot, err := c.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "backup", snapshot.Hash)

	// Even with the cache down, the backup data lands in the local file so
	// the next start works fully offline.
	fromFile, err := timetable.ReadFile(fallback)
	require.NoError(t, err)
	assert.Equal(t, "backup", fromFile.Hash)
}

func TestBootstrapFromFallbackFile(t *testing.T) {
	t.Parallel()

	fallback := filepath.Join(t.TempDir(), "snapshot.json.zst")
	require.NoError(t, buildSnapshot(t, "file").WriteFile(fallback))

	c := newCoordinator(t, Config{
		Cache:        &fakeCache{loadErr: errors.New("down"), saveErr: errors.New("down")},
		Backups:      &fakeBackups{err: errors.New("down")},
		Fetcher:      &fakeFetcher{err: errors.New("down")},
		FallbackPath: fallback,
	})

	snapshot, err := c.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "file", snapshot.Hash)
}

func TestBootstrapAllTiersExhausted(t *testing.T) {
	t.Parallel()

	c := newCoordinator(t, Config{
		Cache:        &fakeCache{loadErr: errors.New("down"), saveErr: errors.New("down")},
		Backups:      &fakeBackups{},
		Fetcher:      &fakeFetcher{err: errors.New("down")},
		FallbackPath: filepath.Join(t.TempDir(), "missing.json.zst"),
	})

	_, err := c.Bootstrap(context.Background())
	assert.ErrorIs(t, err, domerrors.ErrNoData)
}

func TestBootstrapWaitsForLockHolder(t *testing.T) {
	t.Parallel()

	cache := &fakeCache{}
	fetcher := &fakeFetcher{feed: testFeed("mine")}

	c := newCoordinator(t, Config{
		Cache:            cache,
		Backups:          &fakeBackups{},
		Fetcher:          fetcher,
		NewLock:          func() Locker { return &fakeLock{acquireErr: domerrors.ErrLockNotAcquired} },
		LockWait:         2 * time.Second,
		LockPollInterval: 10 * time.Millisecond,
	})

	// Simulate the lock holder finishing its refresh shortly after we
	// start waiting.
	go func() {
		time.Sleep(50 * time.Millisecond)
		cache.put(buildSnapshot(t, "theirs"))
	}()

	snapshot, err := c.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "theirs", snapshot.Hash)
	assert.Zero(t, fetcher.calls, "the waiter never fetches itself")
}

func TestBootstrapLockBackendDownStillFetches(t *testing.T) {
	t.Parallel()

	cache := &fakeCache{}
	fetcher := &fakeFetcher{feed: testFeed("fresh")}

	c := newCoordinator(t, Config{
		Cache:   cache,
		Backups: &fakeBackups{},
		Fetcher: fetcher,
		NewLock: func() Locker { return &fakeLock{acquireErr: errors.New("redis down")} },
	})

	snapshot, err := c.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", snapshot.Hash)
}

// --- refresh ---------------------------------------------------------------

func TestRefreshUnchanged(t *testing.T) {
	t.Parallel()

	cache := &fakeCache{}
	cache.put(buildSnapshot(t, "same"))
	fetcher := &fakeFetcher{feed: testFeed("same")}

	c := newCoordinator(t, Config{Cache: cache, Backups: &fakeBackups{}, Fetcher: fetcher})

	_, err := c.Refresh(context.Background())
	assert.ErrorIs(t, err, domerrors.ErrNotModified)
}

func TestRefreshUpdated(t *testing.T) {
	t.Parallel()

	cache := &fakeCache{}
	cache.put(buildSnapshot(t, "old"))
	fetcher := &fakeFetcher{feed: testFeed("new")}
	fallback := filepath.Join(t.TempDir(), "snapshot.json.zst")

	c := newCoordinator(t, Config{
		Cache:        cache,
		Backups:      &fakeBackups{},
		Fetcher:      fetcher,
		FallbackPath: fallback,
	})

	snapshot, err := c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new", snapshot.Hash)

	hash, err := cache.KnownHash(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new", hash, "refresh persists the new snapshot")
}

func TestRefreshLockHeld(t *testing.T) {
	t.Parallel()

	c := newCoordinator(t, Config{
		Cache:   &fakeCache{},
		Backups: &fakeBackups{},
		Fetcher: &fakeFetcher{feed: testFeed("x")},
		NewLock: func() Locker { return &fakeLock{acquireErr: domerrors.ErrLockNotAcquired} },
	})

	_, err := c.Refresh(context.Background())
	assert.ErrorIs(t, err, domerrors.ErrLockNotAcquired)
}

func TestRefreshReleasesLock(t *testing.T) {
	t.Parallel()

	lock := &fakeLock{}
	cache := &fakeCache{}
	c := newCoordinator(t, Config{
		Cache:   cache,
		Backups: &fakeBackups{},
		Fetcher: &fakeFetcher{feed: testFeed("new")},
		NewLock: func() Locker { return lock },
	})

	_, err := c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, lock.released)
}
