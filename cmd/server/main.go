// Package main provides the timetable API server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/voenmeh-bot/timetable-go/internal/bootstrap"
	"github.com/voenmeh-bot/timetable-go/internal/buildinfo"
	"github.com/voenmeh-bot/timetable-go/internal/config"
	"github.com/voenmeh-bot/timetable-go/internal/engine"
	"github.com/voenmeh-bot/timetable-go/internal/fetch"
	"github.com/voenmeh-bot/timetable-go/internal/logger"
	"github.com/voenmeh-bot/timetable-go/internal/metrics"
	"github.com/voenmeh-bot/timetable-go/internal/parity"
	"github.com/voenmeh-bot/timetable-go/internal/ratelimit"
	"github.com/voenmeh-bot/timetable-go/internal/redisstore"
	"github.com/voenmeh-bot/timetable-go/internal/resolver"
	"github.com/voenmeh-bot/timetable-go/internal/sentry"
	"github.com/voenmeh-bot/timetable-go/internal/settings"
	"github.com/voenmeh-bot/timetable-go/internal/timetable"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.LogLevel)
	log.WithField("build", buildinfo.Short()).Info("Starting timetable server")

	// Initialize Sentry (no-op when DSN is empty)
	if err := sentry.Initialize(sentry.Config{
		DSN:         cfg.SentryDSN,
		Environment: cfg.SentryEnvironment,
	}); err != nil {
		log.WithError(err).Warn("Failed to initialize Sentry, error reporting disabled")
	}
	defer sentry.Flush(2 * time.Second)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.WithError(err).Fatal("Failed to create data directory")
	}

	// Connect to Redis. An unreachable server is not fatal: the snapshot
	// loading tiers degrade through backups and the local fallback file,
	// and go-redis reconnects once the server comes back.
	redisClient, err := redisstore.Connect(context.Background(), cfg.RedisURL)
	if err != nil {
		if redisClient == nil {
			log.WithError(err).Fatal("Invalid Redis URL")
		}
		log.WithError(err).Warn("Redis unreachable at startup, continuing degraded")
	} else {
		log.Info("Redis connected")
	}
	defer func() { _ = redisClient.Close() }()

	// Open the settings database holding semester start overrides
	store, err := settings.Open(cfg.SettingsPath())
	if err != nil {
		log.WithError(err).Fatal("Failed to open settings database")
	}
	defer func() { _ = store.Close() }()
	log.WithField("path", cfg.SettingsPath()).Info("Settings database opened")

	// Build the week parity calculator from stored semester dates
	weeks := newWeekSource()
	if err := weeks.reload(context.Background(), store, cfg.OutOfSemester); err != nil {
		log.WithError(err).Fatal("Failed to load semester calendar")
	}

	// Create Prometheus registry
	registry := prometheus.NewRegistry()

	// Register Go and process collectors
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(collectors.NewBuildInfoCollector())

	// Create metrics
	m := metrics.New(registry)
	log.Info("Metrics initialized")

	// Assemble the bootstrap coordinator
	feedClient := fetch.NewClient(cfg.FeedURL, cfg.FetchTimeout, cfg.FetchRetries)
	cache := redisstore.NewCache(redisClient)
	backups := redisstore.NewBackups(redisClient)

	coordinator := bootstrap.New(bootstrap.Config{
		Cache:            cache,
		Backups:          backups,
		Fetcher:          feedClient,
		NewLock:          func() bootstrap.Locker { return redisstore.NewLock(redisClient, cfg.LockTTL) },
		FallbackPath:     cfg.FallbackPath(),
		BackupMaxAge:     cfg.BackupMaxAge,
		LockWait:         cfg.LockWait,
		LockPollInterval: cfg.LockPollInterval,
	}, log, m)

	// Load the initial snapshot. The server refuses to start without one:
	// serving an empty timetable would be indistinguishable from data loss.
	bootCtx, bootCancel := context.WithTimeout(context.Background(), cfg.FetchTimeout+cfg.LockWait+time.Minute)
	snapshot, err := coordinator.Bootstrap(bootCtx)
	bootCancel()
	if err != nil {
		log.WithError(err).Fatal("No timetable data available from any source")
	}

	holder := timetable.NewHolder()
	holder.Publish(snapshot)
	recordSnapshot(m, snapshot)
	log.WithFields(map[string]any{
		"hash":       snapshot.Hash,
		"groups":     snapshot.GroupCount(),
		"fetched_at": snapshot.FetchedAt,
	}).Info("Timetable snapshot loaded")

	// Create the query engine
	eng := engine.New(holder, weeks, resolver.New(nil, cfg.FuzzyThreshold), log, m)

	// Per-client rate limiter for the query API
	limiter := ratelimit.NewPerKeyLimiter(ratelimit.PerKeyLimiterConfig{
		MaxTokens:     cfg.RateLimitTokens,
		RefillRate:    cfg.RateLimitRefillRate,
		CleanupPeriod: 5 * time.Minute,
	})
	limiter.OnDrop(m.RecordRateLimitDrop)
	defer limiter.Stop()

	// Set Gin mode based on log level
	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create Gin router
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	if sentry.IsEnabled() {
		router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	router.Use(securityHeadersMiddleware())
	router.Use(loggingMiddleware(log))

	// Setup routes
	setupRoutes(router, eng, holder, redisClient, store, weeks, limiter, registry, cfg, log)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  config.HTTPReadTimeout,
		WriteTimeout: config.HTTPWriteTimeout,
		IdleTimeout:  config.HTTPIdleTimeout,
	}

	// Start background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	// Periodic feed refresh goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.WithField("panic", r).Error("Panic in refresh goroutine")
			}
		}()
		runRefreshLoop(ctx, coordinator, holder, cfg.RefreshInterval, m, log)
	}()

	// Periodic cache backup goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.WithField("panic", r).Error("Panic in backup goroutine")
			}
		}()
		runBackupLoop(ctx, cache, backups, cfg.BackupInterval, cfg.BackupRetention, m, log)
	}()

	// Snapshot age metrics updater goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.WithField("panic", r).Error("Panic in snapshot metrics goroutine")
			}
		}()
		runSnapshotMetricsLoop(ctx, holder, m)
	}()

	// Start server in goroutine
	go func() {
		log.WithField("port", cfg.Port).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Cancel context to stop background loops
	cancel()

	// Wait for goroutines to finish (with timeout)
	goDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(goDone)
	}()

	select {
	case <-goDone:
		log.Info("All background goroutines stopped")
	case <-time.After(5 * time.Second):
		log.Warn("Timeout waiting for goroutines to stop")
	}

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	// Shutdown server gracefully
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	log.Info("Server stopped")
}

// weekSource serves week parity queries from a calculator that is swapped
// atomically when semester start dates change through the settings API.
type weekSource struct {
	mu   sync.RWMutex
	calc *parity.Calculator
}

func newWeekSource() *weekSource {
	return &weekSource{}
}

// WeekType implements engine.WeekCalculator.
func (w *weekSource) WeekType(date time.Time) (parity.WeekInfo, error) {
	w.mu.RLock()
	calc := w.calc
	w.mu.RUnlock()
	return calc.WeekType(date)
}

// reload rebuilds the calculator from the settings store.
func (w *weekSource) reload(ctx context.Context, store *settings.Store, policy parity.OutOfSemesterPolicy) error {
	calendar, err := store.Calendar(ctx)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.calc = parity.NewCalculator(calendar, policy)
	w.mu.Unlock()
	return nil
}
