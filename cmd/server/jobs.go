// Package main provides the timetable API server entry point.
package main

import (
	"context"
	"errors"
	"time"

	"github.com/voenmeh-bot/timetable-go/internal/bootstrap"
	domerrors "github.com/voenmeh-bot/timetable-go/internal/errors"
	"github.com/voenmeh-bot/timetable-go/internal/logger"
	"github.com/voenmeh-bot/timetable-go/internal/metrics"
	"github.com/voenmeh-bot/timetable-go/internal/redisstore"
	"github.com/voenmeh-bot/timetable-go/internal/sentry"
	"github.com/voenmeh-bot/timetable-go/internal/timetable"
)

// snapshotMetricsInterval is how often the snapshot gauges are refreshed.
const snapshotMetricsInterval = time.Minute

// refreshTimeout bounds one refresh cycle, including the upstream fetch
// with its retries.
const refreshTimeout = 5 * time.Minute

// runRefreshLoop periodically re-fetches the upstream feed and publishes
// the rebuilt snapshot when the content changed.
func runRefreshLoop(ctx context.Context, coordinator *bootstrap.Coordinator, holder *timetable.Holder, interval time.Duration, m *metrics.Metrics, log *logger.Logger) {
	log = log.WithModule("refresh")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			performRefresh(ctx, coordinator, holder, m, log)
		}
	}
}

// performRefresh executes one refresh cycle
func performRefresh(ctx context.Context, coordinator *bootstrap.Coordinator, holder *timetable.Holder, m *metrics.Metrics, log *logger.Logger) {
	refreshCtx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	snapshot, err := coordinator.Refresh(refreshCtx)
	switch {
	case err == nil:
		holder.Publish(snapshot)
		recordSnapshot(m, snapshot)
		log.WithField("hash", snapshot.Hash).
			WithField("groups", snapshot.GroupCount()).
			Info("Timetable updated")
	case errors.Is(err, domerrors.ErrNotModified):
		log.Debug("Timetable unchanged")
	case errors.Is(err, domerrors.ErrLockNotAcquired):
		log.Debug("Another instance holds the refresh lock")
	default:
		log.WithError(err).Error("Refresh failed")
		sentry.CaptureException(err)
	}
}

// runBackupLoop periodically copies the cached snapshot into the
// timestamped backup ring and prunes old entries.
func runBackupLoop(ctx context.Context, cache *redisstore.Cache, backups *redisstore.Backups, interval time.Duration, retention int, m *metrics.Metrics, log *logger.Logger) {
	log = log.WithModule("backup")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			performBackup(ctx, cache, backups, retention, m, log)
		}
	}
}

// performBackup copies the cache verbatim so a backup restores the exact
// bytes that were being served.
func performBackup(ctx context.Context, cache *redisstore.Cache, backups *redisstore.Backups, retention int, m *metrics.Metrics, log *logger.Logger) {
	backupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	raw, err := cache.RawSnapshot(backupCtx)
	if err != nil {
		if errors.Is(err, domerrors.ErrCacheMiss) {
			m.RecordBackupTask("backup", "skipped")
			log.Debug("No cached snapshot to back up")
			return
		}
		m.RecordBackupTask("backup", "error")
		log.WithError(err).Error("Failed to read cache for backup")
		return
	}

	if err := backups.Save(backupCtx, raw, time.Now()); err != nil {
		m.RecordBackupTask("backup", "error")
		log.WithError(err).Error("Failed to save backup")
		sentry.CaptureException(err)
		return
	}
	m.RecordBackupTask("backup", "success")

	deleted, err := backups.Prune(backupCtx, retention)
	if err != nil {
		m.RecordBackupTask("prune", "error")
		log.WithError(err).Error("Failed to prune old backups")
		return
	}
	m.RecordBackupTask("prune", "success")

	log.WithField("bytes", len(raw)).
		WithField("pruned", deleted).
		Info("Backup complete")
}

// runSnapshotMetricsLoop keeps the snapshot gauges current between
// refreshes, so snapshot age grows visibly when the feed goes stale.
func runSnapshotMetricsLoop(ctx context.Context, holder *timetable.Holder, m *metrics.Metrics) {
	ticker := time.NewTicker(snapshotMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if snapshot := holder.Current(); snapshot != nil {
				recordSnapshot(m, snapshot)
			}
		}
	}
}

// recordSnapshot updates the snapshot gauges from one snapshot.
func recordSnapshot(m *metrics.Metrics, snapshot *timetable.Snapshot) {
	m.RecordSnapshot(
		time.Since(snapshot.FetchedAt).Seconds(),
		snapshot.GroupCount(),
		len(snapshot.TeacherNames()),
		len(snapshot.ClassroomNames()),
	)
}
