package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Bootstrap metrics
	BootstrapSourceTotal    *prometheus.CounterVec
	BootstrapDurationSecond prometheus.Histogram

	// Refresh metrics
	RefreshTotal           *prometheus.CounterVec
	RefreshDurationSeconds prometheus.Histogram

	// Snapshot metrics
	SnapshotAgeSeconds prometheus.Gauge
	SnapshotGroups     prometheus.Gauge
	SnapshotTeachers   prometheus.Gauge
	SnapshotClassrooms prometheus.Gauge

	// Query metrics
	QueriesTotal *prometheus.CounterVec

	// Resolver metrics
	ResolverOutcomesTotal *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Backup metrics
	BackupTasksTotal *prometheus.CounterVec

	// Rate limiting metrics
	RateLimitDropsTotal prometheus.Counter
}

// New creates a new Metrics instance with all metrics registered
func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// Bootstrap metrics
		BootstrapSourceTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "timetable_bootstrap_source_total",
				Help: "Bootstrap attempts by data source and outcome",
			},
			[]string{"source", "status"}, // source: cache, upstream, backup, fallback; status: success, miss, error
		),

		BootstrapDurationSecond: promauto.With(registry).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "timetable_bootstrap_duration_seconds",
				Help:    "Total duration of the bootstrap sequence",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}, // cache hit is fast, upstream fetch is not
			},
		),

		// Refresh metrics
		RefreshTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "timetable_refresh_total",
				Help: "Scheduled refresh runs by outcome",
			},
			[]string{"status"}, // status: updated, unchanged, error, lock_held
		),

		RefreshDurationSeconds: promauto.With(registry).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "timetable_refresh_duration_seconds",
				Help:    "Duration of one refresh run including download and rebuild",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			},
		),

		// Snapshot metrics
		SnapshotAgeSeconds: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "timetable_snapshot_age_seconds",
				Help: "Age of the currently served snapshot",
			},
		),

		SnapshotGroups: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "timetable_snapshot_groups",
				Help: "Number of groups in the currently served snapshot",
			},
		),

		SnapshotTeachers: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "timetable_snapshot_teachers",
				Help: "Number of teachers in the currently served snapshot",
			},
		),

		SnapshotClassrooms: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "timetable_snapshot_classrooms",
				Help: "Number of classrooms in the currently served snapshot",
			},
		),

		// Query metrics
		QueriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "timetable_queries_total",
				Help: "Schedule queries by kind and outcome",
			},
			[]string{"kind", "status"}, // kind: group_day, teacher, classroom, week_type, search; status: success, not_found, error
		),

		// Resolver metrics
		ResolverOutcomesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "timetable_resolver_outcomes_total",
				Help: "Teacher name resolution attempts by outcome",
			},
			[]string{"outcome"}, // outcome: success, ambiguous, not_found, invalid
		),

		// Cache metrics
		CacheHitsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "timetable_cache_hits_total",
				Help: "Redis cache hits by key kind",
			},
			[]string{"kind"}, // kind: snapshot, hash
		),

		CacheMissesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "timetable_cache_misses_total",
				Help: "Redis cache misses by key kind",
			},
			[]string{"kind"},
		),

		// Backup metrics
		BackupTasksTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "timetable_backup_tasks_total",
				Help: "Backup job runs by task and outcome",
			},
			[]string{"task", "status"}, // task: save, prune; status: success, skipped, error
		),

		// Rate limiting metrics
		RateLimitDropsTotal: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "timetable_rate_limit_drops_total",
				Help: "API requests rejected by the per-client rate limiter",
			},
		),
	}

	return m
}

// RecordBootstrapSource records one bootstrap tier attempt
func (m *Metrics) RecordBootstrapSource(source, status string) {
	m.BootstrapSourceTotal.WithLabelValues(source, status).Inc()
}

// RecordBootstrapDuration records the full bootstrap duration
func (m *Metrics) RecordBootstrapDuration(duration float64) {
	m.BootstrapDurationSecond.Observe(duration)
}

// RecordRefresh records one refresh run
func (m *Metrics) RecordRefresh(status string, duration float64) {
	m.RefreshTotal.WithLabelValues(status).Inc()
	m.RefreshDurationSeconds.Observe(duration)
}

// RecordSnapshot updates the snapshot gauges after a publish
func (m *Metrics) RecordSnapshot(ageSeconds float64, groups, teachers, classrooms int) {
	m.SnapshotAgeSeconds.Set(ageSeconds)
	m.SnapshotGroups.Set(float64(groups))
	m.SnapshotTeachers.Set(float64(teachers))
	m.SnapshotClassrooms.Set(float64(classrooms))
}

// RecordQuery records a schedule query
func (m *Metrics) RecordQuery(kind, status string) {
	m.QueriesTotal.WithLabelValues(kind, status).Inc()
}

// RecordResolverOutcome records a teacher name resolution attempt
func (m *Metrics) RecordResolverOutcome(outcome string) {
	m.ResolverOutcomesTotal.WithLabelValues(outcome).Inc()
}

// RecordCacheHit records a cache hit
func (m *Metrics) RecordCacheHit(kind string) {
	m.CacheHitsTotal.WithLabelValues(kind).Inc()
}

// RecordCacheMiss records a cache miss
func (m *Metrics) RecordCacheMiss(kind string) {
	m.CacheMissesTotal.WithLabelValues(kind).Inc()
}

// RecordBackupTask records a backup job run
func (m *Metrics) RecordBackupTask(task, status string) {
	m.BackupTasksTotal.WithLabelValues(task, status).Inc()
}

// RecordRateLimitDrop records one rejected API request
func (m *Metrics) RecordRateLimitDrop() {
	m.RateLimitDropsTotal.Inc()
}
