// Package main provides the timetable API server entry point.
package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/voenmeh-bot/timetable-go/internal/buildinfo"
	"github.com/voenmeh-bot/timetable-go/internal/config"
	"github.com/voenmeh-bot/timetable-go/internal/engine"
	domerrors "github.com/voenmeh-bot/timetable-go/internal/errors"
	"github.com/voenmeh-bot/timetable-go/internal/logger"
	"github.com/voenmeh-bot/timetable-go/internal/parity"
	"github.com/voenmeh-bot/timetable-go/internal/ratelimit"
	"github.com/voenmeh-bot/timetable-go/internal/sentry"
	"github.com/voenmeh-bot/timetable-go/internal/settings"
	"github.com/voenmeh-bot/timetable-go/internal/timetable"
)

const dateLayout = "2006-01-02"

// setupRoutes configures all HTTP routes
func setupRoutes(
	router *gin.Engine,
	eng *engine.Engine,
	holder *timetable.Holder,
	redisClient *redis.Client,
	store *settings.Store,
	weeks *weekSource,
	limiter *ratelimit.PerKeyLimiter,
	registry *prometheus.Registry,
	cfg *config.Config,
	log *logger.Logger,
) {
	// Root endpoint - redirect to repository
	rootHandler := func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "https://github.com/voenmeh-bot/timetable-go")
	}
	router.GET("/", rootHandler)
	router.HEAD("/", rootHandler)

	// Health check endpoints
	// Liveness Probe - checks if the application is alive (minimal check)
	// This should NEVER check dependencies - only that the process is running
	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/healthz", healthHandler)
	router.HEAD("/healthz", healthHandler)

	// Readiness Probe - ready means a snapshot is published. Redis state is
	// reported but does not gate readiness: queries are served from memory.
	router.GET("/readyz", func(c *gin.Context) {
		snapshot := holder.Current()
		if snapshot == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"reason": "no timetable snapshot",
			})
			return
		}

		pingCtx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		redisUp := redisClient.Ping(pingCtx).Err() == nil

		c.JSON(http.StatusOK, gin.H{
			"status": "ready",
			"build":  buildinfo.Short(),
			"redis":  redisUp,
			"snapshot": gin.H{
				"hash":       snapshot.Hash,
				"fetched_at": snapshot.FetchedAt,
				"groups":     snapshot.GroupCount(),
			},
		})
	})

	// Prometheus metrics endpoint, Basic Auth protected when configured
	metricsHandler := gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	if cfg.MetricsPassword != "" {
		authorized := router.Group("/", gin.BasicAuth(gin.Accounts{
			cfg.MetricsUsername: cfg.MetricsPassword,
		}))
		authorized.GET("/metrics", metricsHandler)
	} else {
		router.GET("/metrics", metricsHandler)
	}

	api := router.Group("/api/v0")
	api.Use(rateLimitMiddleware(limiter))

	api.GET("/groups/:group/schedule", func(c *gin.Context) {
		date, ok := parseDate(c)
		if !ok {
			return
		}
		schedule, err := eng.ScheduleForDay(c.Param("group"), date)
		if err != nil {
			respondQueryError(c, err)
			return
		}
		c.JSON(http.StatusOK, schedule)
	})

	api.GET("/teachers", func(c *gin.Context) {
		query := c.Query("q")
		if query == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter q is required"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"teachers": eng.FindTeachers(query)})
	})

	api.GET("/teachers/schedule", func(c *gin.Context) {
		name := c.Query("name")
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter name is required"})
			return
		}
		date, ok := parseDate(c)
		if !ok {
			return
		}
		schedule, err := eng.TeacherSchedule(name, date)
		if err != nil {
			respondQueryError(c, err)
			return
		}
		c.JSON(http.StatusOK, schedule)
	})

	api.GET("/classrooms", func(c *gin.Context) {
		query := c.Query("q")
		if query == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter q is required"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"classrooms": eng.FindClassrooms(query)})
	})

	api.GET("/classrooms/:room/schedule", func(c *gin.Context) {
		date, ok := parseDate(c)
		if !ok {
			return
		}
		schedule, err := eng.ClassroomSchedule(c.Param("room"), date)
		if err != nil {
			respondQueryError(c, err)
			return
		}
		c.JSON(http.StatusOK, schedule)
	})

	api.GET("/week", func(c *gin.Context) {
		date, ok := parseDate(c)
		if !ok {
			return
		}
		info, err := eng.WeekType(date)
		if err != nil {
			respondQueryError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"date":         date.Format(dateLayout),
			"number":       info.Number,
			"parity":       info.Parity,
			"label":        info.Label,
			"extrapolated": info.Extrapolated,
		})
	})

	api.GET("/settings/semesters", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"fall":   semesterState(c.Request.Context(), store, settings.SemesterFall),
			"spring": semesterState(c.Request.Context(), store, settings.SemesterSpring),
		})
	})

	api.PUT("/settings/semesters/:semester", func(c *gin.Context) {
		semester := settings.Semester(c.Param("semester"))

		var body struct {
			Month int `json:"month"`
			Day   int `json:"day"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
			return
		}

		if err := store.SetStart(c.Request.Context(), semester, time.Month(body.Month), body.Day); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		// Rebuild the parity calculator so the change takes effect now
		if err := weeks.reload(c.Request.Context(), store, cfg.OutOfSemester); err != nil {
			log.WithError(err).Error("Failed to reload semester calendar")
			sentry.CaptureExceptionWithContext(c.Request.Context(), err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to apply semester dates"})
			return
		}

		log.WithField("semester", string(semester)).
			WithField("month", body.Month).
			WithField("day", body.Day).
			Info("Semester start updated")
		c.JSON(http.StatusOK, semesterState(c.Request.Context(), store, semester))
	})
}

// parseDate reads the optional date query parameter (YYYY-MM-DD), defaulting
// to today. On a malformed value it writes a 400 response and returns false.
func parseDate(c *gin.Context) (time.Time, bool) {
	raw := c.Query("date")
	if raw == "" {
		return time.Now(), true
	}
	date, err := time.Parse(dateLayout, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be formatted as YYYY-MM-DD"})
		return time.Time{}, false
	}
	return date, true
}

// respondQueryError maps engine errors to HTTP responses.
func respondQueryError(c *gin.Context, err error) {
	var ambiguous *domerrors.AmbiguousNameError
	switch {
	case errors.As(err, &ambiguous):
		c.JSON(http.StatusNotFound, gin.H{
			"error":       "teacher not found",
			"query":       ambiguous.Query,
			"suggestions": ambiguous.Suggestions,
		})
	case errors.Is(err, domerrors.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domerrors.ErrGroupNotFound),
		errors.Is(err, domerrors.ErrTeacherNotFound),
		errors.Is(err, domerrors.ErrClassroomNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domerrors.ErrNoParity):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "date falls outside every configured semester"})
	case errors.Is(err, domerrors.ErrNoData):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no timetable data loaded"})
	default:
		sentry.CaptureExceptionWithContext(c.Request.Context(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// semesterState reports one semester's effective start date and whether it
// comes from a stored override or the built-in default.
func semesterState(ctx context.Context, store *settings.Store, semester settings.Semester) gin.H {
	defaults := parity.DefaultCalendar()
	template := defaults.FallStart
	if semester == settings.SemesterSpring {
		template = defaults.SpringStart
	}

	month, day, overridden, err := store.Start(ctx, semester)
	if err != nil || !overridden {
		month = template.Month()
		day = template.Day()
	}

	return gin.H{
		"month":      int(month),
		"day":        day,
		"overridden": overridden,
	}
}
