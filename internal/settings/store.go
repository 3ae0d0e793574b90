// Package settings persists operator-tunable semester start dates in a
// local SQLite database. The dates survive restarts without depending on
// Redis availability, which matters because the parity calculator must
// work even while the cache tier is down.
package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver for database/sql

	"github.com/voenmeh-bot/timetable-go/internal/parity"
)

// Semester identifies one of the two configurable semesters.
type Semester string

const (
	SemesterFall   Semester = "fall"
	SemesterSpring Semester = "spring"
)

const schema = `
CREATE TABLE IF NOT EXISTS semester_starts (
	semester    TEXT PRIMARY KEY CHECK (semester IN ('fall', 'spring')),
	start_month INTEGER NOT NULL CHECK (start_month BETWEEN 1 AND 12),
	start_day   INTEGER NOT NULL CHECK (start_day BETWEEN 1 AND 31),
	updated_at  INTEGER NOT NULL
)`

// Store is a SQLite-backed settings store. Safe for concurrent use; the
// underlying pool serializes writes.
type Store struct {
	conn *sql.DB
	path string
}

// Open opens (creating if needed) the settings database at dbPath and
// initializes the schema. Pass ":memory:" for an ephemeral store.
func Open(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create settings directory: %w", err)
			}
		}
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open settings database: %w", err)
	}

	// Single-writer workload, no reason for a large pool.
	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping settings database: %w", err)
	}

	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("initialize settings schema: %w", err)
	}

	return &Store{conn: conn, path: dbPath}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// SetStart records the start date (month and day, year-independent) for
// one semester, replacing any previous value.
func (s *Store) SetStart(ctx context.Context, semester Semester, month time.Month, day int) error {
	if semester != SemesterFall && semester != SemesterSpring {
		return fmt.Errorf("unknown semester %q", semester)
	}
	if err := validateMonthDay(month, day); err != nil {
		return err
	}

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO semester_starts (semester, start_month, start_day, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(semester) DO UPDATE SET
			start_month = excluded.start_month,
			start_day   = excluded.start_day,
			updated_at  = excluded.updated_at`,
		string(semester), int(month), day, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save %s semester start: %w", semester, err)
	}
	return nil
}

// Start returns the configured start for one semester, or ok=false when
// nothing has been configured yet.
func (s *Store) Start(ctx context.Context, semester Semester) (month time.Month, day int, ok bool, err error) {
	var m, d int
	row := s.conn.QueryRowContext(ctx,
		`SELECT start_month, start_day FROM semester_starts WHERE semester = ?`,
		string(semester))
	switch err := row.Scan(&m, &d); {
	case errors.Is(err, sql.ErrNoRows):
		return 0, 0, false, nil
	case err != nil:
		return 0, 0, false, fmt.Errorf("load %s semester start: %w", semester, err)
	}
	return time.Month(m), d, true, nil
}

// Calendar assembles a parity.Calendar from the stored settings, filling in
// the hardcoded defaults for any semester that has no record.
func (s *Store) Calendar(ctx context.Context) (parity.Calendar, error) {
	calendar := parity.DefaultCalendar()

	if month, day, ok, err := s.Start(ctx, SemesterFall); err != nil {
		return parity.Calendar{}, err
	} else if ok {
		calendar.FallStart = rebase(calendar.FallStart, month, day)
	}

	if month, day, ok, err := s.Start(ctx, SemesterSpring); err != nil {
		return parity.Calendar{}, err
	} else if ok {
		calendar.SpringStart = rebase(calendar.SpringStart, month, day)
	}

	return calendar, nil
}

// rebase keeps the template's year (the calculator re-derives years per
// query anyway) and swaps in the stored month and day.
func rebase(template time.Time, month time.Month, day int) time.Time {
	return time.Date(template.Year(), month, day, 0, 0, 0, 0, time.UTC)
}

func validateMonthDay(month time.Month, day int) error {
	if month < time.January || month > time.December {
		return fmt.Errorf("month %d out of range", month)
	}
	// Reject dates like Feb 30 that SQLite's CHECK would let through.
	probe := time.Date(2024, month, day, 0, 0, 0, 0, time.UTC)
	if probe.Month() != month || probe.Day() != day {
		return fmt.Errorf("day %d invalid for %s", day, month)
	}
	return nil
}
