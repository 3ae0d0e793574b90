// Package timetable holds the lesson data model and the immutable schedule
// snapshot with its group, teacher and classroom indices.
package timetable

import (
	"fmt"
	"strings"
	"time"

	"github.com/voenmeh-bot/timetable-go/internal/sliceutil"
)

// Parity tags a lesson with the academic week it belongs to.
type Parity string

const (
	// ParityEvery marks lessons held on both odd and even weeks.
	ParityEvery Parity = "every"
	// ParityOdd marks lessons held on odd weeks only.
	ParityOdd Parity = "odd"
	// ParityEven marks lessons held on even weeks only.
	ParityEven Parity = "even"
)

// Matches reports whether a lesson with this parity is held on a week of
// the given parity. ParityEvery matches both.
func (p Parity) Matches(week Parity) bool {
	return p == ParityEvery || p == week
}

// Day is a teaching weekday. The timetable has no Sunday lessons, so the
// enum covers Monday through Saturday only.
type Day int

const (
	Monday Day = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

// dayTitles are the canonical day names used by the upstream XML feed.
var dayTitles = [...]string{
	"Понедельник",
	"Вторник",
	"Среда",
	"Четверг",
	"Пятница",
	"Суббота",
}

// Title returns the canonical Russian day name.
func (d Day) Title() string {
	if d < Monday || d > Saturday {
		return ""
	}
	return dayTitles[d]
}

// DayFromTitle maps an upstream day name to a Day.
func DayFromTitle(title string) (Day, error) {
	for i, t := range dayTitles {
		if strings.EqualFold(strings.TrimSpace(title), t) {
			return Day(i), nil
		}
	}
	return 0, fmt.Errorf("unknown day title %q", title)
}

// DayFromDate maps a calendar date to a teaching Day.
// Returns ok=false for Sundays, which have no weekday mapping.
func DayFromDate(date time.Time) (Day, bool) {
	wd := date.Weekday()
	if wd == time.Sunday {
		return 0, false
	}
	return Day(int(wd) - 1), true
}

// Lesson is the atomic timetable record. It is immutable once built: the
// indices share lesson values freely and never mutate them after
// construction. Groups is populated on teacher/classroom index entries
// only, listing every group attending the same physical slot.
type Lesson struct {
	Group        string   `json:"group"`
	Day          Day      `json:"day"`
	Parity       Parity   `json:"parity"`
	Time         string   `json:"time"`           // "18:30-20:00" display form
	StartRaw     string   `json:"start_time_raw"` // "18:30"
	EndRaw       string   `json:"end_time_raw"`   // "20:00"
	StartMinutes int      `json:"start_minutes"`  // minutes since midnight, sort key
	Subject      string   `json:"subject"`
	Kind         string   `json:"kind"` // лекция / практика / лабораторная / free text
	Room         string   `json:"room,omitempty"`
	Teachers     []string `json:"teachers,omitempty"`
	Groups       []string `json:"groups,omitempty"`
}

// NormalizeGroup canonicalizes a group id for index keys and lookups.
func NormalizeGroup(group string) string {
	return strings.ToUpper(strings.TrimSpace(group))
}

// ParseClock parses a wall-clock "HH:MM" string into minutes since midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Validate checks that a parsed record is complete enough to index.
// Malformed records are rejected at build time rather than surfacing as
// missing-key lookups during queries.
func (l *Lesson) Validate() error {
	if NormalizeGroup(l.Group) == "" {
		return fmt.Errorf("lesson %q: empty group", l.Subject)
	}
	if l.Day < Monday || l.Day > Saturday {
		return fmt.Errorf("lesson %q: invalid day %d", l.Subject, l.Day)
	}
	switch l.Parity {
	case ParityEvery, ParityOdd, ParityEven:
	default:
		return fmt.Errorf("lesson %q: invalid parity %q", l.Subject, l.Parity)
	}
	if _, err := ParseClock(l.StartRaw); err != nil {
		return fmt.Errorf("lesson %q: %w", l.Subject, err)
	}
	return nil
}

// dedupeTeachers trims names, drops empties, and removes duplicates
// preserving first-seen order.
func dedupeTeachers(names []string) []string {
	trimmed := names[:0]
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			trimmed = append(trimmed, n)
		}
	}
	return sliceutil.Deduplicate(trimmed, func(n string) string { return n })
}
