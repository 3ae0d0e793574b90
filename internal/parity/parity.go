// Package parity implements the academic week-parity algorithm: given a
// calendar date it reports whether the odd or the even timetable week is
// active, which of the two configured semesters the date falls in, and the
// 1-based week number inside that semester.
package parity

import (
	"fmt"
	"time"

	domerrors "github.com/voenmeh-bot/timetable-go/internal/errors"
	"github.com/voenmeh-bot/timetable-go/internal/timetable"
)

// SemesterWeeks is the assumed length of every semester. The university
// does not publish end dates, so the window is fixed: start + 17 weeks.
const SemesterWeeks = 17

// Default semester starts used when the settings store has no record.
var (
	DefaultFallStart   = time.Date(2024, time.September, 1, 0, 0, 0, 0, time.UTC)
	DefaultSpringStart = time.Date(2025, time.February, 9, 0, 0, 0, 0, time.UTC)
)

// Display labels shown to users, kept verbatim from the bot's message set.
const (
	labelOdd            = "Нечетная"
	labelEven           = "Четная"
	labelBeforeSemester = "Нечетная (до начала семестра)"
)

// OutOfSemesterPolicy names the behavior for dates that fall in no
// configured semester window (summer break, winter break). The legacy bot
// extrapolated a parity from the nearest semester; some call sites want a
// neutral "no parity" answer instead. The choice is configuration, not a
// guess.
type OutOfSemesterPolicy string

const (
	// PolicyExtrapolate counts weeks from the nearest semester start even
	// outside the semester window (legacy behavior).
	PolicyExtrapolate OutOfSemesterPolicy = "extrapolate"
	// PolicyNone reports ErrNoParity for out-of-semester dates.
	PolicyNone OutOfSemesterPolicy = "none"
)

// ParsePolicy validates a policy string from configuration.
func ParsePolicy(s string) (OutOfSemesterPolicy, error) {
	switch OutOfSemesterPolicy(s) {
	case PolicyExtrapolate, PolicyNone:
		return OutOfSemesterPolicy(s), nil
	case "":
		return PolicyExtrapolate, nil
	default:
		return "", fmt.Errorf("unknown out-of-semester policy %q", s)
	}
}

// Calendar holds the two semester start dates. Only month and day matter
// for queries: the year is re-derived relative to the query date, so a
// calendar configured in 2024 keeps working in 2026 (an August date
// belongs to that year's upcoming fall semester, a January date to the
// previous year's fall semester, and so on).
type Calendar struct {
	FallStart   time.Time
	SpringStart time.Time
}

// DefaultCalendar returns the hardcoded semester dates used when the
// settings collaborator has nothing configured.
func DefaultCalendar() Calendar {
	return Calendar{FallStart: DefaultFallStart, SpringStart: DefaultSpringStart}
}

// WeekInfo is the computed parity for one date.
type WeekInfo struct {
	Number       int              // 1-based week number within the semester
	Parity       timetable.Parity // ParityOdd or ParityEven
	Label        string           // display label, e.g. "Нечетная"
	Extrapolated bool             // true when the date is outside every semester window
}

// Calculator computes week parity against one calendar and policy. It is
// stateless beyond its configuration and safe for concurrent use.
type Calculator struct {
	calendar Calendar
	policy   OutOfSemesterPolicy
}

// NewCalculator creates a calculator for the given calendar and policy.
func NewCalculator(calendar Calendar, policy OutOfSemesterPolicy) *Calculator {
	return &Calculator{calendar: calendar, policy: policy}
}

// anchorMonday maps a date to the Monday that anchors its teaching week.
//
// Weeks are calendar weeks, not 7-day offsets from an arbitrary date: every
// day of one teaching week must report the same parity, because the
// timetable's parity concept is defined per week. One wrinkle: the
// timetable has no Sunday lessons, so a Sunday is grouped with the week
// that begins the next morning. That is also the only grouping consistent
// with how the university numbers weeks when a semester starts on a
// Sunday (Sep 1 2024 is week 1, Sep 8 2024 already week 2).
func anchorMonday(date time.Time) time.Time {
	d := dateOnly(date)
	if d.Weekday() == time.Sunday {
		return d.AddDate(0, 0, 1)
	}
	return d.AddDate(0, 0, -(int(d.Weekday()) - 1))
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// semesterWindow is one candidate semester: its configured start and the
// anchor Monday that week numbering counts from.
type semesterWindow struct {
	start  time.Time
	anchor time.Time
}

func (w semesterWindow) end() time.Time {
	return w.anchor.AddDate(0, 0, SemesterWeeks*7)
}

func (w semesterWindow) contains(anchor time.Time) bool {
	return !anchor.Before(w.anchor) && anchor.Before(w.end())
}

// candidates generates the semester windows a date could plausibly belong
// to: fall and spring of the query year and both neighboring years. Year
// correction falls out of this for free — a January date simply matches
// the previous year's fall window.
func (c *Calculator) candidates(date time.Time) []semesterWindow {
	out := make([]semesterWindow, 0, 6)
	for _, yearOffset := range []int{-1, 0, 1} {
		year := date.Year() + yearOffset
		for _, template := range []time.Time{c.calendar.FallStart, c.calendar.SpringStart} {
			start := time.Date(year, template.Month(), template.Day(), 0, 0, 0, 0, time.UTC)
			out = append(out, semesterWindow{start: start, anchor: anchorMonday(start)})
		}
	}
	return out
}

// WeekType returns the parity information for a date.
//
// Algorithm:
//  1. Find the semester window (17 weeks from a configured start,
//     year-corrected) containing the date's anchor Monday.
//  2. Week number = (anchor(date) - anchor(start)) / 7 + 1.
//  3. Parity = odd/even of that number.
//
// Dates in no window follow the configured OutOfSemesterPolicy:
// PolicyNone yields ErrNoParity, PolicyExtrapolate counts from the
// nearest semester and flags the result as extrapolated.
func (c *Calculator) WeekType(date time.Time) (WeekInfo, error) {
	anchor := anchorMonday(date)
	windows := c.candidates(date)

	for _, w := range windows {
		if w.contains(anchor) {
			return weekInfoFor(anchor, w, false), nil
		}
	}

	if c.policy == PolicyNone {
		return WeekInfo{}, fmt.Errorf("date %s: %w", dateOnly(date).Format("2006-01-02"), domerrors.ErrNoParity)
	}

	nearest := nearestWindow(anchor, windows)
	info := weekInfoFor(anchor, nearest, true)
	if anchor.Before(nearest.anchor) {
		// Legacy wording for "semester has not started yet".
		info.Number = 1
		info.Parity = timetable.ParityOdd
		info.Label = labelBeforeSemester
	}
	return info, nil
}

// weekInfoFor computes the week number and parity of anchor relative to a
// semester window.
func weekInfoFor(anchor time.Time, w semesterWindow, extrapolated bool) WeekInfo {
	days := int(anchor.Sub(w.anchor).Hours() / 24)
	number := days/7 + 1

	info := WeekInfo{Number: number, Extrapolated: extrapolated}
	if number%2 == 1 {
		info.Parity = timetable.ParityOdd
		info.Label = labelOdd
	} else {
		info.Parity = timetable.ParityEven
		info.Label = labelEven
	}
	return info
}

// nearestWindow picks the semester window closest to the anchor date,
// measured to the window edge.
func nearestWindow(anchor time.Time, windows []semesterWindow) semesterWindow {
	best := windows[0]
	bestDist := windowDistance(anchor, best)
	for _, w := range windows[1:] {
		if d := windowDistance(anchor, w); d < bestDist {
			best = w
			bestDist = d
		}
	}
	return best
}

func windowDistance(anchor time.Time, w semesterWindow) time.Duration {
	if anchor.Before(w.anchor) {
		return w.anchor.Sub(anchor)
	}
	if !anchor.Before(w.end()) {
		return anchor.Sub(w.end())
	}
	return 0
}
