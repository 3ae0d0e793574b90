// Package engine is the query facade over the published snapshot: group,
// teacher and classroom day schedules, week parity, and index search.
// It owns no data; it reads whatever snapshot the holder currently serves
// and never blocks a refresh.
package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	domerrors "github.com/voenmeh-bot/timetable-go/internal/errors"
	"github.com/voenmeh-bot/timetable-go/internal/logger"
	"github.com/voenmeh-bot/timetable-go/internal/metrics"
	"github.com/voenmeh-bot/timetable-go/internal/parity"
	"github.com/voenmeh-bot/timetable-go/internal/resolver"
	"github.com/voenmeh-bot/timetable-go/internal/timetable"
)

// sundayTitle is what day queries report for Sundays, which have no
// timetable day of their own.
const sundayTitle = "Воскресенье"

// minTeacherQueryLen keeps one- and two-letter substring searches from
// returning half the index.
const minTeacherQueryLen = 3

// WeekCalculator resolves a date to its academic week.
type WeekCalculator interface {
	WeekType(date time.Time) (parity.WeekInfo, error)
}

// DaySchedule is one group's lessons for one calendar date.
type DaySchedule struct {
	Group    string             `json:"group"`
	Date     time.Time          `json:"date"`
	DayTitle string             `json:"day_name"`
	Week     parity.WeekInfo    `json:"week"`
	Lessons  []timetable.Lesson `json:"lessons"`
}

// TeacherDay is one teacher's lessons for one calendar date, keyed by the
// canonical teacher name the query resolved to.
type TeacherDay struct {
	Teacher  string             `json:"teacher"`
	Date     time.Time          `json:"date"`
	DayTitle string             `json:"day_name"`
	Week     parity.WeekInfo    `json:"week"`
	Lessons  []timetable.Lesson `json:"lessons"`
}

// ClassroomDay is one classroom's occupancy for one calendar date.
type ClassroomDay struct {
	Classroom string             `json:"classroom"`
	Date      time.Time          `json:"date"`
	DayTitle  string             `json:"day_name"`
	Week      parity.WeekInfo    `json:"week"`
	Lessons   []timetable.Lesson `json:"lessons"`
}

// Engine answers schedule queries against the current snapshot.
type Engine struct {
	holder   *timetable.Holder
	weeks    WeekCalculator
	resolver *resolver.Resolver
	log      *logger.Logger
	metrics  *metrics.Metrics
}

// New creates the query engine.
func New(holder *timetable.Holder, weeks WeekCalculator, res *resolver.Resolver, log *logger.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		holder:   holder,
		weeks:    weeks,
		resolver: res,
		log:      log.WithModule("engine"),
		metrics:  m,
	}
}

// Snapshot exposes the currently served snapshot for health endpoints.
// May be nil before the first publish.
func (e *Engine) Snapshot() *timetable.Snapshot {
	return e.holder.Current()
}

// WeekType reports the academic week for a date.
func (e *Engine) WeekType(date time.Time) (parity.WeekInfo, error) {
	info, err := e.weeks.WeekType(date)
	if err != nil {
		e.metrics.RecordQuery("week_type", "error")
		return parity.WeekInfo{}, err
	}
	e.metrics.RecordQuery("week_type", "success")
	return info, nil
}

// ScheduleForDay returns a group's lessons for one date.
//
// Sundays yield an empty lesson list, not an error: "no lessons today" is
// a normal answer. An unknown group is ErrGroupNotFound.
func (e *Engine) ScheduleForDay(group string, date time.Time) (*DaySchedule, error) {
	snapshot, err := e.snapshot()
	if err != nil {
		e.metrics.RecordQuery("group_day", "error")
		return nil, err
	}

	normalized := timetable.NormalizeGroup(group)
	if !snapshot.HasGroup(normalized) {
		e.metrics.RecordQuery("group_day", "not_found")
		return nil, fmt.Errorf("group %q: %w", normalized, domerrors.ErrGroupNotFound)
	}

	week, err := e.weeks.WeekType(date)
	if err != nil {
		e.metrics.RecordQuery("group_day", "error")
		return nil, err
	}

	result := &DaySchedule{
		Group:    normalized,
		Date:     date,
		DayTitle: sundayTitle,
		Week:     week,
		Lessons:  []timetable.Lesson{},
	}

	if day, ok := timetable.DayFromDate(date); ok {
		result.DayTitle = day.Title()
		if lessons, ok := snapshot.Lessons(normalized, week.Parity, day); ok {
			result.Lessons = lessons
		}
	}

	e.metrics.RecordQuery("group_day", "success")
	return result, nil
}

// TeacherSchedule resolves a free-text teacher query and returns that
// teacher's lessons for one date. Resolution failures pass through from
// the resolver: ErrTeacherNotFound, or an AmbiguousNameError carrying
// suggestions.
func (e *Engine) TeacherSchedule(query string, date time.Time) (*TeacherDay, error) {
	snapshot, err := e.snapshot()
	if err != nil {
		e.metrics.RecordQuery("teacher", "error")
		return nil, err
	}

	name, err := e.resolver.Resolve(query, snapshot.TeacherNames())
	if err != nil {
		e.recordResolveOutcome(err)
		e.metrics.RecordQuery("teacher", "not_found")
		return nil, err
	}
	e.metrics.RecordResolverOutcome("success")

	week, err := e.weeks.WeekType(date)
	if err != nil {
		e.metrics.RecordQuery("teacher", "error")
		return nil, err
	}

	result := &TeacherDay{
		Teacher:  name,
		Date:     date,
		DayTitle: sundayTitle,
		Week:     week,
		Lessons:  []timetable.Lesson{},
	}

	if day, ok := timetable.DayFromDate(date); ok {
		result.DayTitle = day.Title()
		if occurrences, ok := snapshot.TeacherOccurrences(name); ok {
			result.Lessons = filterDay(occurrences, day, week.Parity)
		}
	}

	e.metrics.RecordQuery("teacher", "success")
	return result, nil
}

// ClassroomSchedule returns a classroom's occupancy for one date. The
// room name must match an index key exactly; use FindClassrooms first for
// prefix discovery.
func (e *Engine) ClassroomSchedule(room string, date time.Time) (*ClassroomDay, error) {
	snapshot, err := e.snapshot()
	if err != nil {
		e.metrics.RecordQuery("classroom", "error")
		return nil, err
	}

	room = strings.TrimSpace(room)
	occurrences, found := snapshot.ClassroomOccurrences(room)
	if !found {
		e.metrics.RecordQuery("classroom", "not_found")
		return nil, fmt.Errorf("classroom %q: %w", room, domerrors.ErrClassroomNotFound)
	}

	week, err := e.weeks.WeekType(date)
	if err != nil {
		e.metrics.RecordQuery("classroom", "error")
		return nil, err
	}

	result := &ClassroomDay{
		Classroom: room,
		Date:      date,
		DayTitle:  sundayTitle,
		Week:      week,
		Lessons:   []timetable.Lesson{},
	}

	if day, ok := timetable.DayFromDate(date); ok {
		result.DayTitle = day.Title()
		result.Lessons = filterDay(occurrences, day, week.Parity)
	}

	e.metrics.RecordQuery("classroom", "success")
	return result, nil
}

// FindTeachers returns teacher names containing the query, case
// insensitively, sorted. Queries shorter than three characters return
// nothing.
func (e *Engine) FindTeachers(query string) []string {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < minTeacherQueryLen {
		return nil
	}
	snapshot := e.holder.Current()
	if snapshot == nil {
		return nil
	}

	lowered := strings.ToLower(query)
	var matches []string
	for _, name := range snapshot.TeacherNames() {
		if strings.Contains(strings.ToLower(name), lowered) {
			matches = append(matches, name)
		}
	}
	sort.Strings(matches)
	e.metrics.RecordQuery("search", "success")
	return matches
}

// FindClassrooms returns classroom names starting with the query, sorted.
func (e *Engine) FindClassrooms(query string) []string {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	snapshot := e.holder.Current()
	if snapshot == nil {
		return nil
	}

	var matches []string
	for _, room := range snapshot.ClassroomNames() {
		if strings.HasPrefix(room, query) {
			matches = append(matches, room)
		}
	}
	sort.Strings(matches)
	e.metrics.RecordQuery("search", "success")
	return matches
}

func (e *Engine) snapshot() (*timetable.Snapshot, error) {
	snapshot := e.holder.Current()
	if snapshot == nil {
		return nil, domerrors.ErrNoData
	}
	return snapshot, nil
}

func (e *Engine) recordResolveOutcome(err error) {
	var ambiguous *domerrors.AmbiguousNameError
	switch {
	case errors.As(err, &ambiguous):
		e.metrics.RecordResolverOutcome("ambiguous")
	case errors.Is(err, domerrors.ErrInvalidInput):
		e.metrics.RecordResolverOutcome("invalid")
	default:
		e.metrics.RecordResolverOutcome("not_found")
	}
}

// filterDay keeps the occurrences on one day whose parity matches the
// week, preserving the index's day/time ordering.
func filterDay(occurrences []timetable.Lesson, day timetable.Day, week timetable.Parity) []timetable.Lesson {
	out := []timetable.Lesson{}
	for _, l := range occurrences {
		if l.Day == day && l.Parity.Matches(week) {
			out = append(out, l)
		}
	}
	return out
}
