package timetable

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// GroupSchedule is one group's full two-week cycle:
// parity → day → lessons ordered by start time.
// Only ParityOdd and ParityEven appear as keys; ParityEvery lessons are
// materialized into both at build time so a single lookup answers any week.
type GroupSchedule map[Parity]map[Day][]Lesson

// Period carries the semester metadata published with the upstream feed.
type Period struct {
	StartYear  int `json:"start_year,omitempty"`
	StartMonth int `json:"start_month,omitempty"`
	StartDay   int `json:"start_day,omitempty"`
}

// StartDate returns the feed-declared semester start, if present.
func (p *Period) StartDate() (time.Time, bool) {
	if p == nil || p.StartYear == 0 || p.StartMonth == 0 || p.StartDay == 0 {
		return time.Time{}, false
	}
	return time.Date(p.StartYear, time.Month(p.StartMonth), p.StartDay, 0, 0, 0, 0, time.UTC), true
}

// Snapshot is one complete, immutable generation of timetable data: the
// group schedules, the teacher and classroom occurrence indices, and the
// freshness token of the raw source they were built from. A refresh builds
// a brand-new Snapshot; nothing mutates an existing one, so concurrent
// readers never observe partial state.
type Snapshot struct {
	Hash       string                   `json:"hash"`
	FetchedAt  time.Time                `json:"fetched_at"`
	Period     *Period                  `json:"period,omitempty"`
	Groups     map[string]GroupSchedule `json:"groups"`
	Teachers   map[string][]Lesson      `json:"teachers"`
	Classrooms map[string][]Lesson      `json:"classrooms"`
}

// slotKey identifies one physical lesson slot so that a lesson shared by
// several groups appears once per teacher/classroom, with all attending
// groups denormalized onto it.
func slotKey(l *Lesson) string {
	return strings.Join([]string{
		l.Day.Title(),
		string(l.Parity),
		l.Time,
		l.Subject,
		l.Kind,
		l.Room,
		strings.Join(l.Teachers, "|"),
	}, "-")
}

// Build constructs a Snapshot from a flat collection of validated lesson
// records. All three indices come out of this single pass, so they can
// never disagree with each other. Day lists are sorted here, once; queries
// never re-sort.
func Build(records []Lesson, hash string, fetchedAt time.Time, period *Period) (*Snapshot, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("build snapshot: no lesson records")
	}

	s := &Snapshot{
		Hash:       hash,
		FetchedAt:  fetchedAt,
		Period:     period,
		Groups:     make(map[string]GroupSchedule),
		Teachers:   make(map[string][]Lesson),
		Classrooms: make(map[string][]Lesson),
	}

	teacherSlots := make(map[string]map[string]*Lesson)
	classroomSlots := make(map[string]map[string]*Lesson)

	for i := range records {
		rec := records[i]
		rec.Group = NormalizeGroup(rec.Group)
		rec.Teachers = dedupeTeachers(rec.Teachers)
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("build snapshot: record %d: %w", i, err)
		}
		rec.StartMinutes, _ = ParseClock(rec.StartRaw)

		group := s.Groups[rec.Group]
		if group == nil {
			group = GroupSchedule{
				ParityOdd:  make(map[Day][]Lesson),
				ParityEven: make(map[Day][]Lesson),
			}
			s.Groups[rec.Group] = group
		}

		// Group view: "every" lessons land in both week variants.
		groupLesson := rec
		groupLesson.Groups = nil
		switch rec.Parity {
		case ParityOdd:
			group[ParityOdd][rec.Day] = append(group[ParityOdd][rec.Day], groupLesson)
		case ParityEven:
			group[ParityEven][rec.Day] = append(group[ParityEven][rec.Day], groupLesson)
		default:
			group[ParityOdd][rec.Day] = append(group[ParityOdd][rec.Day], groupLesson)
			group[ParityEven][rec.Day] = append(group[ParityEven][rec.Day], groupLesson)
		}

		// Teacher/classroom view: one entry per physical slot, with its own
		// parity tag kept so week filtering happens at query time.
		key := slotKey(&rec)
		for _, teacher := range rec.Teachers {
			mergeSlot(teacherSlots, teacher, key, &rec)
		}
		if rec.Room != "" {
			mergeSlot(classroomSlots, rec.Room, key, &rec)
		}
	}

	for teacher, slots := range teacherSlots {
		s.Teachers[teacher] = collectSlots(slots)
	}
	for room, slots := range classroomSlots {
		s.Classrooms[room] = collectSlots(slots)
	}

	for _, group := range s.Groups {
		for _, days := range group {
			for day := range days {
				sortLessons(days[day])
			}
		}
	}

	return s, nil
}

// mergeSlot appends the record's group to an existing slot entry or
// creates the entry on first sight.
func mergeSlot(index map[string]map[string]*Lesson, key, slot string, rec *Lesson) {
	slots := index[key]
	if slots == nil {
		slots = make(map[string]*Lesson)
		index[key] = slots
	}
	if existing, ok := slots[slot]; ok {
		for _, g := range existing.Groups {
			if g == rec.Group {
				return
			}
		}
		existing.Groups = append(existing.Groups, rec.Group)
		sort.Strings(existing.Groups)
		return
	}
	entry := *rec
	entry.Groups = []string{rec.Group}
	slots[slot] = &entry
}

// collectSlots flattens a slot map into a day/time ordered occurrence list.
func collectSlots(slots map[string]*Lesson) []Lesson {
	out := make([]Lesson, 0, len(slots))
	for _, l := range slots {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Day != out[j].Day {
			return out[i].Day < out[j].Day
		}
		if out[i].StartMinutes != out[j].StartMinutes {
			return out[i].StartMinutes < out[j].StartMinutes
		}
		return out[i].Subject < out[j].Subject
	})
	return out
}

func sortLessons(lessons []Lesson) {
	sort.Slice(lessons, func(i, j int) bool {
		if lessons[i].StartMinutes != lessons[j].StartMinutes {
			return lessons[i].StartMinutes < lessons[j].StartMinutes
		}
		return lessons[i].Subject < lessons[j].Subject
	})
}

// Lessons returns the ordered lesson list for a group on the given week
// parity and day. The second return reports whether the group exists at
// all; a known group with a free day yields an empty list and true.
func (s *Snapshot) Lessons(group string, week Parity, day Day) ([]Lesson, bool) {
	schedule, ok := s.Groups[NormalizeGroup(group)]
	if !ok {
		return nil, false
	}
	return schedule[week][day], true
}

// HasGroup reports whether the group exists in this snapshot.
func (s *Snapshot) HasGroup(group string) bool {
	_, ok := s.Groups[NormalizeGroup(group)]
	return ok
}

// TeacherNames returns all canonical teacher keys, sorted.
func (s *Snapshot) TeacherNames() []string {
	names := make([]string, 0, len(s.Teachers))
	for name := range s.Teachers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TeacherOccurrences returns the full occurrence list for a canonical
// teacher key, across all days and parities.
func (s *Snapshot) TeacherOccurrences(name string) ([]Lesson, bool) {
	lessons, ok := s.Teachers[name]
	return lessons, ok
}

// ClassroomNames returns all classroom keys, sorted.
func (s *Snapshot) ClassroomNames() []string {
	rooms := make([]string, 0, len(s.Classrooms))
	for room := range s.Classrooms {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

// ClassroomOccurrences returns the full occurrence list for a classroom.
func (s *Snapshot) ClassroomOccurrences(room string) ([]Lesson, bool) {
	lessons, ok := s.Classrooms[strings.TrimSpace(room)]
	return lessons, ok
}

// GroupCount returns the number of indexed groups.
func (s *Snapshot) GroupCount() int {
	return len(s.Groups)
}
