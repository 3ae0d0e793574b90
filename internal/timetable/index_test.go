package timetable

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(group string, day Day, parity Parity, start, subject string, teachers []string, room string) Lesson {
	return Lesson{
		Group:    group,
		Day:      day,
		Parity:   parity,
		Time:     start + "-" + start,
		StartRaw: start,
		EndRaw:   start,
		Subject:  subject,
		Kind:     "лекция",
		Room:     room,
		Teachers: teachers,
	}
}

func TestBuildSortsLessonsByStartTime(t *testing.T) {
	t.Parallel()

	records := []Lesson{
		record("о742б", Monday, ParityOdd, "12:40", "Физика", []string{"Петров А.А."}, "218"),
		record("о742б", Monday, ParityOdd, "09:00", "Математика", []string{"Иванов И.И."}, "100"),
		record("о742б", Monday, ParityOdd, "10:50", "Информатика", []string{"Иванов И.И."}, "100"),
	}

	snap, err := Build(records, "hash-1", time.Now(), nil)
	require.NoError(t, err)

	lessons, ok := snap.Lessons("О742Б", ParityOdd, Monday)
	require.True(t, ok)
	require.Len(t, lessons, 3)
	assert.Equal(t, "Математика", lessons[0].Subject)
	assert.Equal(t, "Информатика", lessons[1].Subject)
	assert.Equal(t, "Физика", lessons[2].Subject)
}

func TestBuildEveryParityLandsInBothWeeks(t *testing.T) {
	t.Parallel()

	records := []Lesson{
		record("Е321С", Thursday, ParityEvery, "10:50", "Конструкции", []string{"Ялыч Е.С."}, "СК-14"),
	}

	snap, err := Build(records, "hash-2", time.Now(), nil)
	require.NoError(t, err)

	odd, ok := snap.Lessons("Е321С", ParityOdd, Thursday)
	require.True(t, ok)
	even, ok := snap.Lessons("Е321С", ParityEven, Thursday)
	require.True(t, ok)
	assert.Len(t, odd, 1)
	assert.Len(t, even, 1)
}

func TestBuildGroupKeysAreNormalized(t *testing.T) {
	t.Parallel()

	records := []Lesson{
		record(" о742б ", Monday, ParityOdd, "09:00", "Математика", nil, ""),
	}

	snap, err := Build(records, "hash-3", time.Now(), nil)
	require.NoError(t, err)

	assert.True(t, snap.HasGroup("О742Б"))
	assert.True(t, snap.HasGroup("о742б"), "lookup must normalize too")
	assert.False(t, snap.HasGroup("А123Х"))
}

func TestBuildSharedSlotDeduplicatedInTeacherIndex(t *testing.T) {
	t.Parallel()

	// Same physical lesson taught to two groups at once.
	a := record("О742Б", Thursday, ParityEvery, "18:30", "ИНФ.ТЕХН. И ПРОГР.", []string{"Землянская Е.Р."}, "218*")
	b := record("О743Б", Thursday, ParityEvery, "18:30", "ИНФ.ТЕХН. И ПРОГР.", []string{"Землянская Е.Р."}, "218*")

	snap, err := Build([]Lesson{a, b}, "hash-4", time.Now(), nil)
	require.NoError(t, err)

	occurrences, ok := snap.TeacherOccurrences("Землянская Е.Р.")
	require.True(t, ok)
	require.Len(t, occurrences, 1, "shared slot must appear once")
	assert.ElementsMatch(t, []string{"О742Б", "О743Б"}, occurrences[0].Groups)

	roomOcc, ok := snap.ClassroomOccurrences("218*")
	require.True(t, ok)
	require.Len(t, roomOcc, 1)
	assert.ElementsMatch(t, []string{"О742Б", "О743Б"}, roomOcc[0].Groups)
}

func TestBuildOccurrenceKeepsOwnParity(t *testing.T) {
	t.Parallel()

	records := []Lesson{
		record("О742Б", Monday, ParityOdd, "09:00", "Математика", []string{"Иванов И.И."}, "100"),
		record("О742Б", Monday, ParityEven, "09:00", "Физика", []string{"Иванов И.И."}, "100"),
	}

	snap, err := Build(records, "hash-5", time.Now(), nil)
	require.NoError(t, err)

	occurrences, ok := snap.TeacherOccurrences("Иванов И.И.")
	require.True(t, ok)
	require.Len(t, occurrences, 2)

	parities := map[Parity]bool{}
	for _, occ := range occurrences {
		parities[occ.Parity] = true
	}
	assert.True(t, parities[ParityOdd])
	assert.True(t, parities[ParityEven])
}

func TestBuildRejectsMalformedRecords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Lesson)
	}{
		{"empty group", func(l *Lesson) { l.Group = "  " }},
		{"bad parity", func(l *Lesson) { l.Parity = "fortnightly" }},
		{"bad start time", func(l *Lesson) { l.StartRaw = "25:99" }},
		{"invalid day", func(l *Lesson) { l.Day = Day(9) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := record("О742Б", Monday, ParityOdd, "09:00", "Математика", nil, "")
			tt.mutate(&rec)
			_, err := Build([]Lesson{rec}, "hash", time.Now(), nil)
			assert.Error(t, err)
		})
	}
}

func TestBuildEmptyInputFails(t *testing.T) {
	t.Parallel()
	_, err := Build(nil, "hash", time.Now(), nil)
	assert.Error(t, err)
}

func TestParityMatches(t *testing.T) {
	t.Parallel()

	assert.True(t, ParityEvery.Matches(ParityOdd))
	assert.True(t, ParityEvery.Matches(ParityEven))
	assert.True(t, ParityOdd.Matches(ParityOdd))
	assert.False(t, ParityOdd.Matches(ParityEven))
	assert.False(t, ParityEven.Matches(ParityOdd))
}

func TestDayFromDate(t *testing.T) {
	t.Parallel()

	day, ok := DayFromDate(time.Date(2024, 9, 16, 0, 0, 0, 0, time.UTC)) // Monday
	require.True(t, ok)
	assert.Equal(t, Monday, day)

	day, ok = DayFromDate(time.Date(2024, 9, 21, 0, 0, 0, 0, time.UTC)) // Saturday
	require.True(t, ok)
	assert.Equal(t, Saturday, day)

	_, ok = DayFromDate(time.Date(2024, 9, 22, 0, 0, 0, 0, time.UTC)) // Sunday
	assert.False(t, ok)
}

func TestDayFromTitle(t *testing.T) {
	t.Parallel()

	day, err := DayFromTitle("Четверг")
	require.NoError(t, err)
	assert.Equal(t, Thursday, day)

	_, err = DayFromTitle("Каникулы")
	assert.Error(t, err)
}
