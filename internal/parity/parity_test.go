package parity

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domerrors "github.com/voenmeh-bot/timetable-go/internal/errors"
	"github.com/voenmeh-bot/timetable-go/internal/timetable"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Calendar used across the tests: fall semester 2024-09-01 (a Sunday),
// spring semester 2025-02-09.
func testCalendar() Calendar {
	return Calendar{
		FallStart:   date(2024, time.September, 1),
		SpringStart: date(2025, time.February, 9),
	}
}

func TestWeekNumbersFall2024(t *testing.T) {
	t.Parallel()

	calc := NewCalculator(testCalendar(), PolicyExtrapolate)

	tests := []struct {
		name       string
		date       time.Time
		wantNumber int
		wantParity timetable.Parity
	}{
		{"first day of semester", date(2024, time.September, 1), 1, timetable.ParityOdd},
		{"first Monday", date(2024, time.September, 2), 1, timetable.ParityOdd},
		{"first Saturday", date(2024, time.September, 7), 1, timetable.ParityOdd},
		{"third week Monday", date(2024, time.September, 16), 3, timetable.ParityOdd},
		{"fourth week", date(2024, time.September, 23), 4, timetable.ParityEven},
		{"deep into semester", date(2024, time.October, 15), 7, timetable.ParityOdd},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			info, err := calc.WeekType(tt.date)
			require.NoError(t, err)
			assert.Equal(t, tt.wantNumber, info.Number)
			assert.Equal(t, tt.wantParity, info.Parity)
			assert.False(t, info.Extrapolated)
		})
	}
}

func TestWeekOneAndThreeShareParity(t *testing.T) {
	t.Parallel()

	calc := NewCalculator(testCalendar(), PolicyExtrapolate)

	week1, err := calc.WeekType(date(2024, time.September, 1))
	require.NoError(t, err)
	week3, err := calc.WeekType(date(2024, time.September, 16))
	require.NoError(t, err)

	assert.Equal(t, week1.Parity, week3.Parity)
}

func TestWholeTeachingWeekReportsSameParity(t *testing.T) {
	t.Parallel()

	calc := NewCalculator(testCalendar(), PolicyExtrapolate)

	// 2024-09-08 (Sunday) through 2024-09-14 (Saturday): one teaching week.
	first, err := calc.WeekType(date(2024, time.September, 8))
	require.NoError(t, err)

	for d := 9; d <= 14; d++ {
		info, err := calc.WeekType(date(2024, time.September, d))
		require.NoError(t, err)
		assert.Equal(t, first.Parity, info.Parity, "2024-09-%02d", d)
		assert.Equal(t, first.Number, info.Number, "2024-09-%02d", d)
	}
}

func TestSpringSemesterYearCorrection(t *testing.T) {
	t.Parallel()

	calc := NewCalculator(testCalendar(), PolicyExtrapolate)

	// 2025-02-10 is the Monday right after the spring start (Feb 9, a
	// Sunday): week 1 of spring 2025, even though the calendar's spring
	// template was configured with year 2025 and queried in the same year.
	info, err := calc.WeekType(date(2025, time.February, 10))
	require.NoError(t, err)
	assert.Equal(t, 1, info.Number)
	assert.False(t, info.Extrapolated)

	// A date in March 2026 must match spring 2026, one year past the
	// configured template year.
	info, err = calc.WeekType(date(2026, time.March, 2))
	require.NoError(t, err)
	assert.False(t, info.Extrapolated)
}

func TestAugustBelongsToNoSemester(t *testing.T) {
	t.Parallel()

	// Mid-August sits after spring + 17 weeks and before Sep 1.
	none := NewCalculator(testCalendar(), PolicyNone)
	_, err := none.WeekType(date(2024, time.August, 12))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domerrors.ErrNoParity))

	extrapolate := NewCalculator(testCalendar(), PolicyExtrapolate)
	info, err := extrapolate.WeekType(date(2024, time.August, 12))
	require.NoError(t, err)
	assert.True(t, info.Extrapolated)
}

func TestBeforeSemesterLegacyLabel(t *testing.T) {
	t.Parallel()

	calc := NewCalculator(testCalendar(), PolicyExtrapolate)

	// Late August, nearest semester is the upcoming fall: the legacy bot
	// reported "odd, before semester start".
	info, err := calc.WeekType(date(2024, time.August, 28))
	require.NoError(t, err)
	assert.Equal(t, timetable.ParityOdd, info.Parity)
	assert.Equal(t, "Нечетная (до начала семестра)", info.Label)
	assert.True(t, info.Extrapolated)
}

func TestWinterBreakPolicyNone(t *testing.T) {
	t.Parallel()

	calc := NewCalculator(testCalendar(), PolicyNone)

	// Mid-January 2025: fall 2024 ended (17 weeks from Sep), spring not
	// yet begun.
	_, err := calc.WeekType(date(2025, time.January, 20))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domerrors.ErrNoParity))
}

func TestInSemesterParityAlternates(t *testing.T) {
	t.Parallel()

	calc := NewCalculator(testCalendar(), PolicyNone)

	prev, err := calc.WeekType(date(2024, time.September, 2))
	require.NoError(t, err)

	for week := 1; week < 10; week++ {
		d := date(2024, time.September, 2).AddDate(0, 0, week*7)
		info, err := calc.WeekType(d)
		require.NoError(t, err)
		assert.NotEqual(t, prev.Parity, info.Parity, "consecutive weeks must alternate (%s)", d)
		prev = info
	}
}

func TestParsePolicy(t *testing.T) {
	t.Parallel()

	p, err := ParsePolicy("extrapolate")
	require.NoError(t, err)
	assert.Equal(t, PolicyExtrapolate, p)

	p, err = ParsePolicy("none")
	require.NoError(t, err)
	assert.Equal(t, PolicyNone, p)

	p, err = ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyExtrapolate, p, "empty policy defaults to legacy behavior")

	_, err = ParsePolicy("guess")
	assert.Error(t, err)
}

func TestLabels(t *testing.T) {
	t.Parallel()

	calc := NewCalculator(testCalendar(), PolicyNone)

	odd, err := calc.WeekType(date(2024, time.September, 2))
	require.NoError(t, err)
	assert.Equal(t, "Нечетная", odd.Label)

	even, err := calc.WeekType(date(2024, time.September, 9))
	require.NoError(t, err)
	assert.Equal(t, "Четная", even.Label)
}
