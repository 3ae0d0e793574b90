package fetch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/voenmeh-bot/timetable-go/internal/timetable"
)

const sampleFeed = `<?xml version="1.0" encoding="utf-16"?>
<Timetable>
  <Period StartYear="2024" StartMonth="9" StartDay="1"/>
  <Weeks CurrentWeek="1"/>
  <Group Number="о-123">
    <Days>
      <Day Title="Понедельник">
        <GroupLessons>
          <Lesson>
            <Time>09:00 1 пара</Time>
            <Discipline>лек Математический анализ</Discipline>
            <Lecturers><Lecturer><ShortName>Землянская Е.Р.</ShortName></Lecturer></Lecturers>
            <Classroom>418*;</Classroom>
            <WeekCode>1</WeekCode>
          </Lesson>
          <Lesson>
            <Time>10:40 2 пара</Time>
            <Discipline>пр Физика</Discipline>
            <Lecturers>
              <Lecturer><ShortName>Иванов И.И.</ShortName></Lecturer>
              <Lecturer><ShortName>Петров П.П.</ShortName></Lecturer>
            </Lecturers>
            <Classroom>;* </Classroom>
            <WeekCode>2</WeekCode>
          </Lesson>
          <Lesson>
            <Time>13:00</Time>
            <Discipline>Физкультура</Discipline>
            <Lecturers/>
            <Classroom>спортзал</Classroom>
            <WeekCode>0</WeekCode>
          </Lesson>
        </GroupLessons>
      </Day>
      <Day Title="Вторник">
        <GroupLessons>
          <Lesson>
            <Time>N/A</Time>
            <Discipline>лек Без времени</Discipline>
            <Lecturers/>
            <Classroom/>
            <WeekCode>0</WeekCode>
          </Lesson>
        </GroupLessons>
      </Day>
    </Days>
  </Group>
  <Group Number="Е-456">
    <Days>
      <Day Title="Суббота">
        <GroupLessons>
          <Lesson>
            <Time>09:00</Time>
            <Discipline>лек Математический анализ</Discipline>
            <Lecturers><Lecturer><ShortName>Землянская Е.Р.</ShortName></Lecturer></Lecturers>
            <Classroom>418</Classroom>
            <WeekCode>1</WeekCode>
          </Lesson>
        </GroupLessons>
      </Day>
    </Days>
  </Group>
</Timetable>`

// encodeUTF16LE renders a document the way the feed server does: UTF-16
// little-endian with a byte order mark.
func encodeUTF16LE(t *testing.T, s string) []byte {
	t.Helper()

	codec := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
	out, _, err := transform.Bytes(codec.NewEncoder(), []byte(s))
	require.NoError(t, err)
	return out
}

func TestParseSampleFeed(t *testing.T) {
	t.Parallel()

	result, err := Parse(encodeUTF16LE(t, sampleFeed))
	require.NoError(t, err)

	assert.Equal(t, timetable.Period{StartYear: 2024, StartMonth: 9, StartDay: 1}, result.Period)
	assert.Equal(t, 1, result.Skipped, "the N/A time record is dropped")
	require.Len(t, result.Lessons, 4)

	first := result.Lessons[0]
	assert.Equal(t, "О-123", first.Group, "group number is uppercased")
	assert.Equal(t, timetable.Monday, first.Day)
	assert.Equal(t, timetable.ParityOdd, first.Parity)
	assert.Equal(t, "09:00", first.StartRaw)
	assert.Equal(t, "10:30", first.EndRaw, "end time is start plus 90 minutes")
	assert.Equal(t, "09:00-10:30", first.Time)
	assert.Equal(t, 540, first.StartMinutes)
	assert.Equal(t, "лек", first.Kind)
	assert.Equal(t, "Математический анализ", first.Subject)
	assert.Equal(t, "418", first.Room, "classroom separator junk is stripped")
	assert.Equal(t, []string{"Землянская Е.Р."}, first.Teachers)

	second := result.Lessons[1]
	assert.Equal(t, timetable.ParityEven, second.Parity)
	assert.Empty(t, second.Room, "junk-only classroom means no room")
	assert.Equal(t, []string{"Иванов И.И.", "Петров П.П."}, second.Teachers)

	third := result.Lessons[2]
	assert.Equal(t, timetable.ParityEvery, third.Parity, "week code 0 means every week")
	assert.Empty(t, third.Kind, "single-word discipline has no kind prefix")
	assert.Equal(t, "Физкультура", third.Subject)
	assert.Empty(t, third.Teachers)

	fourth := result.Lessons[3]
	assert.Equal(t, "Е-456", fourth.Group)
	assert.Equal(t, timetable.Saturday, fourth.Day)
}

func TestParseFeedsIndexBuild(t *testing.T) {
	t.Parallel()

	result, err := Parse(encodeUTF16LE(t, sampleFeed))
	require.NoError(t, err)

	snapshot, err := timetable.Build(result.Lessons, "deadbeef", time.Now().UTC(), &result.Period)
	require.NoError(t, err)

	// Monday and Saturday are different slots, so the teacher index holds
	// two occurrences for the same lecturer.
	occurrences, ok := snapshot.TeacherOccurrences("Землянская Е.Р.")
	require.True(t, ok)
	require.Len(t, occurrences, 2)
}

func TestParseRejectsGarbage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  []byte
	}{
		{name: "not xml", raw: encodeUTF16LE(t, "this is not xml")},
		{name: "empty document", raw: encodeUTF16LE(t, `<?xml version="1.0" encoding="utf-16"?><Timetable/>`)},
		{name: "empty bytes", raw: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse(tt.raw)
			assert.Error(t, err)
		})
	}
}

func TestSplitDiscipline(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		kind    string
		subject string
	}{
		{in: "лек Математический анализ", kind: "лек", subject: "Математический анализ"},
		{in: "пр Физика", kind: "пр", subject: "Физика"},
		{in: "Физкультура", kind: "", subject: "Физкультура"},
		{in: "  лаб  Информатика ", kind: "лаб", subject: "Информатика"},
	}

	for _, tt := range tests {
		kind, subject := splitDiscipline(tt.in)
		assert.Equal(t, tt.kind, kind, "input %q", tt.in)
		assert.Equal(t, tt.subject, subject, "input %q", tt.in)
	}
}
