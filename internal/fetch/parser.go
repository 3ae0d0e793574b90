package fetch

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/voenmeh-bot/timetable-go/internal/timetable"
)

// lessonLength is the fixed duration of one lesson. The feed carries only
// start times; the end time is derived.
const lessonLength = 90 * time.Minute

// ParseResult is a parsed feed document: flat lesson records ready for
// index construction, the semester period metadata, and counters for
// records the parser had to drop.
type ParseResult struct {
	Lessons []timetable.Lesson
	Period  timetable.Period
	Skipped int // malformed lesson records dropped during parsing
}

// XML layout of the feed document.
type xmlFeed struct {
	Period xmlPeriod  `xml:"Period"`
	Groups []xmlGroup `xml:"Group"`
}

type xmlPeriod struct {
	StartYear  int `xml:"StartYear,attr"`
	StartMonth int `xml:"StartMonth,attr"`
	StartDay   int `xml:"StartDay,attr"`
}

type xmlGroup struct {
	Number string   `xml:"Number,attr"`
	Days   []xmlDay `xml:"Days>Day"`
}

type xmlDay struct {
	Title   string      `xml:"Title,attr"`
	Lessons []xmlLesson `xml:"GroupLessons>Lesson"`
}

type xmlLesson struct {
	Time       string   `xml:"Time"`
	Discipline string   `xml:"Discipline"`
	Classroom  string   `xml:"Classroom"`
	WeekCode   string   `xml:"WeekCode"`
	Lecturers  []string `xml:"Lecturers>Lecturer>ShortName"`
}

// Parse decodes a raw feed document into flat lesson records.
//
// The feed is UTF-16 encoded (the byte order mark decides endianness,
// defaulting to little-endian without one). Individual malformed lessons
// are skipped and counted rather than failing the whole document; a feed
// with no usable groups at all is an error.
func Parse(raw []byte) (*ParseResult, error) {
	decoded, err := decodeUTF16(raw)
	if err != nil {
		return nil, fmt.Errorf("decode feed text: %w", err)
	}

	decoder := xml.NewDecoder(bytes.NewReader(decoded))
	// The prolog declares utf-16 but the bytes are already UTF-8 here.
	decoder.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	var feed xmlFeed
	if err := decoder.Decode(&feed); err != nil {
		return nil, fmt.Errorf("parse feed xml: %w", err)
	}
	if len(feed.Groups) == 0 {
		return nil, fmt.Errorf("feed contains no groups")
	}

	result := &ParseResult{
		Period: timetable.Period{
			StartYear:  feed.Period.StartYear,
			StartMonth: feed.Period.StartMonth,
			StartDay:   feed.Period.StartDay,
		},
	}

	for _, group := range feed.Groups {
		number := timetable.NormalizeGroup(group.Number)
		if number == "" {
			continue
		}
		for _, day := range group.Days {
			dayEnum, err := timetable.DayFromTitle(day.Title)
			if err != nil {
				result.Skipped += len(day.Lessons)
				continue
			}
			for _, raw := range day.Lessons {
				lesson, ok := convertLesson(number, dayEnum, raw)
				if !ok {
					result.Skipped++
					continue
				}
				result.Lessons = append(result.Lessons, lesson)
			}
		}
	}

	if len(result.Lessons) == 0 {
		return nil, fmt.Errorf("feed contains no usable lessons")
	}
	return result, nil
}

// convertLesson maps one feed record to the domain model, applying the
// feed's quirks: the Time element holds extra text after the start time,
// Discipline prefixes the subject with a kind word, and Classroom is
// padded with separator junk.
func convertLesson(group string, day timetable.Day, raw xmlLesson) (timetable.Lesson, bool) {
	fields := strings.Fields(raw.Time)
	if len(fields) == 0 {
		return timetable.Lesson{}, false
	}
	startRaw := fields[0]
	startMinutes, err := timetable.ParseClock(startRaw)
	if err != nil {
		return timetable.Lesson{}, false
	}
	endRaw := minutesToClock(startMinutes + int(lessonLength.Minutes()))

	kind, subject := splitDiscipline(raw.Discipline)
	if subject == "" {
		return timetable.Lesson{}, false
	}

	teachers := make([]string, 0, len(raw.Lecturers))
	for _, name := range raw.Lecturers {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			teachers = append(teachers, trimmed)
		}
	}

	return timetable.Lesson{
		Group:        group,
		Day:          day,
		Parity:       parityFromWeekCode(raw.WeekCode),
		Time:         startRaw + "-" + endRaw,
		StartRaw:     startRaw,
		EndRaw:       endRaw,
		StartMinutes: startMinutes,
		Subject:      subject,
		Kind:         kind,
		Room:         cleanClassroom(raw.Classroom),
		Teachers:     teachers,
	}, true
}

// splitDiscipline splits the feed's "КИНД Предмет" form into kind and
// subject. A single-word discipline is all subject.
func splitDiscipline(discipline string) (kind, subject string) {
	trimmed := strings.TrimSpace(discipline)
	parts := strings.SplitN(trimmed, " ", 2)
	if len(parts) < 2 {
		return "", trimmed
	}
	return parts[0], strings.TrimSpace(parts[1])
}

// parityFromWeekCode maps the feed's week codes: 1 is odd weeks, 2 even,
// anything else both.
func parityFromWeekCode(code string) timetable.Parity {
	switch strings.TrimSpace(code) {
	case "1":
		return timetable.ParityOdd
	case "2":
		return timetable.ParityEven
	default:
		return timetable.ParityEvery
	}
}

// cleanClassroom strips the separator junk the feed pads room names with.
// Returns "" when no room is specified.
func cleanClassroom(classroom string) string {
	return strings.Trim(classroom, ";* ")
}

func minutesToClock(minutes int) string {
	minutes %= 24 * 60
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// decodeUTF16 converts the feed's UTF-16 bytes to UTF-8.
func decodeUTF16(raw []byte) ([]byte, error) {
	codec := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
	decoded, _, err := transform.Bytes(codec.NewDecoder(), raw)
	if err != nil {
		return nil, err
	}
	return bytes.TrimSpace(decoded), nil
}
