// Command verify downloads the upstream timetable feed once, parses it,
// and checks the structural consistency of the snapshot built from it.
// Intended for CI and for manual checks after the university changes the
// feed format.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/voenmeh-bot/timetable-go/internal/fetch"
	"github.com/voenmeh-bot/timetable-go/internal/timetable"
)

// CLI flags
var (
	urlFlag     = flag.String("url", fetch.DefaultFeedURL, "Timetable feed URL")
	timeoutFlag = flag.Duration("timeout", 60*time.Second, "Fetch timeout")
)

// maxSkippedRatio is the share of malformed lesson records tolerated
// before the feed is considered broken.
const maxSkippedRatio = 0.05

// Verification results
type verifyResult struct {
	name    string
	passed  bool
	message string
}

func main() {
	flag.Parse()

	fmt.Println("Timetable Feed Verification Tool")
	fmt.Println("================================")

	ctx, cancel := context.WithTimeout(context.Background(), *timeoutFlag+10*time.Second)
	defer cancel()

	client := fetch.NewClient(*urlFlag, *timeoutFlag, 2)
	feed, err := client.Fetch(ctx, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to fetch feed: %v\n", err)
		os.Exit(1)
	}

	results := []verifyResult{}
	results = append(results, verifyParse(feed.Result)...)

	snapshot, err := timetable.Build(feed.Result.Lessons, feed.Hash, feed.FetchedAt, &feed.Result.Period)
	if err != nil {
		results = append(results, verifyResult{"index build", false, err.Error()})
	} else {
		results = append(results, verifyIndices(snapshot)...)
	}

	// Print results
	fmt.Println("\nVerification Results:")
	fmt.Println("=====================")

	passedCount := 0
	failedCount := 0

	for _, result := range results {
		status := "FAIL"
		if result.passed {
			status = "PASS"
			passedCount++
		} else {
			failedCount++
		}
		fmt.Printf("[%s] %s: %s\n", status, result.name, result.message)
	}

	fmt.Printf("\nSummary: %d passed, %d failed\n", passedCount, failedCount)

	if failedCount > 0 {
		os.Exit(1)
	}
}

// verifyParse checks the raw parse output before any indexing.
func verifyParse(result *fetch.ParseResult) []verifyResult {
	results := []verifyResult{}

	results = append(results, verifyResult{
		name:    "lesson records",
		passed:  len(result.Lessons) > 0,
		message: fmt.Sprintf("%d lessons parsed", len(result.Lessons)),
	})

	total := len(result.Lessons) + result.Skipped
	ratio := 0.0
	if total > 0 {
		ratio = float64(result.Skipped) / float64(total)
	}
	results = append(results, verifyResult{
		name:    "malformed records",
		passed:  ratio <= maxSkippedRatio,
		message: fmt.Sprintf("%d of %d skipped (%.1f%%)", result.Skipped, total, ratio*100),
	})

	if start, ok := result.Period.StartDate(); ok {
		results = append(results, verifyResult{
			name:    "semester period",
			passed:  true,
			message: fmt.Sprintf("declared start %s", start.Format("2006-01-02")),
		})
	} else {
		results = append(results, verifyResult{
			name:    "semester period",
			passed:  true,
			message: "feed declares no semester start (optional)",
		})
	}

	invalid := 0
	for i := range result.Lessons {
		if err := result.Lessons[i].Validate(); err != nil {
			invalid++
		}
	}
	results = append(results, verifyResult{
		name:    "lesson validation",
		passed:  invalid == 0,
		message: fmt.Sprintf("%d invalid lessons", invalid),
	})

	return results
}

// verifyIndices checks that the three indices agree with each other.
func verifyIndices(snapshot *timetable.Snapshot) []verifyResult {
	results := []verifyResult{}

	results = append(results, verifyResult{
		name:    "group index",
		passed:  snapshot.GroupCount() > 0,
		message: fmt.Sprintf("%d groups indexed", snapshot.GroupCount()),
	})

	teachers := snapshot.TeacherNames()
	emptyTeacherDays := 0
	for _, name := range teachers {
		if lessons, ok := snapshot.TeacherOccurrences(name); !ok || len(lessons) == 0 {
			emptyTeacherDays++
		}
	}
	results = append(results, verifyResult{
		name:    "teacher index",
		passed:  emptyTeacherDays == 0,
		message: fmt.Sprintf("%d teachers, %d with no occurrences", len(teachers), emptyTeacherDays),
	})

	classrooms := snapshot.ClassroomNames()
	emptyRooms := 0
	for _, room := range classrooms {
		if lessons, ok := snapshot.ClassroomOccurrences(room); !ok || len(lessons) == 0 {
			emptyRooms++
		}
	}
	results = append(results, verifyResult{
		name:    "classroom index",
		passed:  emptyRooms == 0,
		message: fmt.Sprintf("%d classrooms, %d with no occurrences", len(classrooms), emptyRooms),
	})

	// Every teacher occurrence must reference at least one known group
	orphaned := 0
	for _, name := range teachers {
		lessons, _ := snapshot.TeacherOccurrences(name)
		for i := range lessons {
			known := false
			for _, group := range lessons[i].Groups {
				if snapshot.HasGroup(group) {
					known = true
					break
				}
			}
			if !known {
				orphaned++
			}
		}
	}
	results = append(results, verifyResult{
		name:    "index cross-references",
		passed:  orphaned == 0,
		message: fmt.Sprintf("%d teacher occurrences reference unknown groups", orphaned),
	})

	return results
}
