// Package buildinfo holds build-time metadata injected via -ldflags.
package buildinfo

// Version is the semantic version or tag for this build.
// Inject via: -X github.com/voenmeh-bot/timetable-go/internal/buildinfo.Version=...
var Version = ""

// Commit is the git commit SHA for this build.
// Inject via: -X github.com/voenmeh-bot/timetable-go/internal/buildinfo.Commit=...
var Commit = ""

// BuildDate is the RFC3339 build timestamp.
// Inject via: -X github.com/voenmeh-bot/timetable-go/internal/buildinfo.BuildDate=...
var BuildDate = ""

// Short returns a compact human-readable description of the build, or
// "dev" when nothing was injected.
func Short() string {
	switch {
	case Version != "" && Commit != "":
		return Version + " (" + Commit + ")"
	case Version != "":
		return Version
	case Commit != "":
		return Commit
	default:
		return "dev"
	}
}
