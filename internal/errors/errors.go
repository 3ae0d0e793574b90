// Package errors provides domain-specific error types and sentinel errors
// for improved error handling across the application.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common scenarios.
// Use errors.Is() to check these errors in your code.
var (
	// ErrGroupNotFound indicates the requested group is absent from the index.
	ErrGroupNotFound = errors.New("group not found")

	// ErrTeacherNotFound indicates no teacher matched the query, even fuzzily.
	ErrTeacherNotFound = errors.New("teacher not found")

	// ErrClassroomNotFound indicates the requested classroom is absent from the index.
	ErrClassroomNotFound = errors.New("classroom not found")

	// ErrNoParity indicates the date falls outside every configured semester
	// and the out-of-semester policy forbids extrapolation.
	ErrNoParity = errors.New("no week parity for date")

	// ErrSourceUnavailable indicates a bootstrap source (cache, upstream,
	// backup, fallback file) could not provide data. Always recoverable by
	// falling through to the next tier.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrNoData indicates every bootstrap tier was exhausted. Fatal: the
	// process must not start serving without a snapshot.
	ErrNoData = errors.New("no timetable data from any source")

	// ErrNotModified indicates the upstream content hash matches the one we
	// already hold, so there is nothing to rebuild.
	ErrNotModified = errors.New("timetable not modified")

	// ErrCacheMiss indicates the cache is reachable but holds no value for
	// the requested key.
	ErrCacheMiss = errors.New("cache miss")

	// ErrLockNotAcquired indicates another process holds the refresh lock.
	ErrLockNotAcquired = errors.New("refresh lock held by another process")

	// ErrInvalidInput indicates user provided invalid input.
	ErrInvalidInput = errors.New("invalid input")
)

// SourceError wraps a failure of one bootstrap source with its tier name.
type SourceError struct {
	Source string // "cache", "upstream", "backup", "fallback"
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Is makes every SourceError match ErrSourceUnavailable.
func (e *SourceError) Is(target error) bool {
	return target == ErrSourceUnavailable
}

// NewSourceError creates a new source error for a bootstrap tier.
func NewSourceError(source string, err error) *SourceError {
	return &SourceError{Source: source, Err: err}
}

// AmbiguousNameError reports a fuzzy resolution that stayed below the
// acceptance threshold, together with ranked suggestions for the caller to
// present to the user.
type AmbiguousNameError struct {
	Query       string
	Suggestions []string
}

func (e *AmbiguousNameError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("no confident match for %q", e.Query)
	}
	return fmt.Sprintf("no confident match for %q (closest: %s)", e.Query, strings.Join(e.Suggestions, ", "))
}

// Is makes every AmbiguousNameError match ErrTeacherNotFound, so callers
// that only care about "resolved or not" need a single check.
func (e *AmbiguousNameError) Is(target error) bool {
	return target == ErrTeacherNotFound
}
