// Package resolver maps free-text teacher queries to the canonical keys
// used by the teacher index. Matching is layered for robustness:
//
//  1. Normalization (whitespace, initials punctuation, case folding)
//  2. Exact match against the normalized key set
//  3. Fuzzy match via a pluggable similarity scorer, accepted only above
//     a fixed threshold
//
// A low-confidence fuzzy result is never returned as authoritative: the
// caller gets a ranked suggestion list instead.
package resolver

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	domerrors "github.com/voenmeh-bot/timetable-go/internal/errors"
)

// DefaultThreshold is the minimum similarity score for a fuzzy match to
// be accepted as authoritative.
const DefaultThreshold = 0.75

// maxSuggestions caps the ranked list returned on ambiguous input.
const maxSuggestions = 5

// suggestionFloor is the minimum score for a candidate to be worth
// suggesting at all.
const suggestionFloor = 0.4

// Scorer computes a similarity score in [0, 1] between two normalized
// strings. It is pluggable so the similarity algorithm can be swapped
// without touching the resolver's control flow.
type Scorer func(query, candidate string) float64

// LevenshteinScorer is the default scorer: edit distance normalized by
// the longer string's rune count.
func LevenshteinScorer(query, candidate string) float64 {
	if query == candidate {
		return 1
	}
	longest := utf8.RuneCountInString(query)
	if l := utf8.RuneCountInString(candidate); l > longest {
		longest = l
	}
	if longest == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(query, candidate)
	return 1 - float64(dist)/float64(longest)
}

// Normalize canonicalizes a name for comparison only; canonical keys keep
// their original casing for display. Periods separating initials become
// spaces ("Е.Р." and "Е Р" compare equal), internal whitespace collapses,
// and the result is uppercase-folded with Ё treated as Е.
func Normalize(name string) string {
	replaced := strings.Map(func(r rune) rune {
		if r == '.' {
			return ' '
		}
		return r
	}, name)
	folded := strings.ToUpper(strings.Join(strings.Fields(replaced), " "))
	return strings.ReplaceAll(folded, "Ё", "Е")
}

// Resolver resolves queries against a canonical key set.
type Resolver struct {
	scorer    Scorer
	threshold float64
}

// New creates a resolver with the given scorer and acceptance threshold.
// A nil scorer selects LevenshteinScorer; a non-positive threshold selects
// DefaultThreshold.
func New(scorer Scorer, threshold float64) *Resolver {
	if scorer == nil {
		scorer = LevenshteinScorer
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Resolver{scorer: scorer, threshold: threshold}
}

// Resolve maps a free-text query to one canonical key from keys.
//
// Returns the canonical original-cased key on success. On failure returns
// ErrTeacherNotFound, or an AmbiguousNameError carrying ranked suggestions
// when plausible but unconvincing candidates exist. Resolve reads only its
// arguments, so it is safe for any number of concurrent callers.
func (r *Resolver) Resolve(query string, keys []string) (string, error) {
	normalized := Normalize(query)
	if normalized == "" {
		return "", fmt.Errorf("resolve teacher: %w", domerrors.ErrInvalidInput)
	}

	// Exact match after normalization.
	for _, key := range keys {
		if Normalize(key) == normalized {
			return key, nil
		}
	}

	// Fuzzy pass over the whole key set.
	type scored struct {
		key   string
		score float64
	}
	ranked := make([]scored, 0, len(keys))
	for _, key := range keys {
		score := r.scorer(normalized, Normalize(key))
		if score >= suggestionFloor {
			ranked = append(ranked, scored{key: key, score: score})
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].key < ranked[j].key
	})

	if len(ranked) == 0 {
		return "", domerrors.ErrTeacherNotFound
	}

	best := ranked[0]
	uniqueBest := len(ranked) == 1 || ranked[1].score < best.score
	if best.score >= r.threshold && uniqueBest {
		return best.key, nil
	}

	suggestions := make([]string, 0, maxSuggestions)
	for _, s := range ranked {
		suggestions = append(suggestions, s.key)
		if len(suggestions) == maxSuggestions {
			break
		}
	}
	return "", &domerrors.AmbiguousNameError{Query: query, Suggestions: suggestions}
}
