package dedup

import "strings"

// DefaultFuzzyThreshold is the largest edit distance still treated as the same title.
const DefaultFuzzyThreshold = 2

// Verdict is the outcome of comparing one incoming title against the existing titles.
type Verdict string

const (
	VerdictNovel Verdict = "novel"
	VerdictExact Verdict = "exact"
	VerdictFuzzy Verdict = "fuzzy"
)

// Classify reports whether title duplicates one of existing.
//
// The exact check folds case and runs over every existing title before any distance is
// computed. The fuzzy check compares the raw strings, so it stays case-sensitive.
func Classify(title string, existing []string, threshold int) Verdict {
	for _, candidate := range existing {
		if strings.EqualFold(candidate, title) {
			return VerdictExact
		}
	}

	for _, candidate := range existing {
		if withinDistance(candidate, title, threshold) {
			return VerdictFuzzy
		}
	}

	return VerdictNovel
}

func withinDistance(a, b string, threshold int) bool {
	if threshold < 0 {
		return false
	}
	// Every rune of length difference costs at least one edit.
	if diff := len([]rune(a)) - len([]rune(b)); diff > threshold || -diff > threshold {
		return false
	}
	return Distance(a, b) <= threshold
}
