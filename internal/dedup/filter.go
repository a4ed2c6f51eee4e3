package dedup

import (
	"strings"

	"horse.fit/bookimport/internal/catalog"
)

// Outcome is the result of filtering one batch of incoming candidates.
type Outcome struct {
	Accepted     []catalog.Candidate
	SkippedExact int
	SkippedFuzzy int
}

// Considered is the number of non-blank candidates the filter classified.
func (o Outcome) Considered() int {
	return len(o.Accepted) + o.SkippedExact + o.SkippedFuzzy
}

// Filter drops candidates whose title duplicates an existing title and returns the rest in
// input order with trimmed titles. Blank titles are dropped without being counted.
// Incoming candidates are only compared against existing, never against each other.
func Filter(candidates []catalog.Candidate, existing []string, threshold int) Outcome {
	out := Outcome{
		Accepted: make([]catalog.Candidate, 0, len(candidates)),
	}

	for _, candidate := range candidates {
		title := strings.TrimSpace(candidate.Title)
		if title == "" {
			continue
		}

		switch Classify(title, existing, threshold) {
		case VerdictExact:
			out.SkippedExact++
		case VerdictFuzzy:
			out.SkippedFuzzy++
		default:
			candidate.Title = title
			out.Accepted = append(out.Accepted, candidate)
		}
	}

	return out
}
