package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrTitleRequired = errors.New("title is required")
	ErrPriceInvalid  = errors.New("price must be positive")
)

// Candidate is a book offered by an external source. It has no identity until the store
// assigns one on commit.
type Candidate struct {
	Title string
	Price decimal.Decimal
}

// NewCandidate builds a candidate with a trimmed title and a positive price.
func NewCandidate(title string, price decimal.Decimal) (Candidate, error) {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return Candidate{}, ErrTitleRequired
	}
	if !price.IsPositive() {
		return Candidate{}, fmt.Errorf("%w: got %s", ErrPriceInvalid, price.String())
	}
	return Candidate{Title: trimmed, Price: price}, nil
}

// IncomingTitles returns the distinct non-blank trimmed titles, compared case-insensitively.
// The first spelling seen wins and input order is kept.
func IncomingTitles(candidates []Candidate) []string {
	titles := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		title := strings.TrimSpace(candidate.Title)
		if title == "" {
			continue
		}
		key := strings.ToLower(title)
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		titles = append(titles, title)
	}
	return titles
}
