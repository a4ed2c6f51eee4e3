package dedup

import (
	"reflect"
	"strconv"
	"testing"

	"github.com/shopspring/decimal"

	"horse.fit/bookimport/internal/catalog"
)

func TestDistance_KnownPairs(t *testing.T) {
	t.Parallel()

	cases := []struct {
		a, b string
		want int
	}{
		{"kitten", "sitting", 3},
		{"Crime and punishment", "Criem and punishment", 2},
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"flaw", "lawn", 2},
		{"Dune", "dune", 1},
		{"čaša", "casa", 2},
	}

	for _, tc := range cases {
		if got := Distance(tc.a, tc.b); got != tc.want {
			t.Fatalf("Distance(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestDistance_IdentityAndSymmetry(t *testing.T) {
	t.Parallel()

	samples := []string{"", "a", "War and Peace", "War and Piece", "Anna Karenina", "anna karenina", "Ana"}
	for _, a := range samples {
		if got := Distance(a, a); got != 0 {
			t.Fatalf("Distance(%q, %q) = %d, want 0", a, a, got)
		}
		for _, b := range samples {
			if Distance(a, b) != Distance(b, a) {
				t.Fatalf("distance not symmetric for %q and %q", a, b)
			}
		}
	}
}

func TestClassify_ExactIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	existing := []string{"Crime and punishment"}
	if got := Classify("CRIME AND PUNISHMENT", existing, 2); got != VerdictExact {
		t.Fatalf("expected exact verdict, got %q", got)
	}
}

func TestClassify_ExactWinsOverEarlierFuzzy(t *testing.T) {
	t.Parallel()

	existing := []string{"Emma.", "emma"}
	if got := Classify("Emma", existing, 2); got != VerdictExact {
		t.Fatalf("expected exact verdict, got %q", got)
	}
}

func TestClassify_FuzzyThresholds(t *testing.T) {
	t.Parallel()

	existing := []string{"Crime and punishment"}
	cases := []struct {
		threshold int
		want      Verdict
	}{
		{0, VerdictNovel},
		{1, VerdictNovel},
		{2, VerdictFuzzy},
		{3, VerdictFuzzy},
	}

	for _, tc := range cases {
		if got := Classify("Criem and punishment", existing, tc.threshold); got != tc.want {
			t.Fatalf("threshold=%d: got %q want %q", tc.threshold, got, tc.want)
		}
	}
}

func TestClassify_FuzzyIsCaseSensitive(t *testing.T) {
	t.Parallel()

	// Four case changes plus a trailing '!': not an exact match and 5 edits apart.
	existing := []string{"the hobbit"}
	if got := Classify("THE Hobbit!", existing, 2); got != VerdictNovel {
		t.Fatalf("expected novel verdict, got %q", got)
	}
}

func TestClassify_EmptyExisting(t *testing.T) {
	t.Parallel()

	if got := Classify("Anything", nil, 2); got != VerdictNovel {
		t.Fatalf("expected novel verdict, got %q", got)
	}
}

func TestFilter_SkipsTypoAndExactKeepsNew(t *testing.T) {
	t.Parallel()

	existing := []string{"Crime and punishment"}
	incoming := []catalog.Candidate{
		{Title: "Crime and punishment", Price: decimal.NewFromInt(10)},
		{Title: "Criem and punishment", Price: decimal.NewFromInt(10)},
		{Title: "A Completely New Book", Price: decimal.RequireFromString("15.5")},
	}

	out := Filter(incoming, existing, DefaultFuzzyThreshold)
	if len(out.Accepted) != 1 || out.Accepted[0].Title != "A Completely New Book" {
		t.Fatalf("unexpected accepted set: %+v", out.Accepted)
	}
	if out.SkippedExact != 1 || out.SkippedFuzzy != 1 {
		t.Fatalf("unexpected skip counts: exact=%d fuzzy=%d", out.SkippedExact, out.SkippedFuzzy)
	}
}

func TestFilter_DropsBlankTitlesWithoutCounting(t *testing.T) {
	t.Parallel()

	incoming := []catalog.Candidate{
		{Title: ""},
		{Title: "   "},
		{Title: "\t\n"},
		{Title: "  Emma  "},
	}

	out := Filter(incoming, nil, DefaultFuzzyThreshold)
	if out.SkippedExact != 0 || out.SkippedFuzzy != 0 {
		t.Fatalf("blank titles must not be counted: %+v", out)
	}
	if len(out.Accepted) != 1 || out.Accepted[0].Title != "Emma" {
		t.Fatalf("expected trimmed Emma to be accepted, got %+v", out.Accepted)
	}
	if out.Considered() != 1 {
		t.Fatalf("expected 1 considered candidate, got %d", out.Considered())
	}
}

func TestFilter_KeepsIncomingDuplicatesAndOrder(t *testing.T) {
	t.Parallel()

	incoming := []catalog.Candidate{
		{Title: "Persuasion"},
		{Title: "Dune"},
		{Title: "persuasion"},
		{Title: "Middlemarch"},
	}

	out := Filter(incoming, []string{"Dune"}, DefaultFuzzyThreshold)
	var titles []string
	for _, c := range out.Accepted {
		titles = append(titles, c.Title)
	}
	want := []string{"Persuasion", "persuasion", "Middlemarch"}
	if !reflect.DeepEqual(titles, want) {
		t.Fatalf("unexpected accepted titles: got %v want %v", titles, want)
	}
	if out.SkippedExact != 1 {
		t.Fatalf("expected one exact skip, got %d", out.SkippedExact)
	}
}

func TestFilter_CountsAddUp(t *testing.T) {
	t.Parallel()

	existing := []string{"Book 1", "Book 20"}
	incoming := make([]catalog.Candidate, 0, 40)
	nonBlank := 0
	for i := 0; i < 40; i++ {
		title := "Book " + strconv.Itoa(i)
		if i%7 == 0 {
			title = " "
		} else {
			nonBlank++
		}
		incoming = append(incoming, catalog.Candidate{Title: title})
	}

	out := Filter(incoming, existing, DefaultFuzzyThreshold)
	if out.Considered() != nonBlank {
		t.Fatalf("counts do not add up: considered=%d non_blank=%d", out.Considered(), nonBlank)
	}
}

func TestFilter_Idempotent(t *testing.T) {
	t.Parallel()

	existing := []string{"Crime and punishment", "Emma"}
	incoming := []catalog.Candidate{
		{Title: " Emma "},
		{Title: "Emma"},
		{Title: "Ulysses"},
		{Title: ""},
	}

	first := Filter(incoming, existing, DefaultFuzzyThreshold)
	second := Filter(incoming, existing, DefaultFuzzyThreshold)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("filter is not idempotent: %+v vs %+v", first, second)
	}
	if incoming[0].Title != " Emma " {
		t.Fatalf("filter must not mutate its input, got %q", incoming[0].Title)
	}
}
