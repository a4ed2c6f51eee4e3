package dedup

// Distance returns the Levenshtein edit distance between a and b, counted in runes.
// The comparison is case-sensitive.
func Distance(a, b string) int {
	if a == b {
		return 0
	}

	ar := []rune(a)
	br := []rune(b)
	// Keep the shorter string on the inner axis so the rows stay small.
	if len(ar) < len(br) {
		ar, br = br, ar
	}
	if len(br) == 0 {
		return len(ar)
	}

	prev := make([]int, len(br)+1)
	curr := make([]int, len(br)+1)
	for j := range prev {
		prev[j] = j
	}

	for i, ca := range ar {
		curr[0] = i + 1
		for j, cb := range br {
			cost := 1
			if ca == cb {
				cost = 0
			}
			curr[j+1] = min(
				prev[j+1]+1, // deletion
				curr[j]+1,   // insertion
				prev[j]+cost,
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(br)]
}
