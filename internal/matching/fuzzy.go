package matching

import (
	"sort"

	"github.com/agnivade/levenshtein"
)

// Similarity computes a normalized edit-distance similarity in [0, 1].
// Identical strings score 1.0; if exactly one side is empty the score
// is 0.0. When normalize is true both strings are case-folded and
// diacritic-stripped first; when false the raw strings are compared.
// Normalization is an explicit per-call decision, never implied.
func Similarity(a, b string, normalize bool) float64 {
	if normalize {
		a = Normalize(a)
		b = Normalize(b)
	}

	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}

	dist := levenshtein.ComputeDistance(a, b)
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}

	return 1.0 - float64(dist)/float64(maxLen)
}

// RankedMatch pairs a candidate string with its similarity to a query.
type RankedMatch struct {
	Text  string
	Score float64
}

// Match scores every candidate against the query and returns all of
// them ranked by descending score. Zero-score candidates are included;
// thresholding is left to the caller.
func Match(query string, candidates []string, normalize bool) []RankedMatch {
	results := make([]RankedMatch, len(candidates))
	for i, c := range candidates {
		results[i] = RankedMatch{Text: c, Score: Similarity(query, c, normalize)}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	return results
}
