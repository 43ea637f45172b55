package matching

import (
	"sort"

	"github.com/ledgerline/categorizer/internal/model"
)

// DefaultCorroborationBoost is the fraction of each additional match's
// score added on top of the strongest match for the same category.
const DefaultCorroborationBoost = 0.1

// Combine merges independent match candidates referencing the same
// category into one candidate per category. Within a category the
// strongest match dominates; every additional corroborating match adds
// boost*score, and the total is clamped to [0, 1]. Convergent evidence
// is rewarded without letting many weak matches outweigh one strong
// one. Output is sorted by descending score.
func Combine(candidates []model.MatchCandidate, boost float64) []model.MatchCandidate {
	if boost <= 0 {
		boost = DefaultCorroborationBoost
	}

	groups := make(map[string][]model.MatchCandidate)
	order := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if _, seen := groups[c.Category]; !seen {
			order = append(order, c.Category)
		}
		groups[c.Category] = append(groups[c.Category], c)
	}

	combined := make([]model.MatchCandidate, 0, len(groups))
	for _, category := range order {
		group := groups[category]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Score > group[j].Score
		})

		score := group[0].Score
		for _, c := range group[1:] {
			score += boost * c.Score
		}
		if score > 1 {
			score = 1
		}

		patterns := make([]string, 0, len(group))
		for _, c := range group {
			patterns = append(patterns, c.PatternsUsed...)
		}

		combined = append(combined, model.MatchCandidate{
			Category:     category,
			Score:        score,
			Method:       group[0].Method,
			PatternsUsed: patterns,
		})
	}

	sort.SliceStable(combined, func(i, j int) bool {
		if combined[i].Score != combined[j].Score {
			return combined[i].Score > combined[j].Score
		}
		return combined[i].Category < combined[j].Category
	})

	return combined
}
