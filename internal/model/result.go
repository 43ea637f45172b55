package model

import "time"

// Method describes how a categorization decision was reached.
type Method string

// Categorization method constants.
const (
	MethodUserPreference Method = "user_preference"
	MethodPattern        Method = "pattern"
	MethodComposite      Method = "composite"
	MethodFuzzy          Method = "fuzzy"
	MethodSourceHint     Method = "source_hint"
	MethodNoMatch        Method = "no_match"
	MethodError          Method = "error"
)

// MatchCandidate is a transient per-category match produced while
// scoring one transaction. Discarded after the result is assembled.
type MatchCandidate struct {
	Category     string
	Method       Method
	PatternsUsed []string
	Score        float64
}

// Alternative is a runner-up category surfaced alongside the primary result.
type Alternative struct {
	Category   string
	Confidence float64
}

// CategorizationResult is returned to the caller for every categorize
// call, including failed ones. Persisting the chosen category onto the
// transaction is a side effect owned by storage, not by this type.
type CategorizationResult struct {
	Err           error
	Category      string
	Method        Method
	CorrelationID string
	Alternatives  []Alternative
	PatternsUsed  []string
	Confidence    float64
	Elapsed       time.Duration
}

// Categorized reports whether a category was confidently assigned.
func (r *CategorizationResult) Categorized() bool {
	return r.Err == nil && r.Category != "" && r.Method != MethodNoMatch
}
