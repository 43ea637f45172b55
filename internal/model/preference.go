package model

import "time"

// PreferenceContext identifies what a user preference keys on.
type PreferenceContext string

// Preference context constants.
const (
	ContextMerchant    PreferenceContext = "merchant"
	ContextDescription PreferenceContext = "description"
)

// UserCategoryPreference is a per-account override learned from repeated
// explicit category choices. Consulted before generic patterns and never
// auto-deleted.
type UserCategoryPreference struct {
	CreatedAt    time.Time
	UpdatedAt    time.Time
	AccountID    string
	ContextType  PreferenceContext
	ContextValue string
	Category     string
	ID           int64
	UsageCount   int
	Weight       float64
}

// Confidence derives a 0-1 confidence from repeated use. Each observed
// choice raises confidence toward the weight ceiling.
func (p *UserCategoryPreference) Confidence() float64 {
	base := 0.7 + 0.05*float64(p.UsageCount)
	if base > p.Weight {
		base = p.Weight
	}
	if base > 1 {
		base = 1
	}
	return base
}
