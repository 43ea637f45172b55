package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ConflictStatus classifies an incoming record against an existing one.
type ConflictStatus string

// Conflict status constants.
const (
	// ConflictDuplicate means the candidate almost certainly repeats an
	// existing record (total score >= 90).
	ConflictDuplicate ConflictStatus = "duplicate"
	// ConflictSimilar means the candidate likely relates to an existing
	// record (total score >= 70).
	ConflictSimilar ConflictStatus = "similar"
	// ConflictUpdated means the candidate resembles an existing record
	// but its raw content changed.
	ConflictUpdated ConflictStatus = "updated"
	// ConflictNeedsReview means no automatic classification applied.
	ConflictNeedsReview ConflictStatus = "needs_review"
)

// ConflictCandidate carries the fields of an incoming record checked
// against existing transactions during ingestion.
type ConflictCandidate struct {
	Date         time.Time
	AccountID    string
	MerchantName string
	Description  string
	Currency     string
	Hash         string
	Amount       decimal.Decimal
}

// Conflict is the outcome of duplicate detection for one candidate.
// Scores are on a 0-100 scale; Breakdown holds per-field sub-scores
// already multiplied by their weights.
type Conflict struct {
	Breakdown     map[string]float64
	ExistingID    string
	Status        ConflictStatus
	Score         float64
}
