package model

import "time"

// LearningEvent is an immutable audit record created on every feedback
// submission. Events are never updated or deleted.
type LearningEvent struct {
	CreatedAt       time.Time
	TransactionID   string
	Category        string
	PatternUsed     string
	Context         map[string]string
	ID              int64
	ConfidenceScore float64
	WasCorrect      bool
}
