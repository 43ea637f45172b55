// Package model defines the core data structures for the categorizer.
package model

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// Transaction represents a single financial transaction from any source.
type Transaction struct {
	Date          time.Time
	CategorizedAt *time.Time
	CategoryID    *int
	ID            string
	AccountID     string
	MerchantName  string // Cleaned merchant name
	Description   string // Raw transaction description
	Currency      string
	Hash          string

	// Categorization outcome, written back after a successful run.
	Category   string
	Method     Method
	Amount     float64
	Confidence float64
}

// GenerateHash creates a unique hash for duplicate detection.
func (t *Transaction) GenerateHash() string {
	data := fmt.Sprintf("%s:%.2f:%s:%s",
		t.Date.Format("2006-01-02"),
		t.Amount,
		t.MerchantName,
		t.AccountID)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// SearchText returns the text used for pattern and fuzzy matching.
func (t *Transaction) SearchText() string {
	if t.MerchantName != "" {
		return t.MerchantName
	}
	return t.Description
}
