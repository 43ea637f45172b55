// Package conflict detects duplicate and near-duplicate transactions
// during ingestion by scoring incoming records against stored ones.
package conflict

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/categorizer/internal/common"
	"github.com/ledgerline/categorizer/internal/matching"
	"github.com/ledgerline/categorizer/internal/model"
	"github.com/ledgerline/categorizer/internal/service"
)

// Field weights. Weighted sub-scores sum to a 0-100 total.
const (
	weightAmount      = 35.0
	weightDate        = 25.0
	weightMerchant    = 20.0
	weightDescription = 10.0
	weightCurrency    = 10.0
)

// Config bounds the candidate search and classification thresholds.
type Config struct {
	// WindowDays is the date radius of the pre-filter.
	WindowDays int
	// DuplicateThreshold and SimilarThreshold classify the total score.
	DuplicateThreshold float64
	SimilarThreshold   float64
}

// DefaultConfig returns the default conflict detection configuration.
func DefaultConfig() Config {
	return Config{
		WindowDays:         3,
		DuplicateThreshold: 90,
		SimilarThreshold:   70,
	}
}

// Detector scores incoming records against stored transactions on the
// same account.
type Detector struct {
	storage service.Storage
	config  Config
}

// New creates a conflict detector backed by the given storage.
func New(storage service.Storage, config Config) *Detector {
	defaults := DefaultConfig()
	if config.WindowDays <= 0 {
		config.WindowDays = defaults.WindowDays
	}
	if config.DuplicateThreshold <= 0 {
		config.DuplicateThreshold = defaults.DuplicateThreshold
	}
	if config.SimilarThreshold <= 0 {
		config.SimilarThreshold = defaults.SimilarThreshold
	}
	return &Detector{storage: storage, config: config}
}

// CandidateFromTransaction builds a conflict candidate from a parsed
// transaction record.
func CandidateFromTransaction(txn model.Transaction) model.ConflictCandidate {
	hash := txn.Hash
	if hash == "" {
		hash = txn.GenerateHash()
	}
	return model.ConflictCandidate{
		Date:         txn.Date,
		AccountID:    txn.AccountID,
		MerchantName: txn.MerchantName,
		Description:  txn.Description,
		Currency:     txn.Currency,
		Hash:         hash,
		Amount:       decimal.NewFromFloat(txn.Amount),
	}
}

// Check scores the candidate against stored transactions on the same
// account within the date window. Returns nil when nothing plausibly
// conflicts. When several records conflict the best-scoring one wins;
// ties go to the earliest existing record.
func (d *Detector) Check(ctx context.Context, candidate model.ConflictCandidate) (*model.Conflict, error) {
	if candidate.AccountID == "" {
		return nil, common.NewValidationError("accountID", "cannot be empty")
	}
	if candidate.Date.IsZero() {
		return nil, common.NewValidationError("date", "cannot be zero")
	}

	nearby, err := d.storage.FindNearbyTransactions(ctx, candidate.AccountID, candidate.Date, d.config.WindowDays)
	if err != nil {
		return nil, fmt.Errorf("failed to find nearby transactions: %w", err)
	}

	var best *model.Conflict
	for i := range nearby {
		existing := &nearby[i]

		amount := amountScore(candidate.Amount, decimal.NewFromFloat(existing.Amount))
		// Amounts more than 10% apart never conflict.
		if amount == 0 {
			continue
		}

		date := dateScore(candidate.Date, existing.Date)
		merchant := matching.Similarity(candidate.MerchantName, existing.MerchantName, true) * 100
		description := matching.Similarity(candidate.Description, existing.Description, true) * 100
		currency := currencyScore(candidate.Currency, existing.Currency)

		breakdown := map[string]float64{
			"amount":      amount * weightAmount / 100,
			"date":        date * weightDate / 100,
			"merchant":    merchant * weightMerchant / 100,
			"description": description * weightDescription / 100,
			"currency":    currency * weightCurrency / 100,
		}
		total := 0.0
		for _, v := range breakdown {
			total += v
		}

		// Nearby rows are ordered oldest first, so a strictly-greater
		// comparison keeps the earliest record on ties.
		if best != nil && total <= best.Score {
			continue
		}
		best = &model.Conflict{
			Breakdown:  breakdown,
			ExistingID: existing.ID,
			Score:      total,
			Status:     d.classify(total, amount, date, candidate.Hash, existing.Hash),
		}
	}

	return best, nil
}

// CheckBatch checks each candidate independently. The returned slice
// has one entry per input; nil means no conflict for that candidate.
func (d *Detector) CheckBatch(ctx context.Context, candidates []model.ConflictCandidate) ([]*model.Conflict, error) {
	conflicts := make([]*model.Conflict, len(candidates))
	for i, candidate := range candidates {
		conflict, err := d.Check(ctx, candidate)
		if err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}
		conflicts[i] = conflict
	}
	return conflicts, nil
}

// classify maps a total score to a status. Below the similar floor, a
// record whose amount and date still line up exactly is treated as an
// upstream edit of the same transaction rather than an unknown.
func (d *Detector) classify(total, amount, date float64, candidateHash, existingHash string) model.ConflictStatus {
	switch {
	case total >= d.config.DuplicateThreshold:
		return model.ConflictDuplicate
	case total >= d.config.SimilarThreshold:
		return model.ConflictSimilar
	case amount == 100 && date == 100 && candidateHash != existingHash:
		return model.ConflictUpdated
	default:
		return model.ConflictNeedsReview
	}
}

// amountScore bands the relative difference between two amounts.
// Decimal arithmetic keeps cent-level differences exact.
func amountScore(candidate, existing decimal.Decimal) float64 {
	if candidate.Equal(existing) {
		return 100
	}

	base := candidate.Abs()
	if base.IsZero() {
		base = existing.Abs()
	}
	if base.IsZero() {
		return 0
	}

	ratio, _ := candidate.Sub(existing).Abs().Div(base).Float64()
	switch {
	case ratio <= 0.01:
		return 90
	case ratio <= 0.05:
		return 70
	case ratio <= 0.10:
		return 50
	default:
		return 0
	}
}

// dateScore bands the calendar-day distance between two dates.
func dateScore(a, b time.Time) float64 {
	days := daysApart(a, b)
	switch {
	case days == 0:
		return 100
	case days == 1:
		return 80
	case days == 2:
		return 60
	case days == 3:
		return 40
	default:
		return 0
	}
}

func daysApart(a, b time.Time) int {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)

	days := int(da.Sub(db).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}

func currencyScore(a, b string) float64 {
	if strings.EqualFold(a, b) {
		return 100
	}
	return 0
}
