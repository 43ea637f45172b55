package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/ledgerline/categorizer/internal/common"
	"github.com/ledgerline/categorizer/internal/matching"
	"github.com/ledgerline/categorizer/internal/model"
)

const (
	// learnedPatternWeight is the starting confidence for a merchant
	// pattern created from a user correction.
	learnedPatternWeight = 0.6
	// patternWeightBoost is added to an existing pattern each time a
	// correction re-confirms it.
	patternWeightBoost = 0.05
)

// RecordFeedback applies explicit user feedback on a stored
// transaction's categorization. Every pattern that matched the
// transaction gets its usage counter bumped, with a success only when
// the feedback confirms its category. Corrections additionally teach a
// merchant pattern, refresh the account preference, rewrite the stored
// category, and every call appends an immutable learning event.
func (e *Engine) RecordFeedback(ctx context.Context, transactionID, category string, wasCorrect bool) error {
	if ctx == nil {
		return common.NewValidationError("context", "cannot be nil")
	}
	if transactionID == "" {
		return common.NewValidationError("transactionID", "cannot be empty")
	}
	if category == "" {
		return common.NewValidationError("category", "cannot be empty")
	}

	txn, err := e.storage.GetTransactionByID(ctx, transactionID)
	if err != nil {
		return fmt.Errorf("failed to load transaction: %w", err)
	}

	if _, err := e.storage.GetCategoryByName(ctx, category); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.NewValidationError("category", fmt.Sprintf("unknown category %q", category))
		}
		return fmt.Errorf("failed to look up category: %w", err)
	}

	strongest, err := e.creditMatchedPatterns(ctx, *txn, category, wasCorrect)
	if err != nil {
		return err
	}

	if err := e.learnFromFeedback(ctx, txn, category, wasCorrect); err != nil {
		return err
	}

	event := &model.LearningEvent{
		TransactionID:   txn.ID,
		Category:        category,
		WasCorrect:      wasCorrect,
		PatternUsed:     strongest,
		ConfidenceScore: txn.Confidence,
		Context: map[string]string{
			"merchant":    txn.MerchantName,
			"description": txn.Description,
			"amount":      strconv.FormatFloat(txn.Amount, 'f', 2, 64),
		},
	}
	if err := e.storage.SaveLearningEvent(ctx, event); err != nil {
		return fmt.Errorf("failed to save learning event: %w", err)
	}

	// A correction rewrites the stored category with full confidence.
	if !wasCorrect {
		if err := e.storage.ApplyCategorization(ctx, txn.ID, category, 1.0, model.MethodUserPreference); err != nil {
			return fmt.Errorf("failed to apply corrected category: %w", err)
		}
	}

	return nil
}

// creditMatchedPatterns re-evaluates the transaction against the active
// pattern store and records usage on every pattern that matches. Returns
// the name of the strongest matching pattern for the audit trail.
func (e *Engine) creditMatchedPatterns(ctx context.Context, txn model.Transaction, category string, wasCorrect bool) (string, error) {
	patterns, err := e.storage.GetActivePatterns(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load patterns: %w", err)
	}
	composites, err := e.storage.GetActiveCompositePatterns(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load composite patterns: %w", err)
	}

	var strongest string
	var strongestScore float64

	for i := range patterns {
		p := &patterns[i]
		if !e.matcher.Matches(p, txn) {
			continue
		}
		correct := wasCorrect && p.Category == category
		if err := e.storage.RecordPatternUsage(ctx, p.ID, correct); err != nil {
			return "", fmt.Errorf("failed to record pattern usage: %w", err)
		}
		if score := e.matcher.PatternConfidence(p); score > strongestScore {
			strongestScore = score
			strongest = p.Name()
		}
	}

	for i := range composites {
		cp := &composites[i]
		if !e.matcher.MatchesComposite(cp, txn) {
			continue
		}
		correct := wasCorrect && cp.Category == category
		if err := e.storage.RecordCompositePatternUsage(ctx, cp.ID, correct); err != nil {
			return "", fmt.Errorf("failed to record composite pattern usage: %w", err)
		}
		if score := e.matcher.CompositeConfidence(cp); score > strongestScore {
			strongestScore = score
			strongest = "composite:" + cp.Name
		}
	}

	return strongest, nil
}

// learnFromFeedback converts feedback into durable signals: the account
// preference is refreshed on every call, and a correction creates or
// strengthens a merchant pattern pointing at the chosen category.
func (e *Engine) learnFromFeedback(ctx context.Context, txn *model.Transaction, category string, wasCorrect bool) error {
	if txn.AccountID != "" && txn.MerchantName != "" {
		pref := &model.UserCategoryPreference{
			AccountID:    txn.AccountID,
			ContextType:  model.ContextMerchant,
			ContextValue: matching.Normalize(txn.MerchantName),
			Category:     category,
			Weight:       1.0,
		}
		if err := e.storage.UpsertPreference(ctx, pref); err != nil {
			return fmt.Errorf("failed to upsert preference: %w", err)
		}
	}

	if wasCorrect {
		return nil
	}

	value := matching.Normalize(txn.SearchText())
	if value == "" {
		return nil
	}

	existing, err := e.storage.FindPattern(ctx, model.PatternTypeMerchant, value, category)
	switch {
	case errors.Is(err, common.ErrNotFound):
		learned := &model.Pattern{
			Type:             model.PatternTypeMerchant,
			Value:            value,
			Category:         category,
			ConfidenceWeight: learnedPatternWeight,
			IsActive:         true,
			UserCreated:      true,
		}
		if err := e.storage.CreatePattern(ctx, learned); err != nil {
			return fmt.Errorf("failed to create learned pattern: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to look up learned pattern: %w", err)
	default:
		existing.ConfidenceWeight += patternWeightBoost
		if ceiling := e.config.Matcher.MaxWeight; ceiling > 0 && existing.ConfidenceWeight > ceiling {
			existing.ConfidenceWeight = ceiling
		}
		if !existing.IsActive {
			existing.IsActive = true
		}
		if err := e.storage.UpdatePattern(ctx, existing); err != nil {
			return fmt.Errorf("failed to strengthen learned pattern: %w", err)
		}
	}

	return nil
}
