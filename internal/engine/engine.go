// Package engine orchestrates transaction categorization. It combines
// user preferences, stored patterns, composite rules, fuzzy merchant
// matching and source hints into a single confidence-scored decision,
// and feeds explicit user feedback back into the pattern store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerline/categorizer/internal/breaker"
	"github.com/ledgerline/categorizer/internal/common"
	"github.com/ledgerline/categorizer/internal/matching"
	"github.com/ledgerline/categorizer/internal/model"
	"github.com/ledgerline/categorizer/internal/service"
)

// maxAlternatives caps the runner-up categories attached to a result.
const maxAlternatives = 2

// Config holds the tunable behavior of the categorization engine.
type Config struct {
	// MinConfidence is the acceptance threshold; a combined score below
	// it yields a no-match result instead of a categorization.
	MinConfidence float64
	// CorroborationBoost is the fraction of each additional match's
	// score credited when independent signals agree on a category.
	CorroborationBoost float64
	// FuzzyMinSimilarity is the edit-distance similarity a merchant
	// pattern must reach to count as a fuzzy match.
	FuzzyMinSimilarity float64
	// HintWeight is the score granted to a category hint carried on the
	// record itself. Zero disables hint scoring.
	HintWeight float64
	// MaxWorkers bounds batch parallelism.
	MaxWorkers int
	// ParallelThreshold is the batch size below which records are
	// processed sequentially even when parallelism is requested.
	ParallelThreshold int

	// Retry bounds the backoff applied to transient storage failures
	// inside each circuit-protected call.
	Retry service.RetryOptions

	Matcher matching.MatcherConfig
	Breaker breaker.Config
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		MinConfidence:      0.5,
		CorroborationBoost: matching.DefaultCorroborationBoost,
		FuzzyMinSimilarity: 0.85,
		HintWeight:         0.3,
		MaxWorkers:         4,
		ParallelThreshold:  10,
		Retry: service.RetryOptions{
			MaxAttempts:  2,
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     time.Second,
			Multiplier:   2.0,
		},
		Matcher: matching.DefaultMatcherConfig(),
		Breaker: breaker.DefaultConfig(),
	}
}

// Engine categorizes transactions against the pattern store. Safe for
// concurrent use; batch workers share the matcher and both breakers.
type Engine struct {
	storage        service.Storage
	matcher        *matching.Matcher
	matchBreaker   *breaker.Breaker
	persistBreaker *breaker.Breaker
	config         Config
}

// New creates a categorization engine backed by the given storage.
// Zero config fields fall back to defaults.
func New(storage service.Storage, config Config) *Engine {
	defaults := DefaultConfig()
	if config.MinConfidence <= 0 {
		config.MinConfidence = defaults.MinConfidence
	}
	if config.CorroborationBoost <= 0 {
		config.CorroborationBoost = defaults.CorroborationBoost
	}
	if config.FuzzyMinSimilarity <= 0 {
		config.FuzzyMinSimilarity = defaults.FuzzyMinSimilarity
	}
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = defaults.MaxWorkers
	}
	if config.ParallelThreshold <= 0 {
		config.ParallelThreshold = defaults.ParallelThreshold
	}
	if config.Retry.MaxAttempts <= 0 {
		config.Retry = defaults.Retry
	}

	return &Engine{
		storage:        storage,
		matcher:        matching.NewMatcher(config.Matcher),
		matchBreaker:   breaker.New("pattern-matching", config.Breaker),
		persistBreaker: breaker.New("categorization-persist", config.Breaker),
		config:         config,
	}
}

// Options adjusts a single categorize call.
type Options struct {
	// CorrelationID tags logs and the result; generated when empty.
	CorrelationID string
}

// Categorize runs the full decision chain for one transaction: account
// preference first, then pattern, composite, fuzzy and hint signals
// combined per category. The result always carries the elapsed time and
// correlation id, even on failure.
func (e *Engine) Categorize(ctx context.Context, txn model.Transaction, opts Options) model.CategorizationResult {
	correlationID := opts.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	return e.categorize(ctx, txn, correlationID, nil)
}

func (e *Engine) categorize(ctx context.Context, txn model.Transaction, correlationID string, categories map[int]model.Category) (result model.CategorizationResult) {
	start := time.Now()
	logger := common.WithCorrelation(correlationID)

	result = model.CategorizationResult{
		CorrelationID: correlationID,
		Method:        model.MethodNoMatch,
	}
	defer func() { result.Elapsed = time.Since(start) }()

	if err := validateInput(ctx, txn); err != nil {
		result.Err = err
		result.Method = model.MethodError
		return result
	}

	// An explicit account preference outranks every generic signal.
	if pref := e.lookupPreference(ctx, logger, txn); pref != nil {
		result.Category = pref.Category
		result.Confidence = pref.Confidence()
		result.Method = model.MethodUserPreference
		result.PatternsUsed = []string{"preference:" + pref.ContextValue}
		e.persist(ctx, logger, txn.ID, &result)
		return result
	}

	candidates, err := e.collectCandidates(ctx, txn, categories)
	if err != nil {
		logger.Error("Categorization failed",
			"transaction_id", txn.ID,
			"error", err)
		result.Err = err
		result.Method = model.MethodError
		return result
	}

	combined := matching.Combine(candidates, e.config.CorroborationBoost)
	if len(combined) == 0 || combined[0].Score < e.config.MinConfidence {
		logger.Debug("No confident match",
			"transaction_id", txn.ID,
			"candidates", len(combined))
		return result
	}

	top := combined[0]
	result.Category = top.Category
	result.Confidence = top.Score
	result.Method = top.Method
	result.PatternsUsed = top.PatternsUsed
	for _, alt := range combined[1:] {
		result.Alternatives = append(result.Alternatives, model.Alternative{
			Category:   alt.Category,
			Confidence: alt.Score,
		})
		if len(result.Alternatives) == maxAlternatives {
			break
		}
	}

	e.persist(ctx, logger, txn.ID, &result)
	return result
}

// lookupPreference returns the account's learned preference for the
// transaction's merchant, or nil when none applies. Lookup failures are
// logged and fall through to pattern matching.
func (e *Engine) lookupPreference(ctx context.Context, logger *slog.Logger, txn model.Transaction) *model.UserCategoryPreference {
	if txn.AccountID == "" || txn.MerchantName == "" {
		return nil
	}

	pref, err := e.storage.GetPreference(ctx, txn.AccountID, model.ContextMerchant, matching.Normalize(txn.MerchantName))
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			logger.Warn("Preference lookup failed",
				"account_id", txn.AccountID,
				"error", err)
		}
		return nil
	}
	return pref
}

// collectCandidates loads the active pattern store and scores the
// transaction against it. The load and match run through the matching
// circuit so storage outages fail fast instead of cascading; transient
// failures get one bounded-backoff retry cycle before counting against
// the circuit.
func (e *Engine) collectCandidates(ctx context.Context, txn model.Transaction, categories map[int]model.Category) ([]model.MatchCandidate, error) {
	var candidates []model.MatchCandidate

	err := e.matchBreaker.Execute(func() error {
		return common.WithRetry(ctx, func() error {
			patterns, err := e.storage.GetActivePatterns(ctx)
			if err != nil {
				return common.NewTransientError(fmt.Errorf("failed to load patterns: %w", err))
			}
			composites, err := e.storage.GetActiveCompositePatterns(ctx)
			if err != nil {
				return common.NewTransientError(fmt.Errorf("failed to load composite patterns: %w", err))
			}

			candidates = e.scoreCandidates(ctx, txn, patterns, composites, categories)
			return nil
		}, e.config.Retry)
	})
	if err != nil {
		return nil, err
	}
	return candidates, nil
}

func (e *Engine) scoreCandidates(ctx context.Context, txn model.Transaction, patterns []model.Pattern, composites []model.CompositePattern, categories map[int]model.Category) []model.MatchCandidate {
	search := matching.Normalize(txn.SearchText())

	var candidates []model.MatchCandidate
	for i := range patterns {
		p := &patterns[i]
		if e.matcher.Matches(p, txn) {
			candidates = append(candidates, model.MatchCandidate{
				Category:     p.Category,
				Method:       model.MethodPattern,
				PatternsUsed: []string{p.Name()},
				Score:        e.matcher.PatternConfidence(p),
			})
			continue
		}

		// Near-miss merchant patterns still count, discounted by their
		// edit distance from the observed merchant.
		if p.Type == model.PatternTypeMerchant && search != "" {
			sim := matching.Similarity(search, matching.Normalize(p.Value), false)
			if sim >= e.config.FuzzyMinSimilarity {
				candidates = append(candidates, model.MatchCandidate{
					Category:     p.Category,
					Method:       model.MethodFuzzy,
					PatternsUsed: []string{"fuzzy:" + p.Name()},
					Score:        e.matcher.PatternConfidence(p) * sim,
				})
			}
		}
	}

	for i := range composites {
		cp := &composites[i]
		if e.matcher.MatchesComposite(cp, txn) {
			candidates = append(candidates, model.MatchCandidate{
				Category:     cp.Category,
				Method:       model.MethodComposite,
				PatternsUsed: []string{"composite:" + cp.Name},
				Score:        e.matcher.CompositeConfidence(cp),
			})
		}
	}

	if hint := e.hintCandidate(ctx, txn, categories); hint != nil {
		candidates = append(candidates, *hint)
	}
	return candidates
}

// hintCandidate scores a category id carried on the record itself, such
// as a category assigned by the upstream source. Best effort: unknown
// or inactive categories contribute nothing.
func (e *Engine) hintCandidate(ctx context.Context, txn model.Transaction, categories map[int]model.Category) *model.MatchCandidate {
	if txn.CategoryID == nil || e.config.HintWeight <= 0 {
		return nil
	}

	var category *model.Category
	if categories != nil {
		if c, ok := categories[*txn.CategoryID]; ok {
			category = &c
		}
	} else if c, err := e.storage.GetCategoryByID(ctx, *txn.CategoryID); err == nil {
		category = c
	}

	if category == nil || !category.IsActive {
		return nil
	}
	return &model.MatchCandidate{
		Category:     category.Name,
		Method:       model.MethodSourceHint,
		PatternsUsed: []string{"hint:category_id"},
		Score:        e.config.HintWeight,
	}
}

// persist writes the decision back onto the stored transaction through
// the persistence circuit. The decision stands even when the write-back
// fails; transactions that were never stored are skipped silently.
func (e *Engine) persist(ctx context.Context, logger *slog.Logger, transactionID string, result *model.CategorizationResult) {
	err := e.persistBreaker.Execute(func() error {
		return common.WithRetry(ctx, func() error {
			err := e.storage.ApplyCategorization(ctx, transactionID, result.Category, result.Confidence, result.Method)
			if err == nil || errors.Is(err, common.ErrNotFound) {
				return nil
			}
			return common.NewTransientError(fmt.Errorf("failed to persist categorization: %w", err))
		}, e.config.Retry)
	})
	if err != nil {
		logger.Warn("Categorization not persisted",
			"transaction_id", transactionID,
			"error", err)
		result.Err = err
	}
}

func validateInput(ctx context.Context, txn model.Transaction) error {
	if ctx == nil {
		return common.NewValidationError("context", "cannot be nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if txn.ID == "" {
		return common.NewValidationError("transaction.id", "cannot be empty")
	}
	return nil
}
