package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/categorizer/internal/common"
	"github.com/ledgerline/categorizer/internal/model"
	"github.com/ledgerline/categorizer/internal/service"
	"github.com/ledgerline/categorizer/internal/storage"
)

func newTestStorage(t *testing.T) service.Storage {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestEngine(t *testing.T, config Config) (*Engine, service.Storage) {
	t.Helper()
	store := newTestStorage(t)
	return New(store, config), store
}

func seedCategory(t *testing.T, store service.Storage, name string) *model.Category {
	t.Helper()
	cat, err := store.CreateCategory(context.Background(), name, "")
	require.NoError(t, err)
	return cat
}

func seedPattern(t *testing.T, store service.Storage, patternType model.PatternType, value, category string, weight float64) *model.Pattern {
	t.Helper()
	p := &model.Pattern{
		Type:             patternType,
		Value:            value,
		Category:         category,
		ConfidenceWeight: weight,
		IsActive:         true,
	}
	require.NoError(t, store.CreatePattern(context.Background(), p))
	return p
}

func testTransaction(id, merchant string) model.Transaction {
	return model.Transaction{
		ID:           id,
		AccountID:    "acct-1",
		MerchantName: merchant,
		Amount:       12.50,
		Currency:     "USD",
		Date:         time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
	}
}

func TestCategorize_PatternMatch(t *testing.T) {
	eng, store := newTestEngine(t, DefaultConfig())
	ctx := context.Background()

	seedCategory(t, store, "Dining")
	seedPattern(t, store, model.PatternTypeMerchant, "starbucks", "Dining", 0.8)

	txn := testTransaction("t1", "STARBUCKS #1234")
	require.NoError(t, store.SaveTransactions(ctx, []model.Transaction{txn}))

	result := eng.Categorize(ctx, txn, Options{})

	require.NoError(t, result.Err)
	assert.True(t, result.Categorized())
	assert.Equal(t, "Dining", result.Category)
	assert.Equal(t, model.MethodPattern, result.Method)
	assert.InDelta(t, 0.8, result.Confidence, 1e-9)
	assert.Contains(t, result.PatternsUsed, "merchant:starbucks")
	assert.NotEmpty(t, result.CorrelationID)
	assert.Greater(t, result.Elapsed, time.Duration(0))

	// The decision is written back onto the stored transaction.
	stored, err := store.GetTransactionByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "Dining", stored.Category)
	assert.Equal(t, model.MethodPattern, stored.Method)
	assert.NotNil(t, stored.CategorizedAt)
}

func TestCategorize_PreferenceOutranksPattern(t *testing.T) {
	eng, store := newTestEngine(t, DefaultConfig())
	ctx := context.Background()

	seedCategory(t, store, "Dining")
	seedCategory(t, store, "Coffee")
	seedPattern(t, store, model.PatternTypeMerchant, "starbucks", "Dining", 0.9)

	require.NoError(t, store.UpsertPreference(ctx, &model.UserCategoryPreference{
		AccountID:    "acct-1",
		ContextType:  model.ContextMerchant,
		ContextValue: "starbucks",
		Category:     "Coffee",
		Weight:       1.0,
	}))

	result := eng.Categorize(ctx, testTransaction("t1", "Starbucks"), Options{})

	require.NoError(t, result.Err)
	assert.Equal(t, "Coffee", result.Category)
	assert.Equal(t, model.MethodUserPreference, result.Method)
	assert.InDelta(t, 0.75, result.Confidence, 1e-9)
}

func TestCategorize_NoMatch(t *testing.T) {
	eng, store := newTestEngine(t, DefaultConfig())
	ctx := context.Background()

	seedCategory(t, store, "Dining")
	seedPattern(t, store, model.PatternTypeMerchant, "starbucks", "Dining", 0.8)

	result := eng.Categorize(ctx, testTransaction("t1", "Unrelated Hardware Store"), Options{})

	require.NoError(t, result.Err)
	assert.False(t, result.Categorized())
	assert.Empty(t, result.Category)
	assert.Equal(t, model.MethodNoMatch, result.Method)
}

func TestCategorize_BelowThreshold(t *testing.T) {
	eng, store := newTestEngine(t, DefaultConfig())
	ctx := context.Background()

	seedCategory(t, store, "Dining")
	seedPattern(t, store, model.PatternTypeMerchant, "starbucks", "Dining", 0.3)

	result := eng.Categorize(ctx, testTransaction("t1", "Starbucks"), Options{})

	require.NoError(t, result.Err)
	assert.Equal(t, model.MethodNoMatch, result.Method)
}

func TestCategorize_CorroborationBoost(t *testing.T) {
	eng, store := newTestEngine(t, DefaultConfig())
	ctx := context.Background()

	seedCategory(t, store, "Dining")
	seedPattern(t, store, model.PatternTypeMerchant, "starbucks", "Dining", 0.6)
	seedPattern(t, store, model.PatternTypeKeyword, "coffee", "Dining", 0.6)

	result := eng.Categorize(ctx, testTransaction("t1", "Starbucks Coffee"), Options{})

	require.NoError(t, result.Err)
	assert.Equal(t, "Dining", result.Category)
	// Strongest match plus 10% of the corroborating one.
	assert.InDelta(t, 0.66, result.Confidence, 1e-9)
	assert.Len(t, result.PatternsUsed, 2)
}

func TestCategorize_FuzzyMerchantMatch(t *testing.T) {
	eng, store := newTestEngine(t, DefaultConfig())
	ctx := context.Background()

	seedCategory(t, store, "Dining")
	seedPattern(t, store, model.PatternTypeMerchant, "starbucks coffee", "Dining", 0.9)

	// A typo in the merchant misses the substring match but stays
	// within fuzzy range.
	result := eng.Categorize(ctx, testTransaction("t1", "Starbucks Cofee"), Options{})

	require.NoError(t, result.Err)
	assert.Equal(t, "Dining", result.Category)
	assert.Equal(t, model.MethodFuzzy, result.Method)
	assert.InDelta(t, 0.9*(1.0-1.0/16.0), result.Confidence, 1e-9)
	assert.Contains(t, result.PatternsUsed, "fuzzy:merchant:starbucks coffee")
}

func TestCategorize_SourceHint(t *testing.T) {
	config := DefaultConfig()
	config.HintWeight = 0.6
	eng, store := newTestEngine(t, config)
	ctx := context.Background()

	cat := seedCategory(t, store, "Groceries")
	txn := testTransaction("t1", "Corner Market")
	txn.CategoryID = &cat.ID

	result := eng.Categorize(ctx, txn, Options{})

	require.NoError(t, result.Err)
	assert.Equal(t, "Groceries", result.Category)
	assert.Equal(t, model.MethodSourceHint, result.Method)
	assert.InDelta(t, 0.6, result.Confidence, 1e-9)
}

func TestCategorize_Alternatives(t *testing.T) {
	eng, store := newTestEngine(t, DefaultConfig())
	ctx := context.Background()

	seedCategory(t, store, "Dining")
	seedCategory(t, store, "Coffee")
	seedPattern(t, store, model.PatternTypeMerchant, "starbucks", "Dining", 0.8)
	seedPattern(t, store, model.PatternTypeKeyword, "starbucks", "Coffee", 0.6)

	result := eng.Categorize(ctx, testTransaction("t1", "Starbucks"), Options{})

	require.NoError(t, result.Err)
	assert.Equal(t, "Dining", result.Category)
	require.Len(t, result.Alternatives, 1)
	assert.Equal(t, "Coffee", result.Alternatives[0].Category)
	assert.InDelta(t, 0.6, result.Alternatives[0].Confidence, 1e-9)
}

func TestCategorize_ValidationError(t *testing.T) {
	eng, _ := newTestEngine(t, DefaultConfig())

	result := eng.Categorize(context.Background(), model.Transaction{}, Options{})

	require.Error(t, result.Err)
	assert.True(t, common.IsValidation(result.Err))
	assert.Equal(t, model.MethodError, result.Method)
	assert.NotEmpty(t, result.CorrelationID)
}

func TestCategorize_CorrelationIDPropagated(t *testing.T) {
	eng, _ := newTestEngine(t, DefaultConfig())

	result := eng.Categorize(context.Background(), testTransaction("t1", "Anything"), Options{CorrelationID: "req-42"})
	assert.Equal(t, "req-42", result.CorrelationID)
}

// flakyStorage injects failures on pattern loads to exercise the
// matching circuit. Calls counts every load attempt; the first
// Failures of them fail.
type flakyStorage struct {
	service.Storage
	Calls    int
	Failures int
}

func (f *flakyStorage) GetActivePatterns(ctx context.Context) ([]model.Pattern, error) {
	f.Calls++
	if f.Calls <= f.Failures {
		return nil, errors.New("disk offline")
	}
	return f.Storage.GetActivePatterns(ctx)
}

func fastRetry() service.RetryOptions {
	return service.RetryOptions{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestCategorize_RetriesTransientFailures(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	seedCategory(t, store, "Dining")
	seedPattern(t, store, model.PatternTypeMerchant, "starbucks", "Dining", 0.8)

	flaky := &flakyStorage{Storage: store, Failures: 1}
	config := DefaultConfig()
	config.Retry = fastRetry()
	eng := New(flaky, config)

	// One transient load failure is absorbed by the retry cycle and
	// never surfaces on the result.
	result := eng.Categorize(ctx, testTransaction("t1", "Starbucks"), Options{})

	require.NoError(t, result.Err)
	assert.Equal(t, "Dining", result.Category)
	assert.Equal(t, 2, flaky.Calls)
}

func TestCategorize_RetriesExhaustedSurfaceError(t *testing.T) {
	store := newTestStorage(t)

	flaky := &flakyStorage{Storage: store, Failures: 100}
	config := DefaultConfig()
	config.Retry = fastRetry()
	eng := New(flaky, config)

	result := eng.Categorize(context.Background(), testTransaction("t1", "Starbucks"), Options{})

	require.Error(t, result.Err)
	assert.ErrorIs(t, result.Err, common.ErrMaxRetries)
	assert.Equal(t, model.MethodError, result.Method)
	assert.Equal(t, 2, flaky.Calls)
}

func TestCategorize_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	store := newTestStorage(t)
	flaky := &flakyStorage{Storage: store, Failures: 1000}

	config := DefaultConfig()
	config.Breaker.FailureThreshold = 3
	config.Retry = fastRetry()
	eng := New(flaky, config)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result := eng.Categorize(ctx, testTransaction(fmt.Sprintf("t%d", i), "Starbucks"), Options{})
		require.Error(t, result.Err)
		assert.Equal(t, model.MethodError, result.Method)
		assert.False(t, errors.Is(result.Err, common.ErrCircuitOpen))
	}

	// The circuit is now open and fails fast without touching storage.
	result := eng.Categorize(ctx, testTransaction("t9", "Starbucks"), Options{})
	require.Error(t, result.Err)
	assert.ErrorIs(t, result.Err, common.ErrCircuitOpen)
}

func TestBatchCategorize_ParallelMatchesSequential(t *testing.T) {
	eng, store := newTestEngine(t, DefaultConfig())
	ctx := context.Background()

	seedCategory(t, store, "Dining")
	seedCategory(t, store, "Groceries")
	seedPattern(t, store, model.PatternTypeMerchant, "starbucks", "Dining", 0.8)
	seedPattern(t, store, model.PatternTypeMerchant, "whole foods", "Groceries", 0.85)

	var txns []model.Transaction
	for i := 0; i < 12; i++ {
		merchant := "Starbucks"
		if i%2 == 1 {
			merchant = "Whole Foods Market"
		}
		txns = append(txns, testTransaction(fmt.Sprintf("t%d", i), merchant))
	}

	sequential := eng.BatchCategorize(ctx, txns, BatchOptions{})
	parallel := eng.BatchCategorize(ctx, txns, BatchOptions{Parallel: true, MaxWorkers: 4})

	require.Len(t, sequential, len(txns))
	require.Len(t, parallel, len(txns))
	for i := range txns {
		require.NoError(t, sequential[i].Err)
		assert.Equal(t, sequential[i].Category, parallel[i].Category, "index %d", i)
		assert.Equal(t, sequential[i].Method, parallel[i].Method, "index %d", i)
		assert.InDelta(t, sequential[i].Confidence, parallel[i].Confidence, 1e-9, "index %d", i)
	}

	assert.Equal(t, "Dining", sequential[0].Category)
	assert.Equal(t, "Groceries", sequential[1].Category)
}

func TestBatchCategorize_DerivedCorrelationIDs(t *testing.T) {
	eng, _ := newTestEngine(t, DefaultConfig())

	txns := []model.Transaction{
		testTransaction("t0", "One"),
		testTransaction("t1", "Two"),
	}

	results := eng.BatchCategorize(context.Background(), txns, BatchOptions{CorrelationID: "batch-7"})

	require.Len(t, results, 2)
	assert.Equal(t, "batch-7-0000", results[0].CorrelationID)
	assert.Equal(t, "batch-7-0001", results[1].CorrelationID)
}

func TestBatchCategorize_Empty(t *testing.T) {
	eng, _ := newTestEngine(t, DefaultConfig())
	results := eng.BatchCategorize(context.Background(), nil, BatchOptions{Parallel: true})
	assert.Empty(t, results)
}

func TestRecordFeedback_Correction(t *testing.T) {
	eng, store := newTestEngine(t, DefaultConfig())
	ctx := context.Background()

	seedCategory(t, store, "Dining")
	seedCategory(t, store, "Coffee")
	pattern := seedPattern(t, store, model.PatternTypeMerchant, "starbucks", "Dining", 0.8)

	txn := testTransaction("t1", "Starbucks")
	require.NoError(t, store.SaveTransactions(ctx, []model.Transaction{txn}))
	result := eng.Categorize(ctx, txn, Options{})
	require.Equal(t, "Dining", result.Category)

	require.NoError(t, eng.RecordFeedback(ctx, "t1", "Coffee", false))

	// The matched pattern is credited with a use but no success.
	got, err := store.GetPattern(ctx, pattern.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.UsageCount)
	assert.Zero(t, got.SuccessCount)

	// The correction teaches a merchant pattern for the chosen category.
	learned, err := store.FindPattern(ctx, model.PatternTypeMerchant, "starbucks", "Coffee")
	require.NoError(t, err)
	assert.True(t, learned.UserCreated)
	assert.InDelta(t, 0.6, learned.ConfidenceWeight, 1e-9)

	// The account preference now points at the corrected category.
	pref, err := store.GetPreference(ctx, "acct-1", model.ContextMerchant, "starbucks")
	require.NoError(t, err)
	assert.Equal(t, "Coffee", pref.Category)

	// The stored transaction is rewritten with full confidence.
	stored, err := store.GetTransactionByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "Coffee", stored.Category)
	assert.InDelta(t, 1.0, stored.Confidence, 1e-9)

	// The feedback leaves an immutable audit record.
	events, err := store.GetLearningEventsByTransaction(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].WasCorrect)
	assert.Equal(t, "Coffee", events[0].Category)
	assert.Equal(t, "merchant:starbucks", events[0].PatternUsed)

	// Subsequent categorizations follow the learned preference.
	next := eng.Categorize(ctx, testTransaction("t2", "Starbucks"), Options{})
	assert.Equal(t, "Coffee", next.Category)
	assert.Equal(t, model.MethodUserPreference, next.Method)
}

func TestRecordFeedback_Confirmation(t *testing.T) {
	eng, store := newTestEngine(t, DefaultConfig())
	ctx := context.Background()

	seedCategory(t, store, "Dining")
	pattern := seedPattern(t, store, model.PatternTypeMerchant, "starbucks", "Dining", 0.8)

	txn := testTransaction("t1", "Starbucks")
	require.NoError(t, store.SaveTransactions(ctx, []model.Transaction{txn}))
	eng.Categorize(ctx, txn, Options{})

	require.NoError(t, eng.RecordFeedback(ctx, "t1", "Dining", true))

	got, err := store.GetPattern(ctx, pattern.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.UsageCount)
	assert.Equal(t, 1, got.SuccessCount)

	events, err := store.GetLearningEventsByTransaction(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].WasCorrect)
}

func TestRecordFeedback_UnknownCategory(t *testing.T) {
	eng, store := newTestEngine(t, DefaultConfig())
	ctx := context.Background()

	txn := testTransaction("t1", "Starbucks")
	require.NoError(t, store.SaveTransactions(ctx, []model.Transaction{txn}))

	err := eng.RecordFeedback(ctx, "t1", "Nope", false)
	require.Error(t, err)
	assert.True(t, common.IsValidation(err))
}

func TestRecordFeedback_MissingTransaction(t *testing.T) {
	eng, _ := newTestEngine(t, DefaultConfig())

	err := eng.RecordFeedback(context.Background(), "missing", "Dining", true)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()
	ctx := context.Background()

	eng, err := registry.Open(ctx, "default", ":memory:", DefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, eng)

	again, err := registry.Open(ctx, "default", ":memory:", DefaultConfig())
	require.NoError(t, err)
	assert.Same(t, eng, again)

	got, ok := registry.Get("default")
	require.True(t, ok)
	assert.Same(t, eng, got)

	require.NoError(t, registry.Close())
	_, ok = registry.Get("default")
	assert.False(t, ok)
}
