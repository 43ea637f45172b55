package conflict

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/categorizer/internal/common"
	"github.com/ledgerline/categorizer/internal/model"
	"github.com/ledgerline/categorizer/internal/service"
	"github.com/ledgerline/categorizer/internal/storage"
)

var baseDate = time.Date(2025, 4, 7, 0, 0, 0, 0, time.UTC)

func newTestDetector(t *testing.T) (*Detector, service.Storage) {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })

	return New(store, DefaultConfig()), store
}

func seedExisting(t *testing.T, store service.Storage, txns ...model.Transaction) {
	t.Helper()
	require.NoError(t, store.SaveTransactions(context.Background(), txns))
}

func existingTxn(id string) model.Transaction {
	return model.Transaction{
		ID:           id,
		AccountID:    "acct-1",
		MerchantName: "Starbucks",
		Description:  "morning coffee",
		Amount:       6.75,
		Currency:     "USD",
		Date:         baseDate,
	}
}

func TestCheck_ExactDuplicate(t *testing.T) {
	detector, store := newTestDetector(t)
	seedExisting(t, store, existingTxn("e1"))

	conflict, err := detector.Check(context.Background(), CandidateFromTransaction(existingTxn("incoming")))
	require.NoError(t, err)
	require.NotNil(t, conflict)

	assert.Equal(t, model.ConflictDuplicate, conflict.Status)
	assert.Equal(t, "e1", conflict.ExistingID)
	assert.InDelta(t, 100.0, conflict.Score, 1e-9)
	assert.InDelta(t, 35.0, conflict.Breakdown["amount"], 1e-9)
	assert.InDelta(t, 25.0, conflict.Breakdown["date"], 1e-9)
}

func TestCheck_SimilarTransaction(t *testing.T) {
	detector, store := newTestDetector(t)
	seedExisting(t, store, existingTxn("e1"))

	candidate := model.ConflictCandidate{
		Date:         baseDate.AddDate(0, 0, 2),
		AccountID:    "acct-1",
		MerchantName: "Starbucks",
		Description:  "morning coffee",
		Currency:     "USD",
		Amount:       decimal.NewFromFloat(7.02),
	}

	conflict, err := detector.Check(context.Background(), candidate)
	require.NoError(t, err)
	require.NotNil(t, conflict)

	// Amount within 5% (70*0.35) and date two days off (60*0.25) with
	// everything else identical.
	assert.Equal(t, model.ConflictSimilar, conflict.Status)
	assert.InDelta(t, 79.5, conflict.Score, 1e-9)
}

func TestCheck_UpdatedContent(t *testing.T) {
	detector, store := newTestDetector(t)
	seedExisting(t, store, existingTxn("e1"))

	// Same amount on the same day, but the text content changed.
	candidate := model.ConflictCandidate{
		Date:         baseDate,
		AccountID:    "acct-1",
		MerchantName: "Uber",
		Currency:     "EUR",
		Hash:         "different",
		Amount:       decimal.NewFromFloat(6.75),
	}

	conflict, err := detector.Check(context.Background(), candidate)
	require.NoError(t, err)
	require.NotNil(t, conflict)

	assert.Equal(t, model.ConflictUpdated, conflict.Status)
	assert.Less(t, conflict.Score, 70.0)
}

func TestCheck_NeedsReview(t *testing.T) {
	detector, store := newTestDetector(t)
	seedExisting(t, store, existingTxn("e1"))

	candidate := model.ConflictCandidate{
		Date:         baseDate.AddDate(0, 0, 3),
		AccountID:    "acct-1",
		MerchantName: "Uber",
		Currency:     "EUR",
		Hash:         "different",
		Amount:       decimal.NewFromFloat(7.29),
	}

	conflict, err := detector.Check(context.Background(), candidate)
	require.NoError(t, err)
	require.NotNil(t, conflict)
	assert.Equal(t, model.ConflictNeedsReview, conflict.Status)
}

func TestCheck_NoConflict(t *testing.T) {
	detector, store := newTestDetector(t)
	seedExisting(t, store, existingTxn("e1"))

	t.Run("amount out of range", func(t *testing.T) {
		candidate := CandidateFromTransaction(existingTxn("incoming"))
		candidate.Amount = decimal.NewFromFloat(12.00)

		conflict, err := detector.Check(context.Background(), candidate)
		require.NoError(t, err)
		assert.Nil(t, conflict)
	})

	t.Run("different account", func(t *testing.T) {
		candidate := CandidateFromTransaction(existingTxn("incoming"))
		candidate.AccountID = "acct-2"

		conflict, err := detector.Check(context.Background(), candidate)
		require.NoError(t, err)
		assert.Nil(t, conflict)
	})

	t.Run("outside date window", func(t *testing.T) {
		candidate := CandidateFromTransaction(existingTxn("incoming"))
		candidate.Date = baseDate.AddDate(0, 0, 10)

		conflict, err := detector.Check(context.Background(), candidate)
		require.NoError(t, err)
		assert.Nil(t, conflict)
	})
}

func TestCheck_CalendarDayWindow(t *testing.T) {
	detector, store := newTestDetector(t)
	seedExisting(t, store, existingTxn("e1"))

	// Three calendar days apart but more than 72 hours of clock time.
	// The window bands by calendar days, so the record still scores.
	candidate := model.ConflictCandidate{
		Date:         baseDate.AddDate(0, 0, 3).Add(23 * time.Hour),
		AccountID:    "acct-1",
		MerchantName: "Starbucks",
		Description:  "morning coffee",
		Currency:     "USD",
		Amount:       decimal.NewFromFloat(6.75),
	}

	conflict, err := detector.Check(context.Background(), candidate)
	require.NoError(t, err)
	require.NotNil(t, conflict)

	assert.Equal(t, model.ConflictSimilar, conflict.Status)
	assert.InDelta(t, 10.0, conflict.Breakdown["date"], 1e-9)
	assert.InDelta(t, 85.0, conflict.Score, 1e-9)
}

func TestCheck_TieGoesToEarliestRecord(t *testing.T) {
	detector, store := newTestDetector(t)
	seedExisting(t, store, existingTxn("e1"), existingTxn("e2"))

	conflict, err := detector.Check(context.Background(), CandidateFromTransaction(existingTxn("incoming")))
	require.NoError(t, err)
	require.NotNil(t, conflict)
	assert.Equal(t, "e1", conflict.ExistingID)
}

func TestCheck_Validation(t *testing.T) {
	detector, _ := newTestDetector(t)

	_, err := detector.Check(context.Background(), model.ConflictCandidate{Date: baseDate})
	require.Error(t, err)
	assert.True(t, common.IsValidation(err))

	_, err = detector.Check(context.Background(), model.ConflictCandidate{AccountID: "acct-1"})
	require.Error(t, err)
	assert.True(t, common.IsValidation(err))
}

func TestCheckBatch(t *testing.T) {
	detector, store := newTestDetector(t)
	seedExisting(t, store, existingTxn("e1"))

	clean := CandidateFromTransaction(existingTxn("incoming"))
	clean.AccountID = "acct-9"

	conflicts, err := detector.CheckBatch(context.Background(), []model.ConflictCandidate{
		CandidateFromTransaction(existingTxn("incoming")),
		clean,
	})
	require.NoError(t, err)
	require.Len(t, conflicts, 2)

	require.NotNil(t, conflicts[0])
	assert.Equal(t, model.ConflictDuplicate, conflicts[0].Status)
	assert.Nil(t, conflicts[1])
}
