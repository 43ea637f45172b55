package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ledgerline/categorizer/internal/common"
	"github.com/ledgerline/categorizer/internal/model"
)

// BatchOptions adjusts a batch categorization run.
type BatchOptions struct {
	// CorrelationID tags the whole batch; per-record ids are derived
	// from it. Generated when empty.
	CorrelationID string
	// MaxWorkers overrides the engine's configured worker bound.
	MaxWorkers int
	// Parallel enables concurrent processing for batches at or above
	// the engine's parallel threshold.
	Parallel bool
}

// BatchCategorize categorizes a slice of transactions and returns one
// result per input, in input order. Parallel runs split the batch into
// contiguous chunks across a bounded worker group; each record fails or
// succeeds independently, so a worker never aborts the batch.
func (e *Engine) BatchCategorize(ctx context.Context, txns []model.Transaction, opts BatchOptions) []model.CategorizationResult {
	results := make([]model.CategorizationResult, len(txns))
	if len(txns) == 0 {
		return results
	}

	batchID := opts.CorrelationID
	if batchID == "" {
		batchID = uuid.NewString()
	}

	// Category ids referenced anywhere in the batch are resolved once
	// up front so hint scoring never hits storage per record.
	categories := e.preloadCategories(ctx, txns)

	workers := opts.MaxWorkers
	if workers <= 0 {
		workers = e.config.MaxWorkers
	}

	if !opts.Parallel || workers <= 1 || len(txns) < e.config.ParallelThreshold {
		for i := range txns {
			results[i] = e.categorize(ctx, txns[i], batchItemID(batchID, i), categories)
		}
		return results
	}

	if workers > len(txns) {
		workers = len(txns)
	}
	chunk := (len(txns) + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(txns); start += chunk {
		start := start
		end := min(start+chunk, len(txns))
		g.Go(func() error {
			for i := start; i < end; i++ {
				results[i] = e.categorize(gctx, txns[i], batchItemID(batchID, i), categories)
			}
			return nil
		})
	}
	// Workers never return errors; per-record failures live on the results.
	_ = g.Wait()

	return results
}

// preloadCategories bulk-resolves every category id the batch references.
// Returns a non-nil map so per-record lookups are skipped either way.
func (e *Engine) preloadCategories(ctx context.Context, txns []model.Transaction) map[int]model.Category {
	seen := make(map[int]struct{})
	var ids []int
	for i := range txns {
		if id := txns[i].CategoryID; id != nil {
			if _, ok := seen[*id]; !ok {
				seen[*id] = struct{}{}
				ids = append(ids, *id)
			}
		}
	}

	if len(ids) == 0 {
		return map[int]model.Category{}
	}

	categories, err := e.storage.GetCategoriesByIDs(ctx, ids)
	if err != nil {
		// Degraded, not fatal: records lose their hint signal only.
		common.LogError(err, "Failed to preload categories for batch",
			common.Fields{"category_ids": len(ids)})
		return map[int]model.Category{}
	}
	return categories
}

func batchItemID(batchID string, index int) string {
	return fmt.Sprintf("%s-%04d", batchID, index)
}
