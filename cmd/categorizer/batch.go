package main

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/ledgerline/categorizer/internal/engine"
	"github.com/ledgerline/categorizer/internal/model"
)

// batchChunkSize is how many records go through the engine between
// progress updates.
const batchChunkSize = 100

func batchCmd() *cobra.Command {
	var (
		parallel bool
		workers  int
		noSave   bool
	)

	cmd := &cobra.Command{
		Use:   "batch <file.json>",
		Short: "Categorize a file of transactions",
		Long: `Read a JSON array of transaction records, store them, and categorize
each one. Records are processed in order; --parallel spreads them
across workers without changing the output.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			txns, err := loadRecords(args[0])
			if err != nil {
				return err
			}
			if len(txns) == 0 {
				fmt.Println("No transactions in input file.")
				return nil
			}

			eng, store, err := initEngine(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if !noSave {
				if err := store.SaveTransactions(ctx, txns); err != nil {
					return fmt.Errorf("failed to save transactions: %w", err)
				}
			}

			bar := progressbar.NewOptions(len(txns),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
				progressbar.OptionShowElapsedTimeOnFinish(),
				progressbar.OptionSetWidth(40),
				progressbar.OptionSetDescription("Categorizing transactions..."))

			var results []model.CategorizationResult
			for start := 0; start < len(txns); start += batchChunkSize {
				end := min(start+batchChunkSize, len(txns))
				chunk := eng.BatchCategorize(ctx, txns[start:end], engine.BatchOptions{
					Parallel:   parallel,
					MaxWorkers: workers,
				})
				results = append(results, chunk...)
				_ = bar.Add(end - start)
			}
			_ = bar.Finish()
			fmt.Fprintln(os.Stderr)

			printBatchSummary(txns, results)
			return nil
		},
	}

	cmd.Flags().BoolVar(&parallel, "parallel", false, "categorize records concurrently")
	cmd.Flags().IntVar(&workers, "workers", 0, "worker count for --parallel (default: engine config)")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "categorize without storing the records")

	return cmd
}

func printBatchSummary(txns []model.Transaction, results []model.CategorizationResult) {
	var categorized, noMatch, failed int
	byCategory := make(map[string]int)

	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
		case r.Categorized():
			categorized++
			byCategory[r.Category]++
		default:
			noMatch++
		}
	}

	fmt.Printf("Processed %d transactions: %d categorized, %d unmatched, %d failed\n",
		len(txns), categorized, noMatch, failed)
	for category, count := range byCategory {
		fmt.Printf("  %-24s %d\n", category, count)
	}
}
