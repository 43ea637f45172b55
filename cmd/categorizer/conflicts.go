package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ledgerline/categorizer/internal/conflict"
	"github.com/ledgerline/categorizer/internal/model"
)

func conflictsCmd() *cobra.Command {
	var windowDays int

	cmd := &cobra.Command{
		Use:   "conflicts <file.json>",
		Short: "Check incoming records for duplicates",
		Long: `Score a JSON array of transaction records against stored transactions
and report duplicates, similar records, and upstream edits.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			txns, err := loadRecords(args[0])
			if err != nil {
				return err
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			config := conflict.DefaultConfig()
			if windowDays > 0 {
				config.WindowDays = windowDays
			}
			detector := conflict.New(store, config)

			candidates := make([]model.ConflictCandidate, len(txns))
			for i := range txns {
				candidates[i] = conflict.CandidateFromTransaction(txns[i])
			}

			conflicts, err := detector.CheckBatch(ctx, candidates)
			if err != nil {
				return fmt.Errorf("conflict check failed: %w", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer func() { _ = w.Flush() }()

			fmt.Fprintln(w, "RECORD\tSTATUS\tSCORE\tEXISTING")
			found := 0
			for i, c := range conflicts {
				if c == nil {
					continue
				}
				found++
				fmt.Fprintf(w, "%s\t%s\t%.1f\t%s\n", txns[i].ID, c.Status, c.Score, c.ExistingID)
			}

			if found == 0 {
				fmt.Fprintln(w, "(no conflicts)\t\t\t")
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&windowDays, "window", 0, "date window in days (default: 3)")

	return cmd
}
