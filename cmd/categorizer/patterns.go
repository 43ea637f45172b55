package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ledgerline/categorizer/internal/model"
)

func patternsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "Manage categorization patterns",
		Long:  `List, add, and deactivate the patterns used to categorize transactions.`,
	}

	cmd.AddCommand(listPatternsCmd())
	cmd.AddCommand(addPatternCmd())
	cmd.AddCommand(deactivatePatternCmd())

	return cmd
}

func listPatternsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active patterns",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			patterns, err := store.GetActivePatterns(ctx)
			if err != nil {
				return fmt.Errorf("failed to get patterns: %w", err)
			}
			composites, err := store.GetActiveCompositePatterns(ctx)
			if err != nil {
				return fmt.Errorf("failed to get composite patterns: %w", err)
			}

			if len(patterns) == 0 && len(composites) == 0 {
				fmt.Println("No active patterns. Use 'categorizer patterns add' to create one.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer func() { _ = w.Flush() }()

			fmt.Fprintln(w, "ID\tTYPE\tVALUE\tCATEGORY\tWEIGHT\tUSES\tSUCCESS")
			for i := range patterns {
				p := &patterns[i]
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%.2f\t%d\t%.0f%%\n",
					p.ID, p.Type, p.Value, p.Category, p.ConfidenceWeight,
					p.UsageCount, p.SuccessRate()*100)
			}
			for i := range composites {
				cp := &composites[i]
				fmt.Fprintf(w, "%d\tcomposite/%s\t%s\t%s\t%.2f\t%d\t%.0f%%\n",
					cp.ID, cp.Operator, cp.Name, cp.Category, cp.ConfidenceWeight,
					cp.UsageCount, cp.SuccessRate()*100)
			}

			return nil
		},
	}
}

func addPatternCmd() *cobra.Command {
	var weight float64

	cmd := &cobra.Command{
		Use:   "add <type> <value> <category>",
		Short: "Add a pattern",
		Long: `Create a categorization pattern. Types: merchant, description, keyword,
regex, amount_range (e.g. "10-50"), time (e.g. "day:1-5", "weekday:monday").`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			category, err := store.GetCategoryByName(ctx, args[2])
			if err != nil {
				return fmt.Errorf("failed to look up category %q: %w", args[2], err)
			}

			pattern := &model.Pattern{
				Type:             model.PatternType(args[0]),
				Value:            args[1],
				Category:         category.Name,
				ConfidenceWeight: weight,
				IsActive:         true,
				UserCreated:      true,
			}
			if err := pattern.Validate(); err != nil {
				return err
			}

			if err := store.CreatePattern(ctx, pattern); err != nil {
				return fmt.Errorf("failed to create pattern: %w", err)
			}

			fmt.Printf("Created pattern %d: %s -> %s\n", pattern.ID, pattern.Name(), pattern.Category)
			return nil
		},
	}

	cmd.Flags().Float64Var(&weight, "weight", 0.7, "confidence weight (0-1)")

	return cmd
}

func deactivatePatternCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <id>",
		Short: "Deactivate a pattern",
		Long:  `Mark a pattern inactive. Its usage history is kept.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid pattern id %q", args[0])
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.DeactivatePattern(ctx, id); err != nil {
				return fmt.Errorf("failed to deactivate pattern: %w", err)
			}

			fmt.Printf("Deactivated pattern %d\n", id)
			return nil
		},
	}
}
