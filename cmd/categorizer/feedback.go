package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func feedbackCmd() *cobra.Command {
	var correct bool

	cmd := &cobra.Command{
		Use:   "feedback <transaction-id> <category>",
		Short: "Record feedback on a categorization",
		Long: `Confirm or correct a stored transaction's category. Corrections teach
new merchant patterns and update the account's preference; every call
is recorded as a learning event.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			eng, store, err := initEngine(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := eng.RecordFeedback(ctx, args[0], args[1], correct); err != nil {
				return fmt.Errorf("failed to record feedback: %w", err)
			}

			if correct {
				fmt.Printf("Confirmed %s as %s\n", args[0], args[1])
			} else {
				fmt.Printf("Corrected %s to %s\n", args[0], args[1])
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&correct, "correct", false, "confirm the category instead of correcting it")

	return cmd
}
