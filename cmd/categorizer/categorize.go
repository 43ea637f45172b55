package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ledgerline/categorizer/internal/engine"
	"github.com/ledgerline/categorizer/internal/model"
)

func categorizeCmd() *cobra.Command {
	var (
		accountID string
		merchant  string
		desc      string
		currency  string
		dateStr   string
		amount    float64
	)

	cmd := &cobra.Command{
		Use:   "categorize [transaction-id]",
		Short: "Categorize a single transaction",
		Long: `Categorize a stored transaction by id, or an ad-hoc one described with
flags. Ad-hoc transactions are not persisted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			eng, store, err := initEngine(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			var txn model.Transaction
			switch {
			case len(args) == 1 && merchant == "":
				stored, err := store.GetTransactionByID(ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to load transaction: %w", err)
				}
				txn = *stored
			case merchant != "" || desc != "":
				txn = model.Transaction{
					ID:           uuid.NewString(),
					AccountID:    accountID,
					MerchantName: merchant,
					Description:  desc,
					Currency:     currency,
					Amount:       amount,
					Date:         time.Now(),
				}
				if len(args) == 1 {
					txn.ID = args[0]
				}
				if dateStr != "" {
					date, err := parseDate(dateStr)
					if err != nil {
						return err
					}
					txn.Date = date
				}
			default:
				return fmt.Errorf("provide a transaction id or --merchant/--description")
			}

			result := eng.Categorize(ctx, txn, engine.Options{})
			if result.Err != nil {
				return fmt.Errorf("categorization failed: %w", result.Err)
			}

			printResult(txn, result)
			return nil
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "account id")
	cmd.Flags().StringVar(&merchant, "merchant", "", "merchant name")
	cmd.Flags().StringVar(&desc, "description", "", "transaction description")
	cmd.Flags().StringVar(&currency, "currency", "USD", "currency code")
	cmd.Flags().StringVar(&dateStr, "date", "", "transaction date (YYYY-MM-DD)")
	cmd.Flags().Float64Var(&amount, "amount", 0, "transaction amount")

	return cmd
}

func printResult(txn model.Transaction, result model.CategorizationResult) {
	if !result.Categorized() {
		fmt.Printf("%s: no confident match (%.0fms)\n", txn.SearchText(), float64(result.Elapsed.Microseconds())/1000)
		return
	}

	fmt.Printf("%s -> %s (%.0f%% via %s, %.0fms)\n",
		txn.SearchText(), result.Category, result.Confidence*100,
		result.Method, float64(result.Elapsed.Microseconds())/1000)

	for _, alt := range result.Alternatives {
		fmt.Printf("  alternative: %s (%.0f%%)\n", alt.Category, alt.Confidence*100)
	}
}
