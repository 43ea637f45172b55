package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ledgerline/categorizer/internal/common"
	"github.com/ledgerline/categorizer/internal/model"
)

const transactionColumns = `id, hash, date, account_id, merchant_name, description,
	amount, currency, category_id, category, confidence, method, categorized_at`

// SaveTransactions inserts transactions in a single database
// transaction. Records with an existing id are replaced.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, transactions []model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(transactions) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO transactions
			(id, hash, date, account_id, merchant_name, description, amount, currency,
			 category_id, category, confidence, method, categorized_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range transactions {
		txn := &transactions[i]
		if txn.ID == "" {
			return common.NewValidationError("transaction.id", "cannot be empty")
		}
		if txn.Hash == "" {
			txn.Hash = txn.GenerateHash()
		}

		if _, err := stmt.ExecContext(ctx,
			txn.ID, txn.Hash, txn.Date, txn.AccountID, txn.MerchantName, txn.Description,
			txn.Amount, txn.Currency, txn.CategoryID, nullString(txn.Category),
			txn.Confidence, nullString(string(txn.Method)), txn.CategorizedAt,
		); err != nil {
			return fmt.Errorf("failed to save transaction %s: %w", txn.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transactions: %w", err)
	}

	return nil
}

// GetTransactionByID retrieves a transaction by ID.
func (s *SQLiteStorage) GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM transactions WHERE id = ?", transactionColumns)
	txn, err := scanTransaction(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	return txn, nil
}

// ApplyCategorization writes a categorization decision back onto a
// stored transaction.
func (s *SQLiteStorage) ApplyCategorization(ctx context.Context, transactionID, category string, confidence float64, method model.Method) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return err
	}
	if err := validateString(category, "category"); err != nil {
		return err
	}

	query := `
		UPDATE transactions SET
			category = ?, confidence = ?, method = ?, categorized_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, category, confidence, string(method), time.Now(), transactionID)
	if err != nil {
		return fmt.Errorf("failed to apply categorization: %w", err)
	}

	return requireRowAffected(result, "transaction")
}

// FindNearbyTransactions returns transactions on the same account dated
// within the given number of calendar days. The window runs from the
// start of date-days to the end of date+days, so a record is included
// whenever its calendar-day distance qualifies, regardless of
// time-of-day. Used as the coarse pre-filter for conflict detection.
func (s *SQLiteStorage) FindNearbyTransactions(ctx context.Context, accountID string, date time.Time, days int) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(accountID, "accountID"); err != nil {
		return nil, err
	}

	year, month, day := date.UTC().Date()
	dayStart := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	windowStart := dayStart.AddDate(0, 0, -days)
	windowEnd := dayStart.AddDate(0, 0, days+1)

	query := fmt.Sprintf(`
		SELECT %s FROM transactions
		WHERE account_id = ? AND date >= ? AND date < ?
		ORDER BY date ASC, id ASC
	`, transactionColumns)

	rows, err := s.db.QueryContext(ctx, query, accountID, windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to find nearby transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transactions []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, *txn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return transactions, nil
}

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	var txn model.Transaction
	var merchantName, description, currency, category, method sql.NullString
	var categoryID sql.NullInt64
	var categorizedAt sql.NullTime

	err := row.Scan(
		&txn.ID, &txn.Hash, &txn.Date, &txn.AccountID, &merchantName, &description,
		&txn.Amount, &currency, &categoryID, &category, &txn.Confidence, &method, &categorizedAt,
	)
	if err != nil {
		return nil, err
	}

	txn.MerchantName = merchantName.String
	txn.Description = description.String
	txn.Currency = currency.String
	txn.Category = category.String
	txn.Method = model.Method(method.String)
	if categoryID.Valid {
		id := int(categoryID.Int64)
		txn.CategoryID = &id
	}
	if categorizedAt.Valid {
		t := categorizedAt.Time
		txn.CategorizedAt = &t
	}

	return &txn, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
