package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ledgerline/categorizer/internal/common"
	"github.com/ledgerline/categorizer/internal/model"
)

// GetPreference retrieves a user's learned category preference for a
// specific context. Returns common.ErrNotFound when none exists.
func (s *SQLiteStorage) GetPreference(ctx context.Context, accountID string, contextType model.PreferenceContext, contextValue string) (*model.UserCategoryPreference, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(accountID, "accountID"); err != nil {
		return nil, err
	}
	if err := validateString(contextValue, "contextValue"); err != nil {
		return nil, err
	}

	query := `
		SELECT id, account_id, context_type, context_value, category,
			usage_count, weight, created_at, updated_at
		FROM user_preferences
		WHERE account_id = ? AND context_type = ? AND context_value = ?
	`

	var pref model.UserCategoryPreference
	err := s.db.QueryRowContext(ctx, query, accountID, contextType, contextValue).Scan(
		&pref.ID, &pref.AccountID, &pref.ContextType, &pref.ContextValue,
		&pref.Category, &pref.UsageCount, &pref.Weight, &pref.CreatedAt, &pref.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get preference: %w", err)
	}

	return &pref, nil
}

// UpsertPreference records an explicit category choice. Repeated choices
// of the same category increment the usage count; choosing a different
// category replaces it and restarts the count.
func (s *SQLiteStorage) UpsertPreference(ctx context.Context, pref *model.UserCategoryPreference) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if pref == nil {
		return common.NewValidationError("preference", "cannot be nil")
	}
	if err := validateString(pref.AccountID, "accountID"); err != nil {
		return err
	}
	if err := validateString(pref.Category, "category"); err != nil {
		return err
	}

	if pref.Weight <= 0 {
		pref.Weight = 1.0
	}

	query := `
		INSERT INTO user_preferences (account_id, context_type, context_value, category, usage_count, weight)
		VALUES (?, ?, ?, ?, 1, ?)
		ON CONFLICT(account_id, context_type, context_value) DO UPDATE SET
			usage_count = CASE WHEN category = excluded.category THEN usage_count + 1 ELSE 1 END,
			category = excluded.category,
			weight = excluded.weight,
			updated_at = CURRENT_TIMESTAMP
	`

	if _, err := s.db.ExecContext(ctx, query,
		pref.AccountID, pref.ContextType, pref.ContextValue, pref.Category, pref.Weight); err != nil {
		return fmt.Errorf("failed to upsert preference: %w", err)
	}

	return nil
}
