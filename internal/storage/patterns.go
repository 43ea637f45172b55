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

const patternColumns = `id, type, value, category, confidence_weight,
	usage_count, success_count, is_active, user_created, created_at, updated_at`

// CreatePattern creates a new categorization pattern.
func (s *SQLiteStorage) CreatePattern(ctx context.Context, pattern *model.Pattern) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if pattern == nil {
		return common.NewValidationError("pattern", "cannot be nil")
	}
	if err := pattern.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO patterns (type, value, category, confidence_weight, is_active, user_created)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		pattern.Type, pattern.Value, pattern.Category,
		pattern.ConfidenceWeight, pattern.IsActive, pattern.UserCreated,
	)
	if err != nil {
		return fmt.Errorf("failed to create pattern: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get pattern ID: %w", err)
	}

	pattern.ID = id
	pattern.CreatedAt = time.Now()
	pattern.UpdatedAt = time.Now()

	return nil
}

// GetPattern retrieves a pattern by ID.
func (s *SQLiteStorage) GetPattern(ctx context.Context, id int64) (*model.Pattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM patterns WHERE id = ?", patternColumns)
	pattern, err := scanPattern(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("pattern %d: %w", id, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get pattern: %w", err)
	}

	return pattern, nil
}

// GetActivePatterns retrieves all active patterns.
func (s *SQLiteStorage) GetActivePatterns(ctx context.Context) ([]model.Pattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM patterns WHERE is_active = 1 ORDER BY id ASC", patternColumns)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get active patterns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var patterns []model.Pattern
	for rows.Next() {
		pattern, err := scanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pattern: %w", err)
		}
		patterns = append(patterns, *pattern)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating patterns: %w", err)
	}

	return patterns, nil
}

// FindPattern retrieves a pattern by its identity (type, value, category).
// Returns common.ErrNotFound when no such pattern exists.
func (s *SQLiteStorage) FindPattern(ctx context.Context, patternType model.PatternType, value, category string) (*model.Pattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM patterns WHERE type = ? AND value = ? AND category = ?", patternColumns)
	pattern, err := scanPattern(s.db.QueryRowContext(ctx, query, patternType, value, category))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find pattern: %w", err)
	}

	return pattern, nil
}

// UpdatePattern updates an existing pattern's value, category, weight,
// and active flag. Usage counters are updated only via RecordPatternUsage.
func (s *SQLiteStorage) UpdatePattern(ctx context.Context, pattern *model.Pattern) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if pattern == nil {
		return common.NewValidationError("pattern", "cannot be nil")
	}
	if err := pattern.Validate(); err != nil {
		return err
	}

	query := `
		UPDATE patterns SET
			type = ?, value = ?, category = ?, confidence_weight = ?,
			is_active = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		pattern.Type, pattern.Value, pattern.Category,
		pattern.ConfidenceWeight, pattern.IsActive, pattern.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update pattern: %w", err)
	}

	return requireRowAffected(result, "pattern")
}

// DeactivatePattern marks a pattern inactive. Patterns are never deleted
// so usage history survives.
func (s *SQLiteStorage) DeactivatePattern(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE patterns SET is_active = 0, updated_at = CURRENT_TIMESTAMP WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to deactivate pattern: %w", err)
	}

	return requireRowAffected(result, "pattern")
}

// RecordPatternUsage increments a pattern's usage counter, and its
// success counter when the match was correct. The increment happens in
// a single statement so concurrent callers cannot lose updates.
func (s *SQLiteStorage) RecordPatternUsage(ctx context.Context, id int64, wasCorrect bool) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	success := 0
	if wasCorrect {
		success = 1
	}

	query := `
		UPDATE patterns SET
			usage_count = usage_count + 1,
			success_count = success_count + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, success, id)
	if err != nil {
		return fmt.Errorf("failed to record pattern usage: %w", err)
	}

	return requireRowAffected(result, "pattern")
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPattern(row rowScanner) (*model.Pattern, error) {
	var pattern model.Pattern
	err := row.Scan(
		&pattern.ID, &pattern.Type, &pattern.Value, &pattern.Category,
		&pattern.ConfidenceWeight, &pattern.UsageCount, &pattern.SuccessCount,
		&pattern.IsActive, &pattern.UserCreated, &pattern.CreatedAt, &pattern.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &pattern, nil
}

func requireRowAffected(result sql.Result, entity string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", entity, common.ErrNotFound)
	}
	return nil
}
