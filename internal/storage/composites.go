package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ledgerline/categorizer/internal/common"
	"github.com/ledgerline/categorizer/internal/model"
)

// CreateCompositePattern creates a new composite pattern. Conditions are
// stored as JSON.
func (s *SQLiteStorage) CreateCompositePattern(ctx context.Context, pattern *model.CompositePattern) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if pattern == nil {
		return common.NewValidationError("pattern", "cannot be nil")
	}
	if err := pattern.Validate(); err != nil {
		return err
	}

	conditions, err := json.Marshal(pattern.Conditions)
	if err != nil {
		return fmt.Errorf("failed to marshal conditions: %w", err)
	}

	query := `
		INSERT INTO composite_patterns (name, category, operator, conditions, confidence_weight, is_active, user_created)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		pattern.Name, pattern.Category, pattern.Operator, string(conditions),
		pattern.ConfidenceWeight, pattern.IsActive, pattern.UserCreated,
	)
	if err != nil {
		return fmt.Errorf("failed to create composite pattern: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get composite pattern ID: %w", err)
	}

	pattern.ID = id
	pattern.CreatedAt = time.Now()
	pattern.UpdatedAt = time.Now()

	return nil
}

// GetActiveCompositePatterns retrieves all active composite patterns.
func (s *SQLiteStorage) GetActiveCompositePatterns(ctx context.Context) ([]model.CompositePattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT id, name, category, operator, conditions, confidence_weight,
			usage_count, success_count, is_active, user_created, created_at, updated_at
		FROM composite_patterns
		WHERE is_active = 1
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get composite patterns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var patterns []model.CompositePattern
	for rows.Next() {
		var pattern model.CompositePattern
		var conditions string
		err := rows.Scan(
			&pattern.ID, &pattern.Name, &pattern.Category, &pattern.Operator, &conditions,
			&pattern.ConfidenceWeight, &pattern.UsageCount, &pattern.SuccessCount,
			&pattern.IsActive, &pattern.UserCreated, &pattern.CreatedAt, &pattern.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan composite pattern: %w", err)
		}

		if err := json.Unmarshal([]byte(conditions), &pattern.Conditions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal conditions for %q: %w", pattern.Name, err)
		}

		patterns = append(patterns, pattern)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating composite patterns: %w", err)
	}

	return patterns, nil
}

// DeactivateCompositePattern marks a composite pattern inactive.
func (s *SQLiteStorage) DeactivateCompositePattern(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE composite_patterns SET is_active = 0, updated_at = CURRENT_TIMESTAMP WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to deactivate composite pattern: %w", err)
	}

	return requireRowAffected(result, "composite pattern")
}

// RecordCompositePatternUsage increments a composite pattern's usage and
// success counters in a single statement.
func (s *SQLiteStorage) RecordCompositePatternUsage(ctx context.Context, id int64, wasCorrect bool) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	success := 0
	if wasCorrect {
		success = 1
	}

	query := `
		UPDATE composite_patterns SET
			usage_count = usage_count + 1,
			success_count = success_count + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, success, id)
	if err != nil {
		return fmt.Errorf("failed to record composite pattern usage: %w", err)
	}

	return requireRowAffected(result, "composite pattern")
}
