package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ledgerline/categorizer/internal/common"
	"github.com/ledgerline/categorizer/internal/model"
)

// SaveLearningEvent appends an immutable feedback audit record.
func (s *SQLiteStorage) SaveLearningEvent(ctx context.Context, event *model.LearningEvent) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if event == nil {
		return common.NewValidationError("event", "cannot be nil")
	}
	if err := validateString(event.TransactionID, "transactionID"); err != nil {
		return err
	}
	if err := validateString(event.Category, "category"); err != nil {
		return err
	}

	var contextJSON []byte
	if event.Context != nil {
		var err error
		contextJSON, err = json.Marshal(event.Context)
		if err != nil {
			return fmt.Errorf("failed to marshal event context: %w", err)
		}
	}

	query := `
		INSERT INTO learning_events (transaction_id, category, was_correct, pattern_used, confidence_score, context)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		event.TransactionID, event.Category, event.WasCorrect,
		event.PatternUsed, event.ConfidenceScore, nullString(string(contextJSON)))
	if err != nil {
		return fmt.Errorf("failed to save learning event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get learning event ID: %w", err)
	}

	event.ID = id
	event.CreatedAt = time.Now()

	return nil
}

// GetLearningEventsByTransaction retrieves the feedback history for a
// transaction, newest first.
func (s *SQLiteStorage) GetLearningEventsByTransaction(ctx context.Context, transactionID string) ([]model.LearningEvent, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return nil, err
	}

	query := `
		SELECT id, transaction_id, category, was_correct, pattern_used, confidence_score, context, created_at
		FROM learning_events
		WHERE transaction_id = ?
		ORDER BY id DESC
	`

	rows, err := s.db.QueryContext(ctx, query, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get learning events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []model.LearningEvent
	for rows.Next() {
		var event model.LearningEvent
		var patternUsed, contextJSON sql.NullString
		err := rows.Scan(
			&event.ID, &event.TransactionID, &event.Category, &event.WasCorrect,
			&patternUsed, &event.ConfidenceScore, &contextJSON, &event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan learning event: %w", err)
		}

		event.PatternUsed = patternUsed.String
		if contextJSON.Valid && contextJSON.String != "" {
			if err := json.Unmarshal([]byte(contextJSON.String), &event.Context); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event context: %w", err)
			}
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating learning events: %w", err)
	}

	return events, nil
}
