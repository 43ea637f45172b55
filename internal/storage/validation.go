package storage

import (
	"context"

	"github.com/ledgerline/categorizer/internal/common"
)

// validateContext ensures a context is usable before touching the database.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return common.NewValidationError("context", "cannot be nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// validateString ensures a required string field is non-empty.
func validateString(value, field string) error {
	if value == "" {
		return common.NewValidationError(field, "cannot be empty")
	}
	return nil
}
