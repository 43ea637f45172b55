// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/ledgerline/categorizer/internal/model"
)

// Storage defines the contract for the persistence layer.
type Storage interface {
	// Pattern operations
	CreatePattern(ctx context.Context, pattern *model.Pattern) error
	GetPattern(ctx context.Context, id int64) (*model.Pattern, error)
	GetActivePatterns(ctx context.Context) ([]model.Pattern, error)
	FindPattern(ctx context.Context, patternType model.PatternType, value, category string) (*model.Pattern, error)
	UpdatePattern(ctx context.Context, pattern *model.Pattern) error
	DeactivatePattern(ctx context.Context, id int64) error
	RecordPatternUsage(ctx context.Context, id int64, wasCorrect bool) error

	// Composite pattern operations
	CreateCompositePattern(ctx context.Context, pattern *model.CompositePattern) error
	GetActiveCompositePatterns(ctx context.Context) ([]model.CompositePattern, error)
	DeactivateCompositePattern(ctx context.Context, id int64) error
	RecordCompositePatternUsage(ctx context.Context, id int64, wasCorrect bool) error

	// User preference operations
	GetPreference(ctx context.Context, accountID string, contextType model.PreferenceContext, contextValue string) (*model.UserCategoryPreference, error)
	UpsertPreference(ctx context.Context, pref *model.UserCategoryPreference) error

	// Category operations
	GetCategories(ctx context.Context) ([]model.Category, error)
	GetCategoryByID(ctx context.Context, id int) (*model.Category, error)
	GetCategoryByName(ctx context.Context, name string) (*model.Category, error)
	GetCategoriesByIDs(ctx context.Context, ids []int) (map[int]model.Category, error)
	CreateCategory(ctx context.Context, name, description string) (*model.Category, error)

	// Transaction operations
	SaveTransactions(ctx context.Context, transactions []model.Transaction) error
	GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error)
	ApplyCategorization(ctx context.Context, transactionID, category string, confidence float64, method model.Method) error
	FindNearbyTransactions(ctx context.Context, accountID string, date time.Time, days int) ([]model.Transaction, error)

	// Learning event operations
	SaveLearningEvent(ctx context.Context, event *model.LearningEvent) error
	GetLearningEventsByTransaction(ctx context.Context, transactionID string) ([]model.LearningEvent, error)

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
