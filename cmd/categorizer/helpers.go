package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/ledgerline/categorizer/internal/engine"
	"github.com/ledgerline/categorizer/internal/model"
	"github.com/ledgerline/categorizer/internal/service"
	"github.com/ledgerline/categorizer/internal/storage"
)

// initStorage opens the configured database and applies pending
// migrations. The caller owns the returned storage.
func initStorage(ctx context.Context) (service.Storage, error) {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = filepath.Join(home, ".local", "share", "categorizer", "categorizer.db")
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// initEngine builds a categorization engine on top of initStorage.
func initEngine(ctx context.Context) (*engine.Engine, service.Storage, error) {
	store, err := initStorage(ctx)
	if err != nil {
		return nil, nil, err
	}
	return engine.New(store, engineConfig()), store, nil
}

// engineConfig overlays configured values on the engine defaults.
func engineConfig() engine.Config {
	config := engine.DefaultConfig()
	if v := viper.GetFloat64("engine.min_confidence"); v > 0 {
		config.MinConfidence = v
	}
	if v := viper.GetFloat64("engine.corroboration_boost"); v > 0 {
		config.CorroborationBoost = v
	}
	if v := viper.GetFloat64("engine.fuzzy_min_similarity"); v > 0 {
		config.FuzzyMinSimilarity = v
	}
	if v := viper.GetInt("engine.max_workers"); v > 0 {
		config.MaxWorkers = v
	}
	return config
}

// ingestRecord is the JSON shape accepted by batch and conflicts input
// files.
type ingestRecord struct {
	ID           string  `json:"id"`
	AccountID    string  `json:"account_id"`
	MerchantName string  `json:"merchant"`
	Description  string  `json:"description"`
	Currency     string  `json:"currency"`
	Date         string  `json:"date"`
	Amount       float64 `json:"amount"`
	CategoryID   *int    `json:"category_id,omitempty"`
}

// loadRecords reads a JSON array of transaction records from path.
func loadRecords(path string) ([]model.Transaction, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user-supplied input file
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}

	var records []ingestRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse input file: %w", err)
	}

	txns := make([]model.Transaction, 0, len(records))
	for i, rec := range records {
		date, err := parseDate(rec.Date)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		txns = append(txns, model.Transaction{
			ID:           rec.ID,
			AccountID:    rec.AccountID,
			MerchantName: rec.MerchantName,
			Description:  rec.Description,
			Currency:     rec.Currency,
			Date:         date,
			Amount:       rec.Amount,
			CategoryID:   rec.CategoryID,
		})
	}
	return txns, nil
}

func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("date is required")
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q: expected RFC3339 or YYYY-MM-DD", value)
}
