package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/ledgerline/categorizer/internal/storage"
)

// Registry creates and tracks engines so callers can share one engine
// per database and release everything in one place.
type Registry struct {
	engines map[string]*Engine
	closers []io.Closer
	mu      sync.Mutex
}

// NewRegistry creates an empty engine registry.
func NewRegistry() *Registry {
	return &Registry{engines: make(map[string]*Engine)}
}

// Open returns the engine registered under name, creating it on first
// use: storage is opened at dbPath, migrated, and owned by the registry
// until Close.
func (r *Registry) Open(ctx context.Context, name, dbPath string, config Config) (*Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if eng, ok := r.engines[name]; ok {
		return eng, nil
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate storage: %w", err)
	}

	eng := New(store, config)
	r.engines[name] = eng
	r.closers = append(r.closers, store)
	return eng, nil
}

// Get returns a previously opened engine.
func (r *Registry) Get(name string) (*Engine, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	eng, ok := r.engines[name]
	return eng, ok
}

// Close releases every storage the registry owns.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, c := range r.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	r.engines = make(map[string]*Engine)
	return errors.Join(errs...)
}
