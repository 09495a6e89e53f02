// Package testdb builds isolated in-memory note stores for tests.
package testdb

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/kuitang/notes-api/internal/db"
)

var counter atomic.Int64

// NewStoreInMemory creates a fresh in-memory SQLite note store. Each call gets
// its own database, so parallel tests never see each other's notes.
func NewStoreInMemory(name string) (*db.Store, error) {
	if name == "" {
		name = "test"
	}
	name = fmt.Sprintf("%s-%d", name, counter.Add(1))

	store, err := db.Open(context.Background(), db.Options{Path: db.MemoryPath, Name: name})
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory notes database: %w", err)
	}

	if err := applyFastSQLitePragmas(store); err != nil {
		store.Close(context.Background())
		return nil, fmt.Errorf("failed to apply fast SQLite pragmas: %w", err)
	}
	return store, nil
}

// MustStoreInMemory is NewStoreInMemory for tests; the store is closed on cleanup.
func MustStoreInMemory(t interface {
	Helper()
	Fatalf(format string, args ...any)
	Cleanup(func())
}, name string) *db.Store {
	t.Helper()
	store, err := NewStoreInMemory(name)
	if err != nil {
		t.Fatalf("in-memory store: %v", err)
	}
	t.Cleanup(func() { store.Close(context.Background()) })
	return store
}

func applyFastSQLitePragmas(store *db.Store) error {
	pragmas := []string{
		"PRAGMA journal_mode=MEMORY",
		"PRAGMA synchronous=OFF",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := store.DB().Exec(pragma); err != nil {
			return err
		}
	}
	return nil
}
