// Package storetest provides an in-memory store for tests.
package storetest

import (
	"testing"

	"github.com/nhle/codeinsight/internal/store"
)

// New creates an in-memory SQLiteStore with all migrations applied.
// It automatically closes the store when the test completes.
func New(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}
