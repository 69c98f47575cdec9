package testutil

import (
	"testing"

	"github.com/kangarko/pacan-analytics/internal/store"
)

// SetupTestStore creates a test database and returns the store with a
// cleanup function. Uses t.TempDir() for automatic cleanup on completion.
func SetupTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	dbPath := t.TempDir() + "/test.db"

	s, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})

	return s
}
