// Package testing provides shared test helpers for the optimizer project.
package testing

import (
	"path/filepath"
	"testing"

	"portfolio-optimizer/internal/database"
)

// NewTestDB creates an isolated file-backed SQLite database for a test.
// The file lives in the test's temp dir and the connection is closed on
// cleanup, so callers never manage lifecycle themselves.
func NewTestDB(t *testing.T, name string, profile database.DatabaseProfile) *database.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: profile,
		Name:    name,
	})
	if err != nil {
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: failed to close test database %s: %v", name, err)
		}
	})
	return db
}
