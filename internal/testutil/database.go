package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/coral-mesh/coral-profiler/internal/duckdb"
)

// NewTestDB opens a DuckDB database in a temporary directory. It is closed
// when the test completes.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := duckdb.OpenDB(filepath.Join(t.TempDir(), "test.duckdb"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	})
	return db
}
