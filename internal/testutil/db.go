package testutil

import (
	"database/sql"
	"testing"

	"go.uber.org/zap"

	"github.com/vrsandeep/tunedl/internal/db"
	"github.com/vrsandeep/tunedl/migrations"
)

// SetupTestDB creates an in-memory SQLite database and applies all migrations.
// It returns the database connection, ready for use in tests.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	database, err := db.InitDB(":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}

	// Attach a cleanup function to automatically close the DB when the test completes.
	t.Cleanup(func() {
		database.Close()
	})

	if err := db.RunMigrations(database, migrations.FS, zap.NewNop()); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}

	return database
}
