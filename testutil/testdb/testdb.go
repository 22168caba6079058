// Package testdb hands out migrated databases for tests.
package testdb

import (
	"path/filepath"
	"testing"

	"challengetracker/config"
	"challengetracker/database"
	"challengetracker/logging"

	"gorm.io/gorm"
)

// Open returns a fresh SQLite database in the test's temp dir with the full
// schema migrated. It is closed when the test ends.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	cfg := &config.Config{
		DBDialect:  "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
	}
	db, err := database.Open(cfg, logging.Nop())
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}
