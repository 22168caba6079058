package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"challengetracker/config"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// dialect adapts the single logical schema to one database backend. All
// backend specific settings live here.
type dialect interface {
	name() string
	dialector() gorm.Dialector
	configure(db *gorm.DB) error
}

func dialectFor(cfg *config.Config) (dialect, error) {
	switch cfg.DBDialect {
	case "sqlite":
		return sqliteDialect{path: cfg.SQLitePath}, nil
	case "postgres":
		return postgresDialect{dsn: cfg.DatabaseURL}, nil
	}
	return nil, fmt.Errorf("unsupported dialect %q", cfg.DBDialect)
}

type sqliteDialect struct {
	path string
}

func (sqliteDialect) name() string { return "sqlite" }

// SQLiteDSN enables foreign key enforcement and a busy timeout on every
// connection opened for path.
func SQLiteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func (d sqliteDialect) dialector() gorm.Dialector {
	if dir := filepath.Dir(d.path); dir != "." && !strings.HasPrefix(d.path, "file:") {
		_ = os.MkdirAll(dir, 0o755)
	}
	return sqlite.Open(SQLiteDSN(d.path))
}

// configure limits the pool to one connection; SQLite serialises writers
// and a single connection keeps transactions from hitting SQLITE_BUSY.
func (sqliteDialect) configure(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(1)

	var enabled int
	if err := db.Raw("PRAGMA foreign_keys").Scan(&enabled).Error; err != nil {
		return err
	}
	if enabled != 1 {
		return fmt.Errorf("foreign keys not enabled")
	}
	return nil
}

type postgresDialect struct {
	dsn string
}

func (postgresDialect) name() string { return "postgres" }

func (d postgresDialect) dialector() gorm.Dialector {
	return postgres.Open(d.dsn)
}

func (postgresDialect) configure(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return nil
}
