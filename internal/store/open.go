package store

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open dials the configured database driver and runs AutoMigrate, the way
// the corpus wires gorm.Open behind golang-migrate at startup — here the
// core owns its own compact schema, so AutoMigrate is enough.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("store: unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", driver, err)
	}

	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("store: automigrate: %w", err)
	}

	return db, nil
}
