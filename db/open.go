package db

import (
	"fmt"
	"time"

	"learnedge/config"
	"learnedge/logger"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open builds the Store selected by cfg.StoreDriver.
func Open(cfg *config.Config, log *logger.Logger) (Store, error) {
	switch cfg.StoreDriver {
	case config.StoreJSON:
		return NewDatabase(cfg, log)
	case config.StoreSQLite:
		gdb, err := openGorm(sqlite.Open(cfg.DatabaseDSN))
		if err != nil {
			return nil, fmt.Errorf("opening sqlite database %q: %w", cfg.DatabaseDSN, err)
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, err
		}
		// sqlite allows a single writer.
		sqlDB.SetMaxOpenConns(1)
		return NewSQLStore(gdb, log)
	case config.StorePostgres:
		gdb, err := openGorm(postgres.Open(cfg.DatabaseDSN))
		if err != nil {
			return nil, fmt.Errorf("opening postgres database: %w", err)
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
		return NewSQLStore(gdb, log)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func openGorm(dialector gorm.Dialector) (*gorm.DB, error) {
	return gorm.Open(dialector, &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
}
