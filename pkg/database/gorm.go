package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/noah-isme/classchart/pkg/config"
)

// NewGorm opens a gorm session factory for cfg.Driver. SQLite goes through the
// same pure-Go driver the raw backend uses.
func NewGorm(cfg config.DatabaseConfig, logger gormLogger.Interface) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", config.DriverSQLite:
		dsn, err := SQLiteDSN(cfg.File)
		if err != nil {
			return nil, err
		}
		dialector = sqlite.New(sqlite.Config{DriverName: SQLiteDriverName, DSN: dsn})
	case config.DriverPostgres:
		dialector = postgres.New(postgres.Config{
			DSN:                  PostgresDSN(cfg),
			PreferSimpleProtocol: true,
		})
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	gormCfg := &gorm.Config{}
	if logger != nil {
		gormCfg.Logger = logger
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	return db, nil
}
