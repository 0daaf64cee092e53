package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/noah-isme/classchart/pkg/config"
)

// SQLiteDriverName is the database/sql name registered by modernc.org/sqlite.
const SQLiteDriverName = "sqlite"

func init() {
	sqlx.BindDriver(SQLiteDriverName, sqlx.QUESTION)
}

// NewSQL opens the relational database selected by cfg.Driver.
func NewSQL(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	switch cfg.Driver {
	case "", config.DriverSQLite:
		return NewSQLite(cfg)
	case config.DriverPostgres:
		return NewPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// NewSQLite opens (creating if needed) an SQLite file with foreign keys
// enforced on every pooled connection.
func NewSQLite(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	dsn, err := SQLiteDSN(cfg.File)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(SQLiteDriverName, dsn)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// NewPostgres returns a configured PostgreSQL client.
func NewPostgres(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", PostgresDSN(cfg))
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// SQLiteDSN builds the modernc DSN for file, creating its parent directory.
func SQLiteDSN(file string) (string, error) {
	if file == "" {
		return "", fmt.Errorf("sqlite database file not configured")
	}
	if dir := filepath.Dir(file); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create database directory: %w", err)
		}
	}
	return file + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", nil
}

// PostgresDSN formats a libpq keyword/value connection string.
func PostgresDSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)
}
