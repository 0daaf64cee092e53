package sqldb

import (
	"context"
	"fmt"

	"github.com/noah-isme/classchart/pkg/config"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS class (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name VARCHAR(255) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS avatar (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		image BLOB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS student (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name VARCHAR(255) NOT NULL,
		class_id INTEGER NOT NULL REFERENCES class(id),
		avatar_id INTEGER REFERENCES avatar(id)
	)`,
	`CREATE TABLE IF NOT EXISTS chart (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name VARCHAR(255) NOT NULL,
		date TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS score (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chart_id INTEGER NOT NULL REFERENCES chart(id),
		student_id INTEGER NOT NULL REFERENCES student(id),
		value REAL NOT NULL
	)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS class (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS avatar (
		id BIGSERIAL PRIMARY KEY,
		image BYTEA NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS student (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		class_id BIGINT NOT NULL REFERENCES class(id),
		avatar_id BIGINT REFERENCES avatar(id)
	)`,
	`CREATE TABLE IF NOT EXISTS chart (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		date TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS score (
		id BIGSERIAL PRIMARY KEY,
		chart_id BIGINT NOT NULL REFERENCES chart(id),
		student_id BIGINT NOT NULL REFERENCES student(id),
		value DOUBLE PRECISION NOT NULL
	)`,
}

// InitSchema creates the five tables when they are missing.
func (s *Store) InitSchema(ctx context.Context) error {
	statements := sqliteSchema
	if s.dialect == config.DriverPostgres {
		statements = postgresSchema
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}
