// Package backend resolves the configured backend name to a store.Database.
package backend

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"
	gormLogger "gorm.io/gorm/logger"

	"github.com/noah-isme/classchart/internal/store"
	"github.com/noah-isme/classchart/internal/store/jsondb"
	"github.com/noah-isme/classchart/internal/store/ormdb"
	"github.com/noah-isme/classchart/internal/store/sqldb"
	"github.com/noah-isme/classchart/pkg/config"
	"github.com/noah-isme/classchart/pkg/database"
	appErrors "github.com/noah-isme/classchart/pkg/errors"
	"github.com/noah-isme/classchart/pkg/metrics"
)

// Constructor builds one backend from configuration.
type Constructor func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Database, error)

// Factory maps backend names to constructors.
type Factory struct {
	constructors map[string]Constructor
}

func NewFactory() *Factory {
	return &Factory{constructors: make(map[string]Constructor)}
}

// Default returns a factory with the json, sql and orm backends registered.
func Default() *Factory {
	f := NewFactory()
	f.Register(config.BackendJSON, openJSON)
	f.Register(config.BackendSQL, openSQL)
	f.Register(config.BackendORM, openORM)
	return f
}

// Register adds or replaces the constructor for name.
func (f *Factory) Register(name string, constructor Constructor) {
	f.constructors[normalize(name)] = constructor
}

// Names lists the registered backends in order.
func (f *Factory) Names() []string {
	names := make([]string, 0, len(f.constructors))
	for name := range f.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open constructs the backend named by cfg.Backend. The result is wrapped
// with operation metrics when m is set and metrics are enabled.
func (f *Factory) Open(ctx context.Context, cfg *config.Config, logger *zap.Logger, m *metrics.StoreMetrics) (store.Database, error) {
	if cfg == nil {
		return nil, appErrors.Clone(appErrors.ErrConfiguration, "backend: configuration is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	name := normalize(cfg.Backend)
	constructor, ok := f.constructors[name]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrConfiguration,
			"unknown database backend "+cfg.Backend+" (expected one of "+strings.Join(f.Names(), ", ")+")")
	}

	db, err := constructor(ctx, cfg, logger.Named(name))
	if err != nil {
		return nil, err
	}
	if db.DefaultAvatarPath() == "" {
		_ = db.Close()
		return nil, appErrors.Clone(appErrors.ErrConfiguration, "backend "+name+" does not define a default avatar path")
	}

	logger.Info("database backend opened", zap.String("backend", name))
	if m != nil && cfg.Metrics.Enabled {
		return store.WithMetrics(db, name, m), nil
	}
	return db, nil
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func openJSON(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Database, error) {
	return jsondb.New(jsondb.Options{
		AppDataDir:        cfg.Storage.AppDataDir,
		ChartSaveDir:      cfg.Storage.ChartSaveDir,
		DefaultAvatarPath: cfg.Storage.DefaultAvatarPath,
		Logger:            logger,
	})
}

func openSQL(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Database, error) {
	db, err := database.NewSQL(cfg.Database)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrConfiguration.Code, "open sql database")
	}
	s, err := sqldb.New(sqldb.Options{
		DB:                db,
		Dialect:           cfg.Database.Driver,
		AppDataDir:        cfg.Storage.AppDataDir,
		DefaultAvatarPath: cfg.Storage.DefaultAvatarPath,
		Logger:            logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.InitSchema(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func openORM(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Database, error) {
	level := gormLogger.Warn
	if cfg.Log.Level == "debug" {
		level = gormLogger.Info
	}
	db, err := database.NewGorm(cfg.Database, ormdb.NewGormLogger(logger.Named("gorm"), level))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrConfiguration.Code, "open orm database")
	}
	s, err := ormdb.New(ormdb.Options{
		DB:                db,
		AppDataDir:        cfg.Storage.AppDataDir,
		DefaultAvatarPath: cfg.Storage.DefaultAvatarPath,
		Logger:            logger,
	})
	if err != nil {
		if sqlDB, derr := db.DB(); derr == nil {
			_ = sqlDB.Close()
		}
		return nil, err
	}
	if err := s.AutoMigrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}
