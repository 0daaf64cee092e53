package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Backend names accepted by DATABASE_BACKEND.
const (
	BackendJSON = "json"
	BackendSQL  = "sql"
	BackendORM  = "orm"
)

// SQL drivers accepted by DB_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Env     string
	Backend string

	Storage  StorageConfig
	Database DatabaseConfig
	Log      LogConfig
	Metrics  MetricsConfig
}

// StorageConfig locates application-owned files.
type StorageConfig struct {
	AppDataDir        string
	ChartSaveDir      string
	DefaultAvatarPath string
	StagingDir        string
}

type DatabaseConfig struct {
	Driver       string
	File         string
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig toggles operation instrumentation of the active backend.
// File receives the metrics in Prometheus text format when the run ends.
type MetricsConfig struct {
	Enabled bool
	File    string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Backend = strings.ToLower(strings.TrimSpace(v.GetString("DATABASE_BACKEND")))

	cfg.Storage = StorageConfig{
		AppDataDir:        v.GetString("APP_DATA_DIR"),
		ChartSaveDir:      v.GetString("CHART_SAVE_DIR"),
		DefaultAvatarPath: v.GetString("DEFAULT_AVATAR_PATH"),
		StagingDir:        v.GetString("STAGING_DIR"),
	}

	dbFile := v.GetString("DB_FILE")
	if dbFile != "" && !filepath.IsAbs(dbFile) {
		dbFile = filepath.Join(cfg.Storage.AppDataDir, dbFile)
	}
	cfg.Database = DatabaseConfig{
		Driver:       strings.ToLower(v.GetString("DB_DRIVER")),
		File:         dbFile,
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	metricsFile := v.GetString("METRICS_FILE")
	if metricsFile != "" && !filepath.IsAbs(metricsFile) {
		metricsFile = filepath.Join(cfg.Storage.AppDataDir, metricsFile)
	}
	cfg.Metrics = MetricsConfig{
		Enabled: v.GetBool("ENABLE_METRICS"),
		File:    metricsFile,
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("DATABASE_BACKEND", BackendJSON)

	v.SetDefault("APP_DATA_DIR", "./app_data")
	v.SetDefault("CHART_SAVE_DIR", "./charts")
	v.SetDefault("DEFAULT_AVATAR_PATH", "./resources/default_avatar.png")
	v.SetDefault("STAGING_DIR", os.TempDir())

	v.SetDefault("DB_DRIVER", DriverSQLite)
	v.SetDefault("DB_FILE", "classchart.db")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "classchart")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")

	v.SetDefault("ENABLE_METRICS", true)
	v.SetDefault("METRICS_FILE", "classchart.prom")
}
