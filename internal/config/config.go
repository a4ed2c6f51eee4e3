package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	SourceKindMock = "mock"
	SourceKindHTTP = "http"
	SourceKindFile = "file"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseDriver string `envconfig:"DATABASE_DRIVER" default:"postgres"`
	DatabaseURL    string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns     int32  `envconfig:"DB_MIN_CONNS" default:"1"`
	DBMaxConns     int32  `envconfig:"DB_MAX_CONNS" default:"8"`

	FuzzyThreshold int           `envconfig:"IMPORT_FUZZY_THRESHOLD" default:"2"`
	ChunkSize      int           `envconfig:"IMPORT_CHUNK_SIZE" default:"2000"`
	FetchCount     int           `envconfig:"IMPORT_FETCH_COUNT" default:"100000"`
	Schedule       string        `envconfig:"IMPORT_SCHEDULE" default:"0 * * * *"`
	RunTimeout     time.Duration `envconfig:"IMPORT_RUN_TIMEOUT" default:"30m"`
	LockPath       string        `envconfig:"IMPORT_LOCK_PATH" default:""`

	SourceKind       string        `envconfig:"SOURCE_KIND" default:"mock"`
	SourceURL        string        `envconfig:"SOURCE_URL" default:""`
	SourcePath       string        `envconfig:"SOURCE_PATH" default:""`
	SourceTimeout    time.Duration `envconfig:"SOURCE_TIMEOUT" default:"2m"`
	SourceMaxElapsed time.Duration `envconfig:"SOURCE_MAX_ELAPSED" default:"5m"`

	AdminTokenHash string `envconfig:"ADMIN_TOKEN_HASH" default:""`

	OTelEnabled  bool   `envconfig:"OTEL_ENABLED" default:"false"`
	OTelStdout   bool   `envconfig:"OTEL_STDOUT" default:"false"`
	OTelEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" default:""`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	cfg.DatabaseDriver = strings.ToLower(strings.TrimSpace(cfg.DatabaseDriver))
	cfg.SourceKind = strings.ToLower(strings.TrimSpace(cfg.SourceKind))
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("DATABASE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.DatabaseDriver)
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) cannot exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.FuzzyThreshold < 0 {
		return fmt.Errorf("IMPORT_FUZZY_THRESHOLD must be >= 0")
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("IMPORT_CHUNK_SIZE must be >= 1")
	}
	if c.FetchCount < 1 {
		return fmt.Errorf("IMPORT_FETCH_COUNT must be >= 1")
	}
	if strings.TrimSpace(c.Schedule) == "" {
		return fmt.Errorf("IMPORT_SCHEDULE is required")
	}
	if c.RunTimeout <= 0 {
		return fmt.Errorf("IMPORT_RUN_TIMEOUT must be > 0")
	}
	switch c.SourceKind {
	case SourceKindMock:
	case SourceKindHTTP:
		if strings.TrimSpace(c.SourceURL) == "" {
			return fmt.Errorf("SOURCE_URL is required when SOURCE_KIND=%s", SourceKindHTTP)
		}
	case SourceKindFile:
		if strings.TrimSpace(c.SourcePath) == "" {
			return fmt.Errorf("SOURCE_PATH is required when SOURCE_KIND=%s", SourceKindFile)
		}
	default:
		return fmt.Errorf("SOURCE_KIND must be one of %q, %q or %q, got %q", SourceKindMock, SourceKindHTTP, SourceKindFile, c.SourceKind)
	}
	if c.SourceTimeout <= 0 {
		return fmt.Errorf("SOURCE_TIMEOUT must be > 0")
	}
	if c.SourceMaxElapsed < 0 {
		return fmt.Errorf("SOURCE_MAX_ELAPSED must be >= 0")
	}
	return nil
}
