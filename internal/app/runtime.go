package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/bookimport/internal/cli"
	"horse.fit/bookimport/internal/config"
	"horse.fit/bookimport/internal/db"
	"horse.fit/bookimport/internal/logging"
	"horse.fit/bookimport/internal/pipeline"
	"horse.fit/bookimport/internal/source"
	"horse.fit/bookimport/internal/telemetry"
)

const defaultConnectTimeout = 10 * time.Second

// loadConfig reads the .env file, the environment and builds the logger.
func loadConfig(envLoader *cli.EnvLoader) (*config.Config, zerolog.Logger, error) {
	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}

func connectPool(cfg *config.Config, timeout time.Duration) (*db.Pool, error) {
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return pool, nil
}

func newSource(cfg *config.Config, logger zerolog.Logger) (pipeline.Source, error) {
	switch cfg.SourceKind {
	case config.SourceKindHTTP:
		return source.NewHTTPClient(source.HTTPOptions{
			Endpoint:   cfg.SourceURL,
			Timeout:    cfg.SourceTimeout,
			MaxElapsed: cfg.SourceMaxElapsed,
		}, logger.With().Str("component", "source").Logger())
	case config.SourceKindFile:
		return source.NewFile(cfg.SourcePath, logger.With().Str("component", "source").Logger())
	case config.SourceKindMock, "":
		return source.NewMock(), nil
	default:
		return nil, fmt.Errorf("unsupported source kind %q", cfg.SourceKind)
	}
}

func importOptions(cfg *config.Config) pipeline.Options {
	return pipeline.Options{
		FuzzyThreshold: cfg.FuzzyThreshold,
		ChunkSize:      cfg.ChunkSize,
		FetchCount:     cfg.FetchCount,
		LockPath:       cfg.LockPath,
	}
}

func newImportService(cfg *config.Config, opts pipeline.Options, pool *db.Pool, logger zerolog.Logger) (*pipeline.Service, error) {
	src, err := newSource(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("build book source: %w", err)
	}
	return pipeline.NewService(src, pool, pool, opts, logger.With().Str("component", "import").Logger())
}

func initTelemetry(cfg *config.Config) error {
	return telemetry.Init(context.Background(), telemetry.Options{
		Enabled:     cfg.OTelEnabled,
		Stdout:      cfg.OTelStdout,
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: "bookimport",
		Version:     Version,
	})
}

func shutdownTelemetry(logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := telemetry.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("telemetry shutdown failed")
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
