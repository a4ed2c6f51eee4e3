package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/bookimport/internal/cli"
	"horse.fit/bookimport/internal/schedule"
)

func runSchedule(args []string) int {
	fs := flag.NewFlagSet("schedule", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	spec := fs.String("spec", "", "Cron spec overriding IMPORT_SCHEDULE")
	shutdownTimeout := fs.Duration("shutdown-timeout", 5*time.Minute, "How long to wait for an in-flight import on shutdown")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, logger, err := loadConfig(envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if err := initTelemetry(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize telemetry: %v\n", err)
		return 1
	}
	defer shutdownTelemetry(logger)

	pool, err := connectPool(cfg, defaultConnectTimeout)
	if err != nil {
		logger.Error().Err(err).Msg("database connection failed")
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer pool.Close()

	svc, err := newImportService(cfg, importOptions(cfg), pool, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build import service: %v\n", err)
		return 1
	}

	cronSpec := cfg.Schedule
	if *spec != "" {
		cronSpec = *spec
	}
	scheduler, err := schedule.New(svc, schedule.Options{
		Spec:            cronSpec,
		RunTimeout:      cfg.RunTimeout,
		ShutdownTimeout: *shutdownTimeout,
	}, logger.With().Str("component", "scheduler").Logger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid schedule: %v\n", err)
		return 2
	}

	ctx, stop := signalContext()
	defer stop()

	if err := scheduler.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("scheduler stopped uncleanly")
		return 1
	}
	return 0
}
