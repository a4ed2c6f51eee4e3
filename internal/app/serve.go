package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"horse.fit/bookimport/internal/cli"
	"horse.fit/bookimport/internal/httpapi"
	"horse.fit/bookimport/internal/schedule"
)

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	host := fs.String("host", "0.0.0.0", "Host interface to bind")
	port := fs.Int("port", 8090, "HTTP port")
	readTimeout := fs.Duration("read-timeout", 10*time.Second, "HTTP read timeout")
	writeTimeout := fs.Duration("write-timeout", 30*time.Second, "HTTP write timeout")
	shutdownTimeout := fs.Duration("shutdown-timeout", 10*time.Second, "Graceful HTTP shutdown timeout")
	noSchedule := fs.Bool("no-schedule", false, "Serve the admin API without the cron scheduler")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if err := validatePort(*port, "--port"); err != nil {
		fmt.Fprintln(os.Stderr, err)
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
		logger.Error().Err(err).Msg("serve failed to connect to database")
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer pool.Close()

	svc, err := newImportService(cfg, importOptions(cfg), pool, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build import service: %v\n", err)
		return 1
	}

	srv := httpapi.NewServer(svc, pool, logger.With().Str("component", "http").Logger(), httpapi.Options{
		Host:            *host,
		Port:            *port,
		ReadTimeout:     *readTimeout,
		WriteTimeout:    *writeTimeout,
		ShutdownTimeout: *shutdownTimeout,
		AdminTokenHash:  cfg.AdminTokenHash,
	})

	var scheduler *schedule.Scheduler
	if !*noSchedule {
		scheduler, err = schedule.New(svc, schedule.Options{
			Spec:            cfg.Schedule,
			RunTimeout:      cfg.RunTimeout,
			ShutdownTimeout: cfg.RunTimeout,
		}, logger.With().Str("component", "scheduler").Logger())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid schedule: %v\n", err)
			return 2
		}
	}

	sigCtx, stop := signalContext()
	defer stop()
	group, ctx := errgroup.WithContext(sigCtx)

	group.Go(func() error {
		return srv.Start(ctx)
	})
	if scheduler != nil {
		group.Go(func() error {
			if err := scheduler.Run(ctx); err != nil {
				return fmt.Errorf("scheduler shutdown: %w", err)
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		logger.Error().Err(err).Str("host", *host).Int("port", *port).Msg("serve failed")
		fmt.Fprintf(os.Stderr, "Serve failed: %v\n", err)
		return 1
	}
	return 0
}
