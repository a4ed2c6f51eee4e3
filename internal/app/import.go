package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"horse.fit/bookimport/internal/cli"
	"horse.fit/bookimport/internal/pipeline"
)

func runImport(args []string) int {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 0, "Run timeout (default IMPORT_RUN_TIMEOUT)")
	count := fs.Int("count", 0, "Candidates to fetch (default IMPORT_FETCH_COUNT)")
	threshold := fs.Int("threshold", -1, "Fuzzy edit-distance threshold (default IMPORT_FUZZY_THRESHOLD)")
	chunkSize := fs.Int("chunk-size", 0, "Books per commit transaction (default IMPORT_CHUNK_SIZE)")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "import does not accept positional arguments")
		return 2
	}
	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	cfg, logger, err := loadConfig(envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	opts := importOptions(cfg)
	if *count > 0 {
		opts.FetchCount = *count
	}
	if *threshold >= 0 {
		opts.FuzzyThreshold = *threshold
	}
	if *chunkSize > 0 {
		opts.ChunkSize = *chunkSize
	}
	if err := opts.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid import options: %v\n", err)
		return 2
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

	svc, err := newImportService(cfg, opts, pool, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build import service: %v\n", err)
		return 1
	}

	runTimeout := *timeout
	if runTimeout <= 0 {
		runTimeout = cfg.RunTimeout
	}
	sigCtx, stop := signalContext()
	defer stop()
	ctx, cancel := context.WithTimeout(sigCtx, runTimeout)
	defer cancel()

	summary, runErr := svc.RunImport(ctx)
	if outputFormat == outputFormatJSON {
		if err := printJSON(importReport(summary, runErr)); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
	} else {
		writeSummary(os.Stdout, summary)
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Import failed: %v\n", runErr)
		return 1
	}
	return 0
}

type importReportJSON struct {
	RunUUID      string `json:"run_uuid,omitempty"`
	Status       string `json:"status"`
	Stage        string `json:"stage,omitempty"`
	Error        string `json:"error,omitempty"`
	Fetched      int    `json:"fetched"`
	SkippedExact int    `json:"skipped_exact"`
	SkippedFuzzy int    `json:"skipped_fuzzy"`
	Accepted     int    `json:"accepted"`
	Committed    int    `json:"committed"`
	Chunks       int    `json:"chunks"`
}

func importReport(summary pipeline.Summary, runErr error) importReportJSON {
	report := importReportJSON{
		RunUUID:      summary.RunUUID,
		Status:       "completed",
		Fetched:      summary.Fetched,
		SkippedExact: summary.SkippedExact,
		SkippedFuzzy: summary.SkippedFuzzy,
		Accepted:     summary.Accepted,
		Committed:    summary.Committed,
		Chunks:       summary.Chunks,
	}
	if runErr != nil {
		report.Status = "failed"
		report.Error = runErr.Error()
		var typed *pipeline.RunError
		if errors.As(runErr, &typed) {
			report.Stage = string(typed.Stage)
		}
	}
	return report
}

func writeSummary(w io.Writer, summary pipeline.Summary) {
	if summary.RunUUID != "" {
		fmt.Fprintf(w, "run_uuid=%s\n", summary.RunUUID)
	}
	fmt.Fprintf(w, "fetched=%d skipped_exact=%d skipped_fuzzy=%d accepted=%d\n",
		summary.Fetched, summary.SkippedExact, summary.SkippedFuzzy, summary.Accepted)
	fmt.Fprintf(w, "committed=%d chunks=%d\n", summary.Committed, summary.Chunks)
}
