package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"horse.fit/bookimport/internal/cli"
	"horse.fit/bookimport/internal/db"
)

type importRunJSON struct {
	RunUUID         string  `json:"run_uuid"`
	TriggeredBy     string  `json:"triggered_by"`
	Status          string  `json:"status"`
	Stage           string  `json:"stage"`
	ItemsFetched    int     `json:"items_fetched"`
	SkippedExact    int     `json:"skipped_exact"`
	SkippedFuzzy    int     `json:"skipped_fuzzy"`
	ItemsAccepted   int     `json:"items_accepted"`
	ItemsCommitted  int     `json:"items_committed"`
	ChunksCommitted int     `json:"chunks_committed"`
	ErrorMessage    *string `json:"error_message,omitempty"`
	StartedAt       string  `json:"started_at"`
	FinishedAt      string  `json:"finished_at,omitempty"`
}

func runRuns(args []string) int {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	limit := fs.Int("limit", 20, "Maximum number of runs to list")
	format := fs.String("format", outputFormatTable, "Output format: table or json")
	timeout := fs.Duration("timeout", 10*time.Second, "Query timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *limit < 1 {
		fmt.Fprintln(os.Stderr, "--limit must be >= 1")
		return 2
	}
	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	cfg, logger, err := loadConfig(envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	pool, err := connectPool(cfg, *timeout)
	if err != nil {
		logger.Error().Err(err).Msg("runs failed to connect to database")
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	runs, err := pool.ListImportRuns(ctx, *limit)
	if err != nil {
		logger.Error().Err(err).Msg("list import runs failed")
		fmt.Fprintf(os.Stderr, "List runs failed: %v\n", err)
		return 1
	}

	if err := writeRuns(os.Stdout, runs, outputFormat); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write output: %v\n", err)
		return 1
	}
	return 0
}

func writeRuns(w io.Writer, runs []db.ImportRun, format string) error {
	if format == outputFormatJSON {
		items := make([]importRunJSON, 0, len(runs))
		for _, run := range runs {
			items = append(items, toImportRunJSON(run))
		}
		return writeJSON(w, items)
	}

	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "no import runs recorded")
		return err
	}

	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			run.RunUUID,
			run.TriggeredBy,
			run.Status,
			run.Stage,
			strconv.Itoa(run.ItemsFetched),
			strconv.Itoa(run.SkippedExact),
			strconv.Itoa(run.SkippedFuzzy),
			strconv.Itoa(run.ItemsCommitted),
			formatUTCTimestamp(run.StartedAt),
			truncateForTable(pointerStringOrEmpty(run.ErrorMessage), 60),
		})
	}
	headers := []string{"RUN", "TRIGGER", "STATUS", "STAGE", "FETCHED", "EXACT", "FUZZY", "COMMITTED", "STARTED", "ERROR"}
	return writeTable(w, headers, rows)
}

func toImportRunJSON(run db.ImportRun) importRunJSON {
	item := importRunJSON{
		RunUUID:         run.RunUUID,
		TriggeredBy:     run.TriggeredBy,
		Status:          run.Status,
		Stage:           run.Stage,
		ItemsFetched:    run.ItemsFetched,
		SkippedExact:    run.SkippedExact,
		SkippedFuzzy:    run.SkippedFuzzy,
		ItemsAccepted:   run.ItemsAccepted,
		ItemsCommitted:  run.ItemsCommitted,
		ChunksCommitted: run.ChunksCommitted,
		StartedAt:       formatUTCTimestamp(run.StartedAt),
		FinishedAt:      formatUTCTimestampPtr(run.FinishedAt),
	}
	if msg := strings.TrimSpace(pointerStringOrEmpty(run.ErrorMessage)); msg != "" {
		item.ErrorMessage = &msg
	}
	return item
}
