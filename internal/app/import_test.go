package app

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"horse.fit/bookimport/internal/pipeline"
)

func TestImportReportCompleted(t *testing.T) {
	t.Parallel()

	summary := pipeline.Summary{RunUUID: "run-7", Fetched: 4, SkippedExact: 1, SkippedFuzzy: 1, Accepted: 1, Committed: 1, Chunks: 1}
	report := importReport(summary, nil)
	if report.Status != "completed" || report.Error != "" || report.Stage != "" {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Fetched != 4 || report.Committed != 1 || report.RunUUID != "run-7" {
		t.Fatalf("counts not carried over: %+v", report)
	}
}

func TestImportReportFailedCarriesStage(t *testing.T) {
	t.Parallel()

	runErr := &pipeline.RunError{
		Stage: pipeline.StageCommitting,
		Kind:  pipeline.ErrStoreUnavailable,
		Err:   errors.New("disk full"),
	}
	report := importReport(pipeline.Summary{Committed: 2000}, fmt.Errorf("run: %w", runErr))
	if report.Status != "failed" || report.Stage != "committing" {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Committed != 2000 || report.Error == "" {
		t.Fatalf("expected partial counts and error text: %+v", report)
	}
}

func TestImportReportFailedWithoutStage(t *testing.T) {
	t.Parallel()

	report := importReport(pipeline.Summary{}, pipeline.ErrRunInProgress)
	if report.Status != "failed" || report.Stage != "" {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestWriteSummary(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	writeSummary(&out, pipeline.Summary{RunUUID: "run-1", Fetched: 3, Accepted: 3, Committed: 3, Chunks: 1})
	want := "run_uuid=run-1\nfetched=3 skipped_exact=0 skipped_fuzzy=0 accepted=3\ncommitted=3 chunks=1\n"
	if out.String() != want {
		t.Fatalf("unexpected summary:\n%s\nwant:\n%s", out.String(), want)
	}
}
