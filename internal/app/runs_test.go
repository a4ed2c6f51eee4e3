package app

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"horse.fit/bookimport/internal/db"
)

func sampleRuns() []db.ImportRun {
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	finished := started.Add(2 * time.Minute)
	msg := "import failed during committing (store unavailable): disk full"
	return []db.ImportRun{
		{
			RunUUID:        "run-2",
			TriggeredBy:    "schedule",
			Status:         db.RunStatusFailed,
			Stage:          "committing",
			ItemsFetched:   4501,
			ItemsCommitted: 2000,
			ErrorMessage:   &msg,
			StartedAt:      started,
			FinishedAt:     &finished,
		},
		{
			RunUUID:     "run-1",
			TriggeredBy: "manual",
			Status:      db.RunStatusRunning,
			Stage:       "fetching",
			StartedAt:   started.Add(-time.Hour),
		},
	}
}

func TestWriteRunsTable(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	if err := writeRuns(&out, sampleRuns(), outputFormatTable); err != nil {
		t.Fatalf("writeRuns failed: %v", err)
	}
	text := out.String()
	if !strings.HasPrefix(text, "RUN") {
		t.Fatalf("expected header row, got %q", text)
	}
	if !strings.Contains(text, "run-2") || !strings.Contains(text, "2026-03-01T09:00:00Z") {
		t.Fatalf("missing run row: %q", text)
	}
}

func TestWriteRunsEmptyTable(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	if err := writeRuns(&out, nil, outputFormatTable); err != nil {
		t.Fatalf("writeRuns failed: %v", err)
	}
	if strings.TrimSpace(out.String()) != "no import runs recorded" {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestWriteRunsJSON(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	if err := writeRuns(&out, sampleRuns(), outputFormatJSON); err != nil {
		t.Fatalf("writeRuns failed: %v", err)
	}

	var decoded []importRunJSON
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(decoded))
	}
	if decoded[0].FinishedAt != "2026-03-01T09:02:00Z" || decoded[0].ErrorMessage == nil {
		t.Fatalf("unexpected failed run: %+v", decoded[0])
	}
	if decoded[1].FinishedAt != "" || decoded[1].ErrorMessage != nil {
		t.Fatalf("running run should have no finish or error: %+v", decoded[1])
	}
}
