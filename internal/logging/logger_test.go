package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewWithWriter_AddsServiceField(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, " INFO ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Info().Int("accepted", 3).Msg("import completed")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["service"] != serviceName {
		t.Fatalf("unexpected service field: %v", line["service"])
	}
	if line["accepted"] != float64(3) {
		t.Fatalf("unexpected accepted field: %v", line["accepted"])
	}
}

func TestNewWithWriter_RejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	if _, err := NewWithWriter(&bytes.Buffer{}, "loud"); err == nil {
		t.Fatalf("expected unknown level to fail")
	}
}

func TestNewWithWriter_FiltersBelowLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, "warn")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Debug().Msg("chunk committed")
	if buf.Len() != 0 {
		t.Fatalf("expected debug line to be filtered, got %q", buf.String())
	}
}
