package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const maxRunErrorLength = 4000

// RunCounts are the counters recorded on an import run row.
type RunCounts struct {
	Fetched      int
	SkippedExact int
	SkippedFuzzy int
	Accepted     int
	Committed    int
	Chunks       int
}

// CreateImportRun records a running import at stage. Callers pass their own stage names.
func (p *Pool) CreateImportRun(ctx context.Context, triggeredBy, stage string, startedAt time.Time) (ImportRun, error) {
	if p == nil || p.gdb == nil {
		return ImportRun{}, fmt.Errorf("database pool is not initialized")
	}

	trigger := strings.TrimSpace(triggeredBy)
	if trigger == "" {
		trigger = "manual"
	}
	run := ImportRun{
		RunUUID:     uuid.NewString(),
		TriggeredBy: trigger,
		Status:      RunStatusRunning,
		Stage:       stage,
		StartedAt:   startedAt.UTC(),
	}
	if err := p.gdb.WithContext(ctx).Create(&run).Error; err != nil {
		return ImportRun{}, fmt.Errorf("insert import_runs: %w", err)
	}
	return run, nil
}

func (p *Pool) CompleteImportRun(ctx context.Context, runID int64, stage string, counts RunCounts, finishedAt time.Time) error {
	return p.finishImportRun(ctx, runID, map[string]any{
		"status":        RunStatusCompleted,
		"stage":         stage,
		"error_message": nil,
	}, counts, finishedAt)
}

func (p *Pool) FailImportRun(ctx context.Context, runID int64, stage string, counts RunCounts, cause error, finishedAt time.Time) error {
	msg := "unknown error"
	if cause != nil {
		msg = truncateMessage(cause.Error(), maxRunErrorLength)
	}
	return p.finishImportRun(ctx, runID, map[string]any{
		"status":        RunStatusFailed,
		"stage":         stage,
		"error_message": msg,
	}, counts, finishedAt)
}

func (p *Pool) finishImportRun(ctx context.Context, runID int64, fields map[string]any, counts RunCounts, finishedAt time.Time) error {
	if p == nil || p.gdb == nil {
		return fmt.Errorf("database pool is not initialized")
	}

	finished := finishedAt.UTC()
	fields["items_fetched"] = counts.Fetched
	fields["skipped_exact"] = counts.SkippedExact
	fields["skipped_fuzzy"] = counts.SkippedFuzzy
	fields["items_accepted"] = counts.Accepted
	fields["items_committed"] = counts.Committed
	fields["chunks_committed"] = counts.Chunks
	fields["finished_at"] = finished
	fields["updated_at"] = finished

	res := p.gdb.WithContext(ctx).
		Model(&ImportRun{}).
		Where("run_id = ?", runID).
		Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update import_runs: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update import_runs run_id=%d: %w", runID, ErrNotFound)
	}
	return nil
}

// ListImportRuns returns the newest runs first.
func (p *Pool) ListImportRuns(ctx context.Context, limit int) ([]ImportRun, error) {
	if p == nil || p.gdb == nil {
		return nil, fmt.Errorf("database pool is not initialized")
	}
	if limit <= 0 {
		limit = 20
	}

	var runs []ImportRun
	err := p.gdb.WithContext(ctx).
		Order("started_at DESC").
		Order("run_id DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("list import_runs: %w", err)
	}
	return runs, nil
}

func (p *Pool) GetImportRunByUUID(ctx context.Context, runUUID string) (ImportRun, error) {
	if p == nil || p.gdb == nil {
		return ImportRun{}, fmt.Errorf("database pool is not initialized")
	}

	var run ImportRun
	err := p.gdb.WithContext(ctx).
		Where("run_uuid = ?", strings.TrimSpace(runUUID)).
		Take(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ImportRun{}, ErrNotFound
	}
	if err != nil {
		return ImportRun{}, fmt.Errorf("get import_runs: %w", err)
	}
	return run, nil
}

// truncateMessage keeps at most limit runes of msg and always returns valid UTF-8, which
// postgres requires for text columns.
func truncateMessage(msg string, limit int) string {
	msg = strings.ToValidUTF8(strings.TrimSpace(msg), "\uFFFD")
	if utf8.RuneCountInString(msg) <= limit {
		return msg
	}
	return string([]rune(msg)[:limit])
}
