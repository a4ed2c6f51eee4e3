package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// Stage is a step of the import state machine.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageFetching   Stage = "fetching"
	StageFiltering  Stage = "filtering"
	StageCommitting Stage = "committing"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// Active reports whether a run is in progress at this stage.
func (s Stage) Active() bool {
	switch s {
	case StageFetching, StageFiltering, StageCommitting:
		return true
	default:
		return false
	}
}

var (
	ErrInvalidOptions    = errors.New("invalid import options")
	ErrSourceUnavailable = errors.New("book source unavailable")
	ErrStoreUnavailable  = errors.New("book store unavailable")
	ErrCancelled         = errors.New("import cancelled")
	ErrRunInProgress     = errors.New("import run already in progress")
)

// RunError describes an aborted run: the stage it was in, the counts reached so far and
// the kind of failure. errors.Is matches both the kind sentinel and the underlying cause.
type RunError struct {
	Stage   Stage
	Summary Summary
	Kind    error
	Err     error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("import failed during %s (%v): %v", e.Stage, e.Kind, e.Err)
}

func (e *RunError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func newRunError(stage Stage, summary Summary, kind error, err error) *RunError {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		kind = ErrCancelled
	}
	return &RunError{
		Stage:   stage,
		Summary: summary,
		Kind:    kind,
		Err:     err,
	}
}
