// Package schedule fires import runs on a cron schedule.
//
// Firings missed while the process was down are not replayed, and a tick that arrives while
// the previous run is still going is skipped.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"horse.fit/bookimport/internal/pipeline"
)

const (
	DefaultSpec            = "0 * * * *"
	defaultShutdownTimeout = 30 * time.Second
)

type Runner interface {
	Run(ctx context.Context, trigger string) (pipeline.Summary, error)
}

type Options struct {
	Spec            string
	RunTimeout      time.Duration
	ShutdownTimeout time.Duration
}

type Scheduler struct {
	cron    *cron.Cron
	entryID cron.EntryID
	runner  Runner
	opts    Options
	logger  zerolog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	stopped sync.Once
}

func New(runner Runner, opts Options, logger zerolog.Logger) (*Scheduler, error) {
	if runner == nil {
		return nil, errors.New("schedule runner is required")
	}
	spec := strings.TrimSpace(opts.Spec)
	if spec == "" {
		spec = DefaultSpec
	}
	opts.Spec = spec
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}

	cronLog := cronLogger{logger: logger}
	c := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:    c,
		runner:  runner,
		opts:    opts,
		logger:  logger,
		baseCtx: baseCtx,
		cancel:  cancel,
	}

	entryID, err := c.AddFunc(spec, s.fire)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	s.entryID = entryID
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().
		Str("schedule", s.opts.Spec).
		Time("next_run", s.Next()).
		Msg("import scheduler started")
}

// Next is the next firing time, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entryID).Next
}

// Run starts the scheduler and blocks until ctx is done, then stops it.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Start()
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	return s.Stop(stopCtx)
}

// Stop prevents new firings and waits for an in-flight run. If ctx ends first the run is
// cancelled, Stop still waits for it to return and then reports ctx's error.
func (s *Scheduler) Stop(ctx context.Context) error {
	var err error
	s.stopped.Do(func() {
		jobsDone := s.cron.Stop()
		select {
		case <-jobsDone.Done():
		case <-ctx.Done():
			s.logger.Warn().Msg("shutdown timeout reached; cancelling in-flight import")
			s.cancel()
			<-jobsDone.Done()
			err = ctx.Err()
		}
		s.cancel()
		s.logger.Info().Msg("import scheduler stopped")
	})
	return err
}

func (s *Scheduler) fire() {
	ctx := s.baseCtx
	if s.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RunTimeout)
		defer cancel()
	}

	summary, err := s.runner.Run(ctx, pipeline.TriggerSchedule)
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		s.logger.Warn().Msg("scheduled import skipped: another run is in progress")
	case err != nil:
		s.logger.Error().Err(err).Str("run_uuid", summary.RunUUID).Msg("scheduled import failed")
	default:
		s.logger.Info().
			Str("run_uuid", summary.RunUUID).
			Int("accepted", summary.Accepted).
			Int("chunks", summary.Chunks).
			Time("next_run", s.Next()).
			Msg("scheduled import finished")
	}
}

// cronLogger routes cron's own logging through zerolog.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
