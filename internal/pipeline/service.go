package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"horse.fit/bookimport/internal/catalog"
	"horse.fit/bookimport/internal/db"
	"horse.fit/bookimport/internal/dedup"
	"horse.fit/bookimport/internal/globaltime"
	"horse.fit/bookimport/internal/telemetry"
)

const (
	DefaultFetchCount = 100000

	TriggerManual   = "manual"
	TriggerSchedule = "schedule"
	TriggerAPI      = "api"

	ledgerWriteTimeout = 10 * time.Second
)

type Source interface {
	Fetch(ctx context.Context, count int) ([]catalog.Candidate, error)
}

type Store interface {
	BookWriter
	FindTitles(ctx context.Context, titles []string) ([]string, error)
}

// RunLedger records one row per run. *db.Pool implements it.
type RunLedger interface {
	CreateImportRun(ctx context.Context, triggeredBy, stage string, startedAt time.Time) (db.ImportRun, error)
	CompleteImportRun(ctx context.Context, runID int64, stage string, counts db.RunCounts, finishedAt time.Time) error
	FailImportRun(ctx context.Context, runID int64, stage string, counts db.RunCounts, cause error, finishedAt time.Time) error
}

type Options struct {
	FuzzyThreshold int
	ChunkSize      int
	FetchCount     int
	// LockPath, when set, also serializes runs across processes through a lock file.
	LockPath string
}

func DefaultOptions() Options {
	return Options{
		FuzzyThreshold: dedup.DefaultFuzzyThreshold,
		ChunkSize:      DefaultChunkSize,
		FetchCount:     DefaultFetchCount,
	}
}

func (o Options) Validate() error {
	if o.FuzzyThreshold < 0 {
		return fmt.Errorf("%w: fuzzy threshold must be >= 0, got %d", ErrInvalidOptions, o.FuzzyThreshold)
	}
	if o.ChunkSize < 1 {
		return fmt.Errorf("%w: chunk size must be >= 1, got %d", ErrInvalidOptions, o.ChunkSize)
	}
	if o.FetchCount < 1 {
		return fmt.Errorf("%w: fetch count must be >= 1, got %d", ErrInvalidOptions, o.FetchCount)
	}
	return nil
}

// Summary reports what a run did. On failure it holds the counts reached before the abort.
type Summary struct {
	RunUUID      string
	Fetched      int
	SkippedExact int
	SkippedFuzzy int
	Accepted     int
	Committed    int
	Chunks       int
}

func (s Summary) counts() db.RunCounts {
	return db.RunCounts{
		Fetched:      s.Fetched,
		SkippedExact: s.SkippedExact,
		SkippedFuzzy: s.SkippedFuzzy,
		Accepted:     s.Accepted,
		Committed:    s.Committed,
		Chunks:       s.Chunks,
	}
}

type Service struct {
	source    Source
	store     Store
	ledger    RunLedger
	opts      Options
	committer *Committer
	guard     *runGuard
	state     atomic.Value
	logger    zerolog.Logger
	tracer    trace.Tracer
	metrics   *runMetrics
}

// NewService builds an import service. ledger may be nil, in which case runs are not recorded.
func NewService(source Source, store Store, ledger RunLedger, opts Options, logger zerolog.Logger) (*Service, error) {
	if source == nil {
		return nil, fmt.Errorf("%w: source is required", ErrInvalidOptions)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidOptions)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	committer, err := NewCommitter(store, opts.ChunkSize, logger)
	if err != nil {
		return nil, err
	}

	s := &Service{
		source:    source,
		store:     store,
		ledger:    ledger,
		opts:      opts,
		committer: committer,
		guard:     &runGuard{lockPath: opts.LockPath},
		logger:    logger,
		tracer:    telemetry.Tracer(scopeName),
		metrics:   newRunMetrics(telemetry.Meter(scopeName)),
	}
	s.state.Store(StageIdle)
	return s, nil
}

// State is the stage of the current run, or the final stage of the last one.
func (s *Service) State() Stage {
	return s.state.Load().(Stage)
}

func (s *Service) Options() Options {
	return s.opts
}

// RunImport runs one manual import.
func (s *Service) RunImport(ctx context.Context) (Summary, error) {
	return s.Run(ctx, TriggerManual)
}

// Run fetches candidates, drops the ones whose title already exists and commits the rest.
// It fails fast with ErrRunInProgress while another run holds the guard. Any other failure
// is a *RunError.
func (s *Service) Run(ctx context.Context, trigger string) (Summary, error) {
	release, err := s.guard.acquire()
	if err != nil {
		return Summary{}, err
	}
	defer release()
	// The run is active from the moment it holds the guard.
	s.state.Store(StageFetching)

	ctx, span := s.tracer.Start(ctx, "import.run",
		trace.WithAttributes(attribute.String("import.trigger", trigger)),
	)
	defer span.End()

	startedAt := globaltime.UTC()
	var summary Summary
	var runID int64
	if s.ledger != nil {
		run, err := s.ledger.CreateImportRun(ctx, trigger, string(StageFetching), startedAt)
		if err != nil {
			runErr := newRunError(StageIdle, summary, ErrStoreUnavailable, fmt.Errorf("record import run: %w", err))
			s.state.Store(StageFailed)
			s.finishSpan(ctx, span, startedAt, runErr)
			return summary, runErr
		}
		runID = run.RunID
		summary.RunUUID = run.RunUUID
	}

	logger := s.logger.With().
		Str("run_uuid", summary.RunUUID).
		Str("trigger", trigger).
		Logger()
	logger.Info().
		Int("fetch_count", s.opts.FetchCount).
		Int("fuzzy_threshold", s.opts.FuzzyThreshold).
		Int("chunk_size", s.opts.ChunkSize).
		Msg("import started")

	summary, runErr := s.execute(ctx, logger, summary)
	if runErr != nil {
		s.state.Store(StageFailed)
		s.finishSpan(ctx, span, startedAt, runErr)
		if s.ledger != nil {
			if markErr := s.markFailed(ctx, runID, runErr); markErr != nil {
				logger.Error().Err(markErr).Msg("failed to mark import run failed")
			}
		}
		logger.Error().
			Err(runErr.Err).
			Str("stage", string(runErr.Stage)).
			Int("fetched", summary.Fetched).
			Int("committed", summary.Committed).
			Int("chunks", summary.Chunks).
			Msg("import failed")
		return summary, runErr
	}

	if s.ledger != nil {
		ledgerCtx, cancel := ledgerContext(ctx)
		err := s.ledger.CompleteImportRun(ledgerCtx, runID, string(StageDone), summary.counts(), globaltime.UTC())
		cancel()
		if err != nil {
			s.state.Store(StageFailed)
			runErr := newRunError(StageDone, summary, ErrStoreUnavailable, fmt.Errorf("mark import run completed: %w", err))
			s.finishSpan(ctx, span, startedAt, runErr)
			return summary, runErr
		}
	}

	s.state.Store(StageDone)
	s.finishSpan(ctx, span, startedAt, nil)
	logger.Info().
		Int("fetched", summary.Fetched).
		Int("skipped_exact", summary.SkippedExact).
		Int("skipped_fuzzy", summary.SkippedFuzzy).
		Int("accepted", summary.Accepted).
		Int("committed", summary.Committed).
		Int("chunks", summary.Chunks).
		Dur("elapsed", globaltime.Since(startedAt)).
		Msg("import completed")
	return summary, nil
}

func (s *Service) execute(ctx context.Context, logger zerolog.Logger, summary Summary) (Summary, *RunError) {
	s.state.Store(StageFetching)
	fetchCtx, fetchSpan := s.tracer.Start(ctx, "import.fetch")
	candidates, err := s.source.Fetch(fetchCtx, s.opts.FetchCount)
	endSpan(fetchSpan, err)
	if err != nil {
		return summary, newRunError(StageFetching, summary, ErrSourceUnavailable, fmt.Errorf("fetch candidates: %w", err))
	}
	summary.Fetched = len(candidates)
	s.metrics.fetched.Add(ctx, int64(summary.Fetched))
	logger.Debug().Int("fetched", summary.Fetched).Msg("fetched candidates")

	s.state.Store(StageFiltering)
	if err := ctx.Err(); err != nil {
		return summary, newRunError(StageFiltering, summary, ErrCancelled, err)
	}
	filterCtx, filterSpan := s.tracer.Start(ctx, "import.filter")
	existing, err := s.store.FindTitles(filterCtx, catalog.IncomingTitles(candidates))
	if err != nil {
		endSpan(filterSpan, err)
		return summary, newRunError(StageFiltering, summary, ErrStoreUnavailable, fmt.Errorf("load existing titles: %w", err))
	}
	outcome := dedup.Filter(candidates, existing, s.opts.FuzzyThreshold)
	filterSpan.SetAttributes(
		attribute.Int("import.existing", len(existing)),
		attribute.Int("import.accepted", len(outcome.Accepted)),
	)
	endSpan(filterSpan, nil)

	summary.SkippedExact = outcome.SkippedExact
	summary.SkippedFuzzy = outcome.SkippedFuzzy
	summary.Accepted = len(outcome.Accepted)
	s.metrics.skippedExact.Add(ctx, int64(summary.SkippedExact))
	s.metrics.skippedFuzzy.Add(ctx, int64(summary.SkippedFuzzy))
	logger.Info().
		Int("existing", len(existing)).
		Int("skipped_exact", summary.SkippedExact).
		Int("skipped_fuzzy", summary.SkippedFuzzy).
		Int("accepted", summary.Accepted).
		Msg("filtered candidates")

	s.state.Store(StageCommitting)
	commitCtx, commitSpan := s.tracer.Start(ctx, "import.commit")
	result, err := s.committer.Commit(commitCtx, outcome.Accepted)
	summary.Chunks = result.Chunks
	summary.Committed = result.Committed
	s.metrics.chunks.Add(ctx, int64(result.Chunks))
	s.metrics.committed.Add(ctx, int64(result.Committed))
	commitSpan.SetAttributes(attribute.Int("import.chunks", result.Chunks))
	endSpan(commitSpan, err)
	if err != nil {
		return summary, newRunError(StageCommitting, summary, ErrStoreUnavailable, err)
	}
	return summary, nil
}

func (s *Service) markFailed(ctx context.Context, runID int64, runErr *RunError) error {
	ledgerCtx, cancel := ledgerContext(ctx)
	defer cancel()
	return s.ledger.FailImportRun(ledgerCtx, runID, string(runErr.Stage), runErr.Summary.counts(), runErr, globaltime.UTC())
}

func (s *Service) finishSpan(ctx context.Context, span trace.Span, startedAt time.Time, runErr *RunError) {
	outcome := "completed"
	if runErr != nil {
		outcome = "failed"
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		span.SetAttributes(attribute.String("import.stage", string(runErr.Stage)))
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	s.metrics.runs.Add(ctx, 1, attrs)
	s.metrics.duration.Record(ctx, globaltime.Since(startedAt).Seconds(), attrs)
}

// ledgerContext keeps ledger writes alive after the run context was cancelled, so an
// aborted run is still recorded as failed.
func ledgerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), ledgerWriteTimeout)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
