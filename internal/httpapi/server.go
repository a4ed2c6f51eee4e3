package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"horse.fit/bookimport/internal/db"
	"horse.fit/bookimport/internal/globaltime"
	"horse.fit/bookimport/internal/pipeline"
)

const (
	defaultRunListLimit = 20
	maxRunListLimit     = 200
)

// Importer starts import runs. *pipeline.Service implements it.
type Importer interface {
	Run(ctx context.Context, trigger string) (pipeline.Summary, error)
	State() pipeline.Stage
}

// RunStore reads the import ledger. *db.Pool implements it.
type RunStore interface {
	Ping(ctx context.Context) error
	CountBooks(ctx context.Context) (int64, error)
	ListImportRuns(ctx context.Context, limit int) ([]db.ImportRun, error)
	GetImportRunByUUID(ctx context.Context, runUUID string) (db.ImportRun, error)
}

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// AdminTokenHash is the bcrypt hash guarding POST /api/v1/imports. Empty leaves it open.
	AdminTokenHash string
}

type Server struct {
	importer Importer
	store    RunStore
	logger   zerolog.Logger
	opts     Options

	runCtx context.Context
	runWG  sync.WaitGroup
}

type importRunItem struct {
	RunUUID         string     `json:"run_uuid"`
	TriggeredBy     string     `json:"triggered_by"`
	Status          string     `json:"status"`
	Stage           string     `json:"stage"`
	ItemsFetched    int        `json:"items_fetched"`
	SkippedExact    int        `json:"skipped_exact"`
	SkippedFuzzy    int        `json:"skipped_fuzzy"`
	ItemsAccepted   int        `json:"items_accepted"`
	ItemsCommitted  int        `json:"items_committed"`
	ChunksCommitted int        `json:"chunks_committed"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

type summaryResponse struct {
	RunUUID      string `json:"run_uuid,omitempty"`
	Fetched      int    `json:"fetched"`
	SkippedExact int    `json:"skipped_exact"`
	SkippedFuzzy int    `json:"skipped_fuzzy"`
	Accepted     int    `json:"accepted"`
	Committed    int    `json:"committed"`
	Chunks       int    `json:"chunks"`
}

func NewServer(importer Importer, store RunStore, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8090
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	return &Server{
		importer: importer,
		store:    store,
		logger:   logger,
		runCtx:   context.Background(),
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
			AdminTokenHash:  strings.TrimSpace(opts.AdminTokenHash),
		},
	}
}

// Handler builds the echo router.
func (s *Server) Handler() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			event := s.logger.Info()
			msg := "http request"
			if v.Error != nil {
				event = s.logger.Error().Err(v.Error)
				msg = "http request failed"
			}
			event.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg(msg)
			return nil
		},
	}))

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/imports", s.handleListImports)
	api.GET("/imports/:run_uuid", s.handleGetImport)
	api.POST("/imports", s.handleTriggerImport, s.requireAdminToken())
	return e
}

// Start serves until ctx is done, then shuts down and waits for imports it started.
func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.importer == nil || s.store == nil {
		return fmt.Errorf("server is not initialized")
	}

	s.runCtx = ctx
	e := s.Handler()

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("bookimport admin server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	<-shutdownDone
	s.runWG.Wait()
	s.logger.Info().Msg("bookimport admin server stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

func (s *Server) handleHealth(c echo.Context) error {
	ctx := c.Request().Context()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Error().Err(err).Msg("health check ping failed")
		return errorWithStatus(c, http.StatusServiceUnavailable, "Database unavailable")
	}
	books, err := s.store.CountBooks(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("health check count failed")
		return errorWithStatus(c, http.StatusServiceUnavailable, "Database unavailable")
	}

	return success(c, map[string]any{
		"service":      "bookimport",
		"time":         globaltime.UTC(),
		"import_state": s.importer.State(),
		"books":        books,
	})
}

func (s *Server) handleListImports(c echo.Context) error {
	limit, err := parsePositiveInt(c.QueryParam("limit"), defaultRunListLimit, 1, maxRunListLimit)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	runs, err := s.store.ListImportRuns(c.Request().Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("list import runs failed")
		return internalError(c, "Failed to load import runs")
	}

	items := make([]importRunItem, 0, len(runs))
	for _, run := range runs {
		items = append(items, toImportRunItem(run))
	}
	return success(c, map[string]any{
		"items": items,
		"limit": limit,
	})
}

func (s *Server) handleGetImport(c echo.Context) error {
	runUUID := strings.TrimSpace(c.Param("run_uuid"))
	if runUUID == "" {
		return failValidation(c, map[string]string{"run_uuid": "is required"})
	}

	run, err := s.store.GetImportRunByUUID(c.Request().Context(), runUUID)
	if err != nil {
		if db.IsNotFound(err) {
			return failNotFound(c, "Import run not found")
		}
		s.logger.Error().Err(err).Str("run_uuid", runUUID).Msg("get import run failed")
		return internalError(c, "Failed to load import run")
	}
	return success(c, toImportRunItem(run))
}

// handleTriggerImport starts a run in the background and answers 202, or runs it inline
// when ?wait=true and answers with the summary.
func (s *Server) handleTriggerImport(c echo.Context) error {
	wait, err := parseBool(c.QueryParam("wait"))
	if err != nil {
		return failValidation(c, map[string]string{"wait": err.Error()})
	}

	if wait {
		summary, err := s.importer.Run(c.Request().Context(), pipeline.TriggerAPI)
		if err != nil {
			return s.importFailure(c, summary, err)
		}
		return success(c, toSummaryResponse(summary))
	}

	if s.importer.State().Active() {
		return fail(c, http.StatusConflict, pipeline.ErrRunInProgress.Error(), nil)
	}

	s.runWG.Add(1)
	go func() {
		defer s.runWG.Done()
		summary, err := s.importer.Run(s.runCtx, pipeline.TriggerAPI)
		switch {
		case errors.Is(err, pipeline.ErrRunInProgress):
			s.logger.Warn().Msg("api-triggered import skipped: another run took the guard first")
		case err != nil:
			s.logger.Error().Err(err).Str("run_uuid", summary.RunUUID).Msg("api-triggered import failed")
		}
	}()

	return successWithStatus(c, http.StatusAccepted, map[string]any{
		"state": "started",
	})
}

func (s *Server) importFailure(c echo.Context, summary pipeline.Summary, err error) error {
	data := map[string]any{"summary": toSummaryResponse(summary)}
	var runErr *pipeline.RunError
	if errors.As(err, &runErr) {
		data["stage"] = runErr.Stage
	}

	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		return fail(c, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, pipeline.ErrCancelled):
		return fail(c, http.StatusRequestTimeout, "Import cancelled", data)
	case errors.Is(err, pipeline.ErrSourceUnavailable):
		s.logger.Error().Err(err).Msg("api import failed")
		return errorWithData(c, http.StatusBadGateway, "Book source unavailable", data)
	case errors.Is(err, pipeline.ErrStoreUnavailable):
		s.logger.Error().Err(err).Msg("api import failed")
		return errorWithData(c, http.StatusServiceUnavailable, "Book store unavailable", data)
	default:
		s.logger.Error().Err(err).Msg("api import failed")
		return internalError(c, "Import failed")
	}
}

func toImportRunItem(run db.ImportRun) importRunItem {
	return importRunItem{
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
		ErrorMessage:    run.ErrorMessage,
		StartedAt:       run.StartedAt.UTC(),
		FinishedAt:      run.FinishedAt,
	}
}

func toSummaryResponse(summary pipeline.Summary) summaryResponse {
	return summaryResponse{
		RunUUID:      summary.RunUUID,
		Fetched:      summary.Fetched,
		SkippedExact: summary.SkippedExact,
		SkippedFuzzy: summary.SkippedFuzzy,
		Accepted:     summary.Accepted,
		Committed:    summary.Committed,
		Chunks:       summary.Chunks,
	}
}

func parsePositiveInt(raw string, defaultValue, minValue, maxValue int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < minValue || value > maxValue {
		return 0, fmt.Errorf("must be between %d and %d", minValue, maxValue)
	}
	return value, nil
}

func parseBool(raw string) (bool, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return false, nil
	}
	value, err := strconv.ParseBool(trimmed)
	if err != nil {
		return false, fmt.Errorf("must be a boolean")
	}
	return value, nil
}
