package db

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"horse.fit/bookimport/internal/catalog"
	"horse.fit/bookimport/internal/config"
)

func newTestPool(t *testing.T) *Pool {
	t.Helper()

	cfg := &config.Config{
		Environment:    "test",
		LogLevel:       "silent",
		DatabaseDriver: config.DriverSQLite,
		DatabaseURL:    filepath.Join(t.TempDir(), "books.db"),
		DBMinConns:     1,
		DBMaxConns:     1,
	}
	pool, err := NewPool(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	return pool
}

func TestFindTitles_CaseInsensitiveReturnsStoredSpelling(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)
	ctx := context.Background()

	_, err := pool.InsertBooks(ctx, []catalog.Candidate{
		{Title: "Crime and punishment", Price: decimal.NewFromInt(10)},
		{Title: "Emma", Price: decimal.RequireFromString("7.50")},
		{Title: "Dune", Price: decimal.NewFromInt(12)},
	})
	require.NoError(t, err)

	got, err := pool.FindTitles(ctx, []string{"CRIME AND PUNISHMENT", " emma ", "Ulysses"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Crime and punishment", "Emma"}, got)
}

func TestFindTitles_EmptyInput(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)
	got, err := pool.FindTitles(context.Background(), []string{"", "  "})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFindTitles_SpansLookupBatches(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)
	ctx := context.Background()

	books := make([]catalog.Candidate, 0, titleLookupBatch+10)
	titles := make([]string, 0, titleLookupBatch+10)
	for i := 0; i < titleLookupBatch+10; i++ {
		title := "Book " + strconv.Itoa(i)
		books = append(books, catalog.Candidate{Title: title, Price: decimal.NewFromInt(1)})
		titles = append(titles, title)
	}
	_, err := pool.InsertBooks(ctx, books)
	require.NoError(t, err)

	got, err := pool.FindTitles(ctx, titles)
	require.NoError(t, err)
	assert.Len(t, got, len(titles))
}

func TestInsertBooks_PersistsPrice(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)
	ctx := context.Background()

	n, err := pool.InsertBooks(ctx, []catalog.Candidate{{Title: "Persuasion", Price: decimal.RequireFromString("19.99")}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var stored Book
	require.NoError(t, pool.GORM().WithContext(ctx).Where("title = ?", "Persuasion").Take(&stored).Error)
	assert.True(t, stored.Price.Equal(decimal.RequireFromString("19.99")), "price=%s", stored.Price)
	assert.NotZero(t, stored.BookID)

	count, err := pool.CountBooks(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestInsertBooks_CancelledContext(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pool.InsertBooks(ctx, []catalog.Candidate{{Title: "Emma", Price: decimal.NewFromInt(1)}})
	require.Error(t, err)

	count, err := pool.CountBooks(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestImportRunLedger_Lifecycle(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	run, err := pool.CreateImportRun(ctx, "schedule", "fetching", started)
	require.NoError(t, err)
	assert.NotEmpty(t, run.RunUUID)
	assert.Equal(t, RunStatusRunning, run.Status)
	assert.Equal(t, "fetching", run.Stage)

	counts := RunCounts{Fetched: 10, SkippedExact: 2, SkippedFuzzy: 1, Accepted: 7, Committed: 7, Chunks: 1}
	require.NoError(t, pool.CompleteImportRun(ctx, run.RunID, "done", counts, started.Add(time.Minute)))

	stored, err := pool.GetImportRunByUUID(ctx, run.RunUUID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, stored.Status)
	assert.Equal(t, "done", stored.Stage)
	assert.Equal(t, 7, stored.ItemsCommitted)
	assert.Nil(t, stored.ErrorMessage)
	require.NotNil(t, stored.FinishedAt)

	failed, err := pool.CreateImportRun(ctx, "", "fetching", started.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "manual", failed.TriggeredBy)
	require.NoError(t, pool.FailImportRun(ctx, failed.RunID, "committing", RunCounts{Fetched: 5}, errors.New("disk full"), started.Add(2*time.Hour)))

	runs, err := pool.ListImportRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, failed.RunUUID, runs[0].RunUUID)
	assert.Equal(t, RunStatusFailed, runs[0].Status)
	assert.Equal(t, "committing", runs[0].Stage)
	require.NotNil(t, runs[0].ErrorMessage)
	assert.Equal(t, "disk full", *runs[0].ErrorMessage)
}

func TestFailImportRun_TruncatesMultiByteCauseOnRuneBoundary(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)
	ctx := context.Background()
	run, err := pool.CreateImportRun(ctx, "api", "fetching", time.Now())
	require.NoError(t, err)

	cause := errors.New(strings.Repeat("a", maxRunErrorLength-1) + strings.Repeat("č", 20) + "\xc4")
	require.NoError(t, pool.FailImportRun(ctx, run.RunID, "fetching", RunCounts{}, cause, time.Now()))

	stored, err := pool.GetImportRunByUUID(ctx, run.RunUUID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.True(t, utf8.ValidString(*stored.ErrorMessage))
	assert.Equal(t, maxRunErrorLength, utf8.RuneCountInString(*stored.ErrorMessage))
	assert.True(t, strings.HasSuffix(*stored.ErrorMessage, "ač"))
}

func TestTruncateMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "disk full", truncateMessage("  disk full \n", 100))
	assert.Equal(t, "čaš", truncateMessage("čaša", 3))
	assert.True(t, utf8.ValidString(truncateMessage("broken \xff\xfe", 100)))
}

func TestGetImportRunByUUID_NotFound(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)
	_, err := pool.GetImportRunByUUID(context.Background(), "00000000-0000-0000-0000-000000000000")
	assert.True(t, IsNotFound(err), "err=%v", err)
}

func TestFinishImportRun_UnknownRun(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)
	err := pool.CompleteImportRun(context.Background(), 999, "done", RunCounts{}, time.Now())
	assert.True(t, IsNotFound(err), "err=%v", err)
}

func TestSplitStatements(t *testing.T) {
	t.Parallel()

	got := splitStatements("CREATE INDEX a ON b (c);\n\n  ;CREATE INDEX d ON e (f);\n")
	assert.Equal(t, []string{"CREATE INDEX a ON b (c)", "CREATE INDEX d ON e (f)"}, got)
}
