package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"horse.fit/bookimport/internal/catalog"
)

// DefaultChunkSize is the number of books written per transaction.
const DefaultChunkSize = 2000

// BookWriter persists one chunk atomically and reports the rows written.
type BookWriter interface {
	InsertBooks(ctx context.Context, books []catalog.Candidate) (int, error)
}

type CommitResult struct {
	Chunks    int
	Committed int
}

// Committer writes accepted books in consecutive chunks. A failed chunk stops the commit;
// chunks written before it stay written.
type Committer struct {
	store     BookWriter
	chunkSize int
	logger    zerolog.Logger
}

func NewCommitter(store BookWriter, chunkSize int, logger zerolog.Logger) (*Committer, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: book writer is required", ErrInvalidOptions)
	}
	if chunkSize < 1 {
		return nil, fmt.Errorf("%w: chunk size must be >= 1, got %d", ErrInvalidOptions, chunkSize)
	}
	return &Committer{
		store:     store,
		chunkSize: chunkSize,
		logger:    logger,
	}, nil
}

func (c *Committer) Commit(ctx context.Context, books []catalog.Candidate) (CommitResult, error) {
	var result CommitResult
	if len(books) == 0 {
		return result, nil
	}

	total := (len(books) + c.chunkSize - 1) / c.chunkSize
	for start := 0; start < len(books); start += c.chunkSize {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		end := min(start+c.chunkSize, len(books))
		written, err := c.store.InsertBooks(ctx, books[start:end])
		if err != nil {
			return result, fmt.Errorf("commit chunk %d/%d: %w", result.Chunks+1, total, err)
		}
		result.Chunks++
		result.Committed += written

		c.logger.Debug().
			Int("chunk", result.Chunks).
			Int("chunks_total", total).
			Int("rows", written).
			Msg("imported chunk")
	}
	return result, nil
}
