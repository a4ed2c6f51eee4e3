package source

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"horse.fit/bookimport/internal/catalog"
)

// File reads candidates from a feed document on disk, in the same format the HTTP feed serves.
// It returns at most count books, in file order.
type File struct {
	path   string
	logger zerolog.Logger
}

func NewFile(path string, logger zerolog.Logger) (*File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("source file path is required")
	}
	return &File{path: trimmed, logger: logger}, nil
}

func (f *File) Fetch(ctx context.Context, count int) ([]catalog.Candidate, error) {
	if count < 0 {
		return nil, fmt.Errorf("count must be >= 0, got %d", count)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrUnavailable, f.path, err)
	}
	payload, err := DecodeFeedPayload(raw)
	if err != nil {
		return nil, fmt.Errorf("book feed %s: %w", f.path, err)
	}

	books := candidatesFromPayload(payload, f.logger)
	if len(books) > count {
		books = books[:count]
	}
	return books, nil
}
