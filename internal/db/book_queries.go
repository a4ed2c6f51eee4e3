package db

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"horse.fit/bookimport/internal/catalog"
)

// titleLookupBatch bounds the IN list of one lookup query.
const titleLookupBatch = 1000

// insertStatementRows bounds the rows of one INSERT statement inside a chunk transaction.
const insertStatementRows = 500

// FindTitles returns the stored titles matching any of titles, compared case-insensitively.
// Stored spellings are returned as-is, ordered by book id.
func (p *Pool) FindTitles(ctx context.Context, titles []string) ([]string, error) {
	if p == nil || p.gdb == nil {
		return nil, fmt.Errorf("database pool is not initialized")
	}

	keys := lowerDistinct(titles)
	if len(keys) == 0 {
		return nil, nil
	}

	existing := make([]string, 0)
	for start := 0; start < len(keys); start += titleLookupBatch {
		end := min(start+titleLookupBatch, len(keys))

		var batch []string
		err := p.gdb.WithContext(ctx).
			Model(&Book{}).
			Where("lower(title) IN ?", keys[start:end]).
			Order("book_id").
			Pluck("title", &batch).Error
		if err != nil {
			return nil, fmt.Errorf("query existing titles: %w", err)
		}
		existing = append(existing, batch...)
	}
	return existing, nil
}

// InsertBooks writes books in a single transaction and returns the number of rows written.
// Each call runs on a fresh session so no statement state carries over between calls.
func (p *Pool) InsertBooks(ctx context.Context, books []catalog.Candidate) (int, error) {
	if p == nil || p.gdb == nil {
		return 0, fmt.Errorf("database pool is not initialized")
	}
	if len(books) == 0 {
		return 0, nil
	}

	rows := make([]Book, 0, len(books))
	for _, book := range books {
		rows = append(rows, Book{
			Title: book.Title,
			Price: book.Price,
		})
	}

	session := p.gdb.Session(&gorm.Session{NewDB: true}).WithContext(ctx)
	err := session.Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&rows, insertStatementRows).Error
	})
	if err != nil {
		return 0, fmt.Errorf("insert books: %w", err)
	}
	return len(rows), nil
}

func (p *Pool) CountBooks(ctx context.Context) (int64, error) {
	if p == nil || p.gdb == nil {
		return 0, fmt.Errorf("database pool is not initialized")
	}
	var count int64
	if err := p.gdb.WithContext(ctx).Model(&Book{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count books: %w", err)
	}
	return count, nil
}

func lowerDistinct(values []string) []string {
	keys := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		key := strings.ToLower(strings.TrimSpace(value))
		if key == "" {
			continue
		}
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}
