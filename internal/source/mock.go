package source

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"horse.fit/bookimport/internal/catalog"
)

var mockBasePrice = decimal.RequireFromString("9.99")

// Mock synthesizes a deterministic feed of "Book {i}" titles priced 9.99 plus i mod 10.
type Mock struct {
	// Offset shifts the generated numbering so consecutive runs can produce new titles.
	Offset int
}

func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) Fetch(ctx context.Context, count int) ([]catalog.Candidate, error) {
	if count < 0 {
		return nil, fmt.Errorf("count must be >= 0, got %d", count)
	}

	books := make([]catalog.Candidate, 0, count)
	for i := 0; i < count; i++ {
		// Generating 10^5 rows is quick, but still honor cancellation.
		if i%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		n := m.Offset + i
		books = append(books, catalog.Candidate{
			Title: fmt.Sprintf("Book %d", n),
			Price: mockBasePrice.Add(decimal.NewFromInt(int64(n % 10))),
		})
	}
	return books, nil
}
