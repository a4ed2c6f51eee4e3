package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"horse.fit/bookimport/internal/catalog"
	"horse.fit/bookimport/internal/cli"
)

type seedStore interface {
	FindTitles(ctx context.Context, titles []string) ([]string, error)
	InsertBooks(ctx context.Context, books []catalog.Candidate) (int, error)
}

func starterCatalog() []catalog.Candidate {
	return []catalog.Candidate{
		{Title: "1984", Price: decimal.RequireFromString("9.99")},
		{Title: "Pride and Prejudice", Price: decimal.RequireFromString("12.50")},
		{Title: "Crime and Punishment", Price: decimal.RequireFromString("14.99")},
	}
}

func runSeed(args []string) int {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Seed timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, logger, err := loadConfig(envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	pool, err := connectPool(cfg, *timeout)
	if err != nil {
		logger.Error().Err(err).Msg("seed failed to connect to database")
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	inserted, err := seedCatalog(ctx, pool)
	if err != nil {
		logger.Error().Err(err).Msg("seed failed")
		fmt.Fprintf(os.Stderr, "Seed failed: %v\n", err)
		return 1
	}

	logger.Info().Int("inserted", inserted).Msg("seed completed")
	fmt.Printf("seed inserted=%d\n", inserted)
	return 0
}

// seedCatalog inserts the starter books whose titles are not stored yet.
func seedCatalog(ctx context.Context, store seedStore) (int, error) {
	books := starterCatalog()
	existing, err := store.FindTitles(ctx, catalog.IncomingTitles(books))
	if err != nil {
		return 0, fmt.Errorf("lookup starter titles: %w", err)
	}

	stored := make(map[string]struct{}, len(existing))
	for _, title := range existing {
		stored[strings.ToLower(title)] = struct{}{}
	}

	missing := make([]catalog.Candidate, 0, len(books))
	for _, book := range books {
		if _, ok := stored[strings.ToLower(book.Title)]; ok {
			continue
		}
		missing = append(missing, book)
	}
	if len(missing) == 0 {
		return 0, nil
	}

	inserted, err := store.InsertBooks(ctx, missing)
	if err != nil {
		return 0, fmt.Errorf("insert starter books: %w", err)
	}
	return inserted, nil
}
