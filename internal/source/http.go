package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"horse.fit/bookimport/internal/catalog"
)

const (
	DefaultHTTPTimeout    = 2 * time.Minute
	DefaultHTTPMaxElapsed = 5 * time.Minute
	defaultRetryInitial   = 500 * time.Millisecond
	maxFeedBodyBytes      = 256 << 20
)

type HTTPOptions struct {
	Endpoint     string
	Timeout      time.Duration
	MaxElapsed   time.Duration
	RetryInitial time.Duration
	Client       *http.Client
}

// HTTPClient fetches candidates from a JSON book feed. Transport errors and 5xx responses
// are retried with exponential backoff before the call reports ErrUnavailable.
type HTTPClient struct {
	endpoint     *url.URL
	client       *http.Client
	maxElapsed   time.Duration
	retryInitial time.Duration
	logger       zerolog.Logger
}

func NewHTTPClient(opts HTTPOptions, logger zerolog.Logger) (*HTTPClient, error) {
	endpoint, err := url.ParseRequestURI(strings.TrimSpace(opts.Endpoint))
	if err != nil {
		return nil, fmt.Errorf("parse source endpoint: %w", err)
	}
	if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
		return nil, fmt.Errorf("source endpoint must be http or https, got %q", endpoint.Scheme)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	maxElapsed := opts.MaxElapsed
	if maxElapsed <= 0 {
		maxElapsed = DefaultHTTPMaxElapsed
	}

	retryInitial := opts.RetryInitial
	if retryInitial <= 0 {
		retryInitial = defaultRetryInitial
	}

	return &HTTPClient{
		endpoint:     endpoint,
		client:       client,
		maxElapsed:   maxElapsed,
		retryInitial: retryInitial,
		logger:       logger,
	}, nil
}

func (c *HTTPClient) Fetch(ctx context.Context, count int) ([]catalog.Candidate, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("http source is not initialized")
	}
	if count < 0 {
		return nil, fmt.Errorf("count must be >= 0, got %d", count)
	}

	var body []byte
	var rejected error
	attempt := 0
	operation := func() error {
		attempt++
		raw, err := c.fetchOnce(ctx, count)
		if errors.Is(err, ErrRejected) {
			rejected = err
			return backoff.Permanent(err)
		}
		if err != nil {
			c.logger.Warn().Err(err).Int("attempt", attempt).Msg("book source request failed")
			return err
		}
		body = raw
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(c.newBackoff(), ctx)); err != nil {
		if rejected != nil {
			return nil, rejected
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w after %d attempts: %v", ErrUnavailable, attempt, err)
	}

	payload, err := DecodeFeedPayload(body)
	if err != nil {
		return nil, fmt.Errorf("book source payload: %w", err)
	}

	books := candidatesFromPayload(payload, c.logger)
	if len(books) > count {
		c.logger.Warn().Int("requested", count).Int("returned", len(books)).Msg("book source returned more books than requested")
		books = books[:count]
	}
	return books, nil
}

func (c *HTTPClient) newBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInitial
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = c.maxElapsed
	return bo
}

func (c *HTTPClient) fetchOnce(ctx context.Context, count int) ([]byte, error) {
	reqURL := *c.endpoint
	query := reqURL.Query()
	query.Set("count", strconv.Itoa(count))
	reqURL.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrRejected, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request book source: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read book source response: %w", err)
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("book source returned status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

func candidatesFromPayload(payload *FeedPayload, logger zerolog.Logger) []catalog.Candidate {
	books := make([]catalog.Candidate, 0, len(payload.Books))
	dropped := 0
	for _, item := range payload.Books {
		title := ""
		if item.Title != nil {
			title = *item.Title
		}
		// Blank titles pass through; the import filter drops them without counting.
		if !item.Price.IsPositive() {
			dropped++
			continue
		}
		books = append(books, catalog.Candidate{Title: title, Price: item.Price})
	}
	if dropped > 0 {
		logger.Warn().Int("dropped", dropped).Msg("book source returned items with non-positive price")
	}
	return books
}

// truncate cuts value to at most limit runes. Invalid bytes from the response are replaced
// so the result is always valid UTF-8.
func truncate(value string, limit int) string {
	value = strings.ToValidUTF8(strings.TrimSpace(value), "\uFFFD")
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	return string([]rune(value)[:limit])
}
