package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func TestMock_GeneratesNumberedBooks(t *testing.T) {
	t.Parallel()

	books, err := NewMock().Fetch(context.Background(), 12)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(books) != 12 {
		t.Fatalf("expected 12 books, got %d", len(books))
	}
	if books[0].Title != "Book 0" || !books[0].Price.Equal(decimal.RequireFromString("9.99")) {
		t.Fatalf("unexpected first book: %+v", books[0])
	}
	if books[11].Title != "Book 11" || !books[11].Price.Equal(decimal.RequireFromString("10.99")) {
		t.Fatalf("unexpected last book: %+v", books[11])
	}
}

func TestMock_HonorsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMock().Fetch(ctx, 5); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func newTestHTTPClient(t *testing.T, endpoint string) *HTTPClient {
	t.Helper()

	client, err := NewHTTPClient(HTTPOptions{
		Endpoint:     endpoint,
		Timeout:      2 * time.Second,
		MaxElapsed:   10 * time.Second,
		RetryInitial: 10 * time.Millisecond,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new http client: %v", err)
	}
	return client
}

func TestHTTPClient_FetchDecodesFeed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("count"); got != "3" {
			t.Errorf("unexpected count query: %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"books":[{"title":" Emma ","price":"7.50"},{"title":null,"price":3},{"title":"Free","price":0}]}`)
	}))
	defer srv.Close()

	books, err := newTestHTTPClient(t, srv.URL+"/feed").Fetch(context.Background(), 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(books) != 2 {
		t.Fatalf("expected non-positive price to be dropped, got %d books", len(books))
	}
	if books[0].Title != " Emma " {
		t.Fatalf("source must not trim titles, got %q", books[0].Title)
	}
	if books[1].Title != "" {
		t.Fatalf("expected null title to become blank, got %q", books[1].Title)
	}
}

func TestHTTPClient_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"books":[{"title":"Dune","price":12}]}`)
	}))
	defer srv.Close()

	books, err := newTestHTTPClient(t, srv.URL).Fetch(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(books) != 1 || calls.Load() != 3 {
		t.Fatalf("expected success on third attempt, books=%d calls=%d", len(books), calls.Load())
	}
}

func TestHTTPClient_ClientErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad count", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestHTTPClient(t, srv.URL).Fetch(context.Background(), 1)
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if errors.Is(err, ErrUnavailable) {
		t.Fatalf("client errors must not be reported as unavailable")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
}

func TestHTTPClient_ClientErrorBodyStaysValidUTF8(t *testing.T) {
	t.Parallel()

	// The 200th byte of the body falls inside the two-byte "č".
	body := strings.Repeat("a", 199) + strings.Repeat("č", 50)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, body, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := newTestHTTPClient(t, srv.URL).Fetch(context.Background(), 1)
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if !utf8.ValidString(err.Error()) {
		t.Fatalf("error message is not valid UTF-8: %q", err.Error())
	}
	if !strings.HasSuffix(err.Error(), strings.Repeat("a", 199)+"č") {
		t.Fatalf("expected body cut after 200 runes, got %q", err.Error())
	}
}

func TestTruncate_CountsRunesAndRepairsBytes(t *testing.T) {
	t.Parallel()

	if got := truncate("  Anna Karenina  ", 50); got != "Anna Karenina" {
		t.Fatalf("unexpected short value: %q", got)
	}
	if got := truncate("Zločin i kazna", 4); got != "Zloč" {
		t.Fatalf("unexpected rune cut: %q", got)
	}
	if got := truncate("bad\xc4", 10); !utf8.ValidString(got) {
		t.Fatalf("invalid bytes must be replaced, got %q", got)
	}
}

func TestHTTPClient_CapsOversizedFeed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"books":[{"title":"Emma","price":1},{"title":"Dune","price":2},{"title":"Ulysses","price":3}]}`)
	}))
	defer srv.Close()

	books, err := newTestHTTPClient(t, srv.URL).Fetch(context.Background(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(books) != 2 || books[0].Title != "Emma" || books[1].Title != "Dune" {
		t.Fatalf("expected the first 2 books, got %+v", books)
	}
}

func TestHTTPClient_UnreachableIsUnavailable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := srv.URL
	srv.Close()

	client, err := NewHTTPClient(HTTPOptions{
		Endpoint:     endpoint,
		Timeout:      200 * time.Millisecond,
		MaxElapsed:   300 * time.Millisecond,
		RetryInitial: 10 * time.Millisecond,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new http client: %v", err)
	}

	_, err = client.Fetch(context.Background(), 1)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestHTTPClient_InvalidPayload(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"records":[]}`)
	}))
	defer srv.Close()

	if _, err := newTestHTTPClient(t, srv.URL).Fetch(context.Background(), 1); err == nil {
		t.Fatalf("expected schema violation to fail the fetch")
	}
}

func TestNewHTTPClient_RejectsBadEndpoint(t *testing.T) {
	t.Parallel()

	if _, err := NewHTTPClient(HTTPOptions{Endpoint: "ftp://example.com/feed"}, zerolog.Nop()); err == nil {
		t.Fatalf("expected ftp endpoint to be rejected")
	}
	if _, err := NewHTTPClient(HTTPOptions{Endpoint: "not a url"}, zerolog.Nop()); err == nil {
		t.Fatalf("expected malformed endpoint to be rejected")
	}
}
