// Package source provides the clients that supply candidate books to the import pipeline.
package source

import "errors"

var (
	// ErrUnavailable marks failures to reach the source at all, after retries.
	ErrUnavailable = errors.New("book source unavailable")
	// ErrRejected marks requests the source answered with a client error. They are not retried.
	ErrRejected = errors.New("book source rejected request")
)
