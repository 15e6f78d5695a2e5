// Package fetcher retrieves pages over HTTP for the crawl pipeline.
// Implement the Fetcher interface to plug in a different transport; wrap any
// Fetcher with NewRetrying to get the standard retry/backoff policy.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmylchreest/catalogcrawl/pkg/site"
)

// Fetcher abstracts page retrieval.
type Fetcher interface {
	// Fetch issues a GET for url carrying the site's auth context.
	Fetch(ctx context.Context, url string, auth site.AuthContext) (*Page, error)
}

// Func adapts a plain function to the Fetcher interface.
type Func func(ctx context.Context, url string, auth site.AuthContext) (*Page, error)

// Fetch calls f.
func (f Func) Fetch(ctx context.Context, url string, auth site.AuthContext) (*Page, error) {
	return f(ctx, url, auth)
}

// Page is a successfully fetched response.
type Page struct {
	URL         string // requested target, never the relay URL
	StatusCode  int
	ContentType string
	Body        []byte
	FetchedAt   time.Time
	Attempts    int
}

// Error types for distinguishing failure reasons.
// Check with errors.Is(err, fetcher.ErrTransport).
var (
	// ErrTransport indicates a connection, TLS or timeout failure.
	ErrTransport = errors.New("transport error")
	// ErrStatus indicates a non-2xx response.
	ErrStatus = errors.New("unexpected status")
)

// StatusError carries the status code of a non-2xx response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// Is lets errors.Is(err, ErrStatus) match any StatusError.
func (e *StatusError) Is(target error) bool {
	return target == ErrStatus
}

// FetchError is the terminal failure for one URL after retries are exhausted.
type FetchError struct {
	URL      string
	Attempts int
	Cause    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Cause)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}
