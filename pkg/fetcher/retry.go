package fetcher

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jmylchreest/catalogcrawl/internal/logger"
	"github.com/jmylchreest/catalogcrawl/pkg/site"
)

// RetryPolicy controls how failed fetches are retried.
type RetryPolicy struct {
	MaxAttempts  int           // total attempts including the first
	InitialDelay time.Duration // wait before the second attempt
	Multiplier   float64       // growth factor between waits
	MaxDelay     time.Duration // cap on a single wait
}

// DefaultRetryPolicy allows 3 attempts waiting 1s then 2s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		Multiplier:   2,
		MaxDelay:     30 * time.Second,
	}
}

// RetryingFetcher wraps a Fetcher with exponential backoff.
type RetryingFetcher struct {
	next    Fetcher
	policy  RetryPolicy
	onRetry func(url string, attempt int, err error, wait time.Duration)
}

// RetryOption configures a RetryingFetcher.
type RetryOption func(*RetryingFetcher)

// WithRetryHook registers a callback invoked before every retry wait.
func WithRetryHook(fn func(url string, attempt int, err error, wait time.Duration)) RetryOption {
	return func(r *RetryingFetcher) {
		r.onRetry = fn
	}
}

// NewRetrying wraps next with policy. Zero policy fields take defaults.
func NewRetrying(next Fetcher, policy RetryPolicy, opts ...RetryOption) *RetryingFetcher {
	defaults := DefaultRetryPolicy()
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = defaults.MaxAttempts
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = defaults.InitialDelay
	}
	if policy.Multiplier < 1 {
		policy.Multiplier = defaults.Multiplier
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = defaults.MaxDelay
	}

	r := &RetryingFetcher{next: next, policy: policy}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the effective retry policy.
func (r *RetryingFetcher) Policy() RetryPolicy {
	return r.policy
}

// Fetch calls the wrapped fetcher until it succeeds or attempts run out.
// Any failure after the last attempt is reported as a *FetchError.
func (r *RetryingFetcher) Fetch(ctx context.Context, url string, auth site.AuthContext) (*Page, error) {
	var (
		page     *Page
		attempts int
		lastErr  error
	)

	operation := func() error {
		attempts++
		p, err := r.next.Fetch(ctx, url, auth)
		if err != nil {
			lastErr = err
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return backoff.Permanent(err)
			}
			return err
		}
		page = p
		return nil
	}

	notify := func(err error, wait time.Duration) {
		logger.Warn("fetch failed, retrying",
			"url", url,
			"attempt", attempts,
			"max_attempts", r.policy.MaxAttempts,
			"wait", wait,
			"error", err)
		if r.onRetry != nil {
			r.onRetry(url, attempts, err, wait)
		}
	}

	err := backoff.RetryNotify(operation, r.schedule(ctx), notify)
	if err != nil {
		cause := lastErr
		if cause == nil {
			cause = err
		}
		return nil, &FetchError{URL: url, Attempts: attempts, Cause: cause}
	}

	page.Attempts = attempts
	return page, nil
}

func (r *RetryingFetcher) schedule(ctx context.Context) backoff.BackOff {
	exp := &backoff.ExponentialBackOff{
		InitialInterval:     r.policy.InitialDelay,
		RandomizationFactor: 0,
		Multiplier:          r.policy.Multiplier,
		MaxInterval:         r.policy.MaxDelay,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(r.policy.MaxAttempts-1)), ctx)
}
