// Package catalog provides the public API for crawling product catalogs
// described by site configurations.
package catalog

import (
	"log/slog"
	"time"

	"github.com/jmylchreest/catalogcrawl/internal/crawler"
	"github.com/jmylchreest/catalogcrawl/internal/version"
	"github.com/jmylchreest/catalogcrawl/pkg/fetcher"
)

// Config holds all crawl configuration.
type Config struct {
	// Fetching
	UserAgent   string
	Timeout     time.Duration
	MaxBodySize int
	Relay       *fetcher.Relay
	Retry       fetcher.RetryPolicy

	// Scheduling
	Workers int
	Walkers int

	// Extraction
	StrictNumeric bool

	// Logger receives all crawl logging when set.
	Logger *slog.Logger

	// Fetcher replaces the default colly fetcher. It is still wrapped with
	// the retry policy.
	Fetcher fetcher.Fetcher
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	sched := crawler.DefaultConfig()
	return Config{
		UserAgent:   version.UserAgent(),
		Timeout:     30 * time.Second,
		MaxBodySize: 10 * 1024 * 1024,
		Retry:       fetcher.DefaultRetryPolicy(),
		Workers:     sched.Workers,
		Walkers:     sched.Walkers,
	}
}

// Option configures a Crawler.
type Option func(*Config)

// WithUserAgent sets the HTTP user agent. Site headers can override it.
func WithUserAgent(ua string) Option {
	return func(c *Config) {
		c.UserAgent = ua
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithMaxBodySize caps response bodies in bytes.
func WithMaxBodySize(n int) Option {
	return func(c *Config) {
		c.MaxBodySize = n
	}
}

// WithRelay routes every request through a URL-rewriting relay.
// An empty base URL disables the relay.
func WithRelay(baseURL, apiKey string) Option {
	return func(c *Config) {
		if baseURL == "" {
			c.Relay = nil
			return
		}
		c.Relay = &fetcher.Relay{BaseURL: baseURL, APIKey: apiKey}
	}
}

// WithRetry sets the total attempts per URL and the first backoff delay.
func WithRetry(attempts int, initialDelay time.Duration) Option {
	return func(c *Config) {
		c.Retry.MaxAttempts = attempts
		c.Retry.InitialDelay = initialDelay
	}
}

// WithWorkers sets the number of concurrent item fetches.
func WithWorkers(n int) Option {
	return func(c *Config) {
		c.Workers = n
	}
}

// WithWalkers sets the number of categories walked concurrently.
func WithWalkers(n int) Option {
	return func(c *Config) {
		c.Walkers = n
	}
}

// WithStrictNumeric stores null for numeric fields that do not parse.
func WithStrictNumeric(strict bool) Option {
	return func(c *Config) {
		c.StrictNumeric = strict
	}
}

// WithLogger routes crawl logging to l, for applications that already own
// their logging.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithFetcher injects a custom fetcher.
func WithFetcher(f fetcher.Fetcher) Option {
	return func(c *Config) {
		c.Fetcher = f
	}
}
