package catalog

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/jmylchreest/catalogcrawl/internal/crawler"
	"github.com/jmylchreest/catalogcrawl/internal/extractor"
	"github.com/jmylchreest/catalogcrawl/internal/logger"
	"github.com/jmylchreest/catalogcrawl/internal/output"
	"github.com/jmylchreest/catalogcrawl/pkg/fetcher"
	"github.com/jmylchreest/catalogcrawl/pkg/site"
)

// Re-exported types and errors for consumers.
type (
	// Record is one extracted product (or product option).
	Record = extractor.Record
	// Summary reports the counters of a completed run.
	Summary = crawler.Summary
	// ExtractionError reports an item that produced no records.
	ExtractionError = extractor.ExtractionError
)

var (
	// ErrMalformedContent is returned for item bodies that cannot be parsed.
	ErrMalformedContent = extractor.ErrMalformedContent
	// ErrInvalidConfig is returned for site configurations that fail validation.
	ErrInvalidConfig = site.ErrInvalidConfig
)

// Version returns the module version of the catalogcrawl library.
// Returns "(devel)" when built from source without version info.
func Version() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		return info.Main.Version
	}
	return "(unknown)"
}

// Sink receives records. Implementations from OpenSink are crash-safe for
// file destinations.
type Sink interface {
	Accept(siteName string, rec map[string]any) error
	Finalize() error
	Abort() error
}

// OpenSink opens an output destination. format and partition may be empty:
// the format is then guessed from the path extension and records are not
// grouped. A path of "-" writes to stdout.
func OpenSink(path, format, partition string, pretty bool) (Sink, error) {
	f := output.FormatFromPath(path)
	if format != "" {
		var err error
		if f, err = output.ParseFormat(format); err != nil {
			return nil, err
		}
	}
	p, err := output.ParsePartition(partition)
	if err != nil {
		return nil, err
	}
	return output.Open(path, f,
		output.WithPartition(p),
		output.WithWriterOptions(output.WithPretty(pretty)))
}

// Crawler is the main entry point.
type Crawler struct {
	fetcher   fetcher.Fetcher
	extractor *extractor.Extractor
	config    Config
}

// New creates a new Crawler.
func New(opts ...Option) *Crawler {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.Logger != nil {
		logger.SetLogger(cfg.Logger)
	}

	// Use injected fetcher or create a default static one
	base := cfg.Fetcher
	if base == nil {
		base = fetcher.NewStatic(fetcher.StaticConfig{
			UserAgent:   cfg.UserAgent,
			Timeout:     cfg.Timeout,
			MaxBodySize: cfg.MaxBodySize,
			Relay:       cfg.Relay,
		})
	}

	retrying := fetcher.NewRetrying(base, cfg.Retry)
	policy := retrying.Policy()
	logger.Debug("crawler configured",
		"workers", cfg.Workers,
		"walkers", cfg.Walkers,
		"max_attempts", policy.MaxAttempts,
		"retry_delay", policy.InitialDelay,
		"relayed", cfg.Relay.Enabled())

	return &Crawler{
		fetcher:   retrying,
		extractor: extractor.New(extractor.WithStrictNumeric(cfg.StrictNumeric)),
		config:    cfg,
	}
}

// Run crawls every site and writes records to sink. The sink is finalized
// when the crawl ends, including after cancellation, so records from items
// that completed are kept. A finalization failure is returned as the run
// error; otherwise the error is ctx's error, if any.
func (c *Crawler) Run(ctx context.Context, sites []*site.Config, sink Sink) (Summary, error) {
	if len(sites) == 0 {
		_ = sink.Abort()
		return Summary{}, fmt.Errorf("%w: no sites to crawl", ErrInvalidConfig)
	}

	sched := crawler.New(c.fetcher, c.extractor, sink, crawler.Config{
		Workers: c.config.Workers,
		Walkers: c.config.Walkers,
	})

	summary, runErr := sched.Run(ctx, sites)

	if err := sink.Finalize(); err != nil {
		logger.Error("failed to finalize output", "error", err)
		_ = sink.Abort()
		return summary, fmt.Errorf("finalize output: %w", err)
	}

	return summary, runErr
}

// Extract fetches a single item page and returns its records.
func (c *Crawler) Extract(ctx context.Context, cfg *site.Config, url, category string) ([]Record, error) {
	page, err := c.fetcher.Fetch(ctx, url, cfg.Auth())
	if err != nil {
		return nil, err
	}
	return c.extractor.Extract(page.Body, cfg, url, category)
}
