package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/jmylchreest/catalogcrawl/internal/logger"
	"github.com/jmylchreest/catalogcrawl/internal/version"
	"github.com/jmylchreest/catalogcrawl/pkg/site"
)

// StaticConfig holds configuration for the static fetcher.
type StaticConfig struct {
	UserAgent   string
	Timeout     time.Duration
	MaxBodySize int // bytes, 0 = colly default
	Relay       *Relay
}

// DefaultStaticConfig returns sensible defaults.
func DefaultStaticConfig() StaticConfig {
	return StaticConfig{
		UserAgent:   version.UserAgent(),
		Timeout:     30 * time.Second,
		MaxBodySize: 10 * 1024 * 1024,
	}
}

// StaticFetcher performs a single GET per call using Colly. It does not
// retry; wrap it with NewRetrying.
type StaticFetcher struct {
	config StaticConfig
}

// NewStatic creates a new static fetcher.
func NewStatic(cfg StaticConfig) *StaticFetcher {
	defaults := DefaultStaticConfig()
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UserAgent
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = defaults.MaxBodySize
	}
	return &StaticFetcher{config: cfg}
}

// Fetch retrieves targetURL once, through the relay when one is configured.
func (f *StaticFetcher) Fetch(ctx context.Context, targetURL string, auth site.AuthContext) (*Page, error) {
	requestURL := f.config.Relay.Rewrite(targetURL)
	logger.Debug("static fetch starting", "url", targetURL, "relayed", f.config.Relay.Enabled())

	page := &Page{
		URL:       targetURL,
		FetchedAt: time.Now(),
	}

	// A fresh collector per request keeps cookie jars and visit history
	// from leaking between sites.
	c := colly.NewCollector(
		colly.UserAgent(f.config.UserAgent),
		colly.AllowURLRevisit(),
		colly.MaxBodySize(f.config.MaxBodySize),
		colly.StdlibContext(ctx),
	)
	c.SetRequestTimeout(f.config.Timeout)
	// Status codes are classified below rather than by colly.
	c.ParseHTTPErrorResponse = true

	c.OnRequest(func(r *colly.Request) {
		auth.Apply(*r.Headers)
	})

	c.OnResponse(func(r *colly.Response) {
		page.StatusCode = r.StatusCode
		page.ContentType = r.Headers.Get("Content-Type")
		page.Body = r.Body
		logger.Debug("static fetch response received",
			"url", targetURL,
			"status", r.StatusCode,
			"body_size", len(r.Body))
	})

	if err := c.Visit(requestURL); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if page.StatusCode != 0 && !isSuccess(page.StatusCode) {
			return nil, &StatusError{StatusCode: page.StatusCode}
		}
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	if !isSuccess(page.StatusCode) {
		return nil, &StatusError{StatusCode: page.StatusCode}
	}

	return page, nil
}

func isSuccess(code int) bool {
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}
