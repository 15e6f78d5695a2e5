// Package extractor turns fetched item pages into records using the
// selectors of a site configuration.
package extractor

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"math"
	"strconv"
	"strings"

	"github.com/jmylchreest/catalogcrawl/internal/logger"
	"github.com/jmylchreest/catalogcrawl/pkg/selector"
	"github.com/jmylchreest/catalogcrawl/pkg/site"
)

// Record maps field names to extracted values. Missing fields are nil,
// numeric fields hold float64, everything else holds string.
type Record = map[string]any

// ErrMalformedContent is returned for bodies that cannot be parsed as HTML.
var ErrMalformedContent = errors.New("malformed content")

// ExtractionError reports an item that could not produce records.
type ExtractionError struct {
	URL   string
	Field string // empty when the failure is not tied to one field
	Cause error
}

func (e *ExtractionError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("extract %s: field %q: %v", e.URL, e.Field, e.Cause)
	}
	return fmt.Sprintf("extract %s: %v", e.URL, e.Cause)
}

func (e *ExtractionError) Unwrap() error {
	return e.Cause
}

// ErrMissingRequired is the cause of an ExtractionError for a required
// field whose selector matched nothing.
var ErrMissingRequired = errors.New("required field not found")

// Config holds extractor settings.
type Config struct {
	// StrictNumeric stores nil instead of the raw text when a numeric
	// field does not parse.
	StrictNumeric bool
}

// Option configures the extractor.
type Option func(*Config)

// WithStrictNumeric controls the fallback for unparseable numeric fields.
func WithStrictNumeric(strict bool) Option {
	return func(c *Config) {
		c.StrictNumeric = strict
	}
}

// Extractor evaluates field selectors. It holds no per-item state and is
// safe for concurrent use.
type Extractor struct {
	config Config
}

// New creates a new Extractor.
func New(opts ...Option) *Extractor {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Extractor{config: cfg}
}

// Extract produces the records for one item page. Without an option group
// it returns exactly one record. With one it returns a record per option
// node, each starting from the page-level fields; zero option nodes yield
// zero records.
func (e *Extractor) Extract(body []byte, cfg *site.Config, pageURL, category string) (records []Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			records = nil
			err = &ExtractionError{URL: pageURL, Cause: fmt.Errorf("panic: %v", r)}
		}
	}()

	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("%w: %s: empty body", ErrMalformedContent, pageURL)
	}
	doc, err := selector.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedContent, pageURL, err)
	}
	root := doc.Root()

	base := Record{
		site.KeyProductURL: pageURL,
		site.KeyCategory:   category,
	}
	for _, f := range cfg.Fields() {
		base[f.Name] = e.value(cfg, f, root)
		if base[f.Name] == nil && cfg.IsRequired(f.Name) {
			return nil, &ExtractionError{URL: pageURL, Field: f.Name, Cause: ErrMissingRequired}
		}
	}

	group := cfg.OptionGroup()
	if group == nil {
		return []Record{base}, nil
	}

	options := group.All(root)
	records = make([]Record, 0, len(options))
	for i, opt := range options {
		rec := maps.Clone(base)
		complete := true
		for _, f := range cfg.OptionFields() {
			rec[f.Name] = e.value(cfg, f, opt)
			if rec[f.Name] == nil && cfg.IsRequired(f.Name) {
				complete = false
			}
		}
		if !complete {
			logger.Debug("skipping option without required fields", "url", pageURL, "option", i)
			continue
		}
		records = append(records, rec)
	}

	logger.Debug("extracted item", "url", pageURL, "options", len(options), "records", len(records))
	return records, nil
}

// value evaluates a field against ctx: nil on a miss, float64 for numeric
// fields that parse, the trimmed text otherwise.
func (e *Extractor) value(cfg *site.Config, f site.Field, ctx selector.Node) any {
	node, found := f.Query.First(ctx)
	if !found {
		return nil
	}
	text := node.Text()
	if !cfg.IsNumeric(f.Name) {
		return text
	}
	if n, ok := ParseNumber(text); ok {
		return n
	}
	if e.config.StrictNumeric {
		return nil
	}
	return text
}

var numberReplacer = strings.NewReplacer(
	"$", "", "£", "", "€", "", ",", "", " ", "", "\u00a0", "",
)

// ParseNumber reads a price-like string such as "$1,249.50". Non-finite
// values ("NaN", "Inf") are rejected since no output format carries them
// portably.
func ParseNumber(text string) (float64, bool) {
	cleaned := numberReplacer.Replace(strings.TrimSpace(text))
	if cleaned == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}
