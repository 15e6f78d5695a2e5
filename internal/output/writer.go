// Package output handles output formatting and writing.
package output

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Format represents output format types.
type Format string

const (
	FormatJSON   Format = "json"
	FormatJSONL  Format = "jsonl"
	FormatYAML   Format = "yaml"
	FormatSQLite Format = "sqlite"
)

// ErrPartitionUnsupported is returned when a streaming format is asked to
// group records.
var ErrPartitionUnsupported = errors.New("partitioning requires json, yaml or sqlite output")

// ParseFormat validates a format name.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case FormatJSON, FormatJSONL, FormatYAML, FormatSQLite:
		return f, nil
	case "yml":
		return FormatYAML, nil
	case "ndjson":
		return FormatJSONL, nil
	case "db", "sqlite3":
		return FormatSQLite, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", name)
	}
}

// FormatFromPath guesses a format from a file extension, defaulting to JSON.
func FormatFromPath(path string) Format {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if f, err := ParseFormat(ext); err == nil {
		return f
	}
	return FormatJSON
}

// Writer handles output serialization.
type Writer interface {
	// Write outputs a single record under a partition key. The key is
	// ignored by unpartitioned writers.
	Write(key string, data any) error

	// Flush ensures all data is written.
	Flush() error

	// Close releases resources.
	Close() error
}

// WriterOption configures a writer.
type WriterOption func(*writerConfig)

type writerConfig struct {
	pretty      bool
	indent      string
	partitioned bool
}

// WithPretty enables pretty-printing.
func WithPretty(enabled bool) WriterOption {
	return func(c *writerConfig) {
		c.pretty = enabled
	}
}

// WithIndent sets the indentation string.
func WithIndent(indent string) WriterOption {
	return func(c *writerConfig) {
		c.indent = indent
	}
}

// WithPartitioned makes buffered writers emit a map of arrays keyed by the
// partition key instead of a single array.
func WithPartitioned(enabled bool) WriterOption {
	return func(c *writerConfig) {
		c.partitioned = enabled
	}
}

// NewWriter creates a writer for the specified format.
func NewWriter(w io.Writer, format Format, opts ...WriterOption) (Writer, error) {
	cfg := &writerConfig{
		pretty: true,
		indent: "  ",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	switch format {
	case FormatJSON:
		return NewJSONWriter(w, cfg.pretty, cfg.indent, cfg.partitioned), nil
	case FormatJSONL:
		if cfg.partitioned {
			return nil, ErrPartitionUnsupported
		}
		return NewJSONLWriter(w), nil
	case FormatYAML:
		return NewYAMLWriter(w, cfg.partitioned), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// buffer collects records for formats that serialise once at the end.
type buffer struct {
	partitioned bool
	items       []any
	groups      map[string][]any
}

func newBuffer(partitioned bool) buffer {
	return buffer{
		partitioned: partitioned,
		items:       make([]any, 0),
		groups:      make(map[string][]any),
	}
}

func (b *buffer) add(key string, data any) {
	if b.partitioned {
		b.groups[key] = append(b.groups[key], data)
		return
	}
	b.items = append(b.items, data)
}

// value is what gets serialised: an array, or a map of arrays.
func (b *buffer) value() any {
	if b.partitioned {
		return b.groups
	}
	return b.items
}
