package output

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/jmylchreest/catalogcrawl/internal/logger"
)

// Sink is the terminal stage of a crawl. Accept may be called from many
// goroutines; Finalize and Abort are called once when the run ends.
type Sink interface {
	Accept(siteName string, rec map[string]any) error
	Finalize() error
	Abort() error
}

// ErrFinalized is returned by a sink that has already been finalized or
// aborted.
var ErrFinalized = errors.New("sink already finalized")

// SinkOption configures a sink.
type SinkOption func(*sinkConfig)

type sinkConfig struct {
	partition Partition
	writer    []WriterOption
}

// WithPartition groups records by p.
func WithPartition(p Partition) SinkOption {
	return func(c *sinkConfig) {
		c.partition = p
	}
}

// WithWriterOptions passes options through to the underlying Writer.
func WithWriterOptions(opts ...WriterOption) SinkOption {
	return func(c *sinkConfig) {
		c.writer = append(c.writer, opts...)
	}
}

func newSinkConfig(opts []SinkOption) *sinkConfig {
	cfg := &sinkConfig{partition: PartitionNone}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func (c *sinkConfig) writerOptions() []WriterOption {
	return append([]WriterOption{WithPartitioned(c.partition.Enabled())}, c.writer...)
}

// Open creates the sink for a destination. An empty path or "-" writes to
// stdout without crash safety.
func Open(path string, format Format, opts ...SinkOption) (Sink, error) {
	if format == FormatSQLite {
		return NewSQLiteSink(path, opts...)
	}
	if path == "" || path == "-" {
		return NewStreamSink(os.Stdout, format, opts...)
	}
	return NewFileSink(path, format, opts...)
}

// FileSink writes into a temporary file next to the destination and renames
// it over the destination in Finalize. Until then the destination is either
// absent or holds the previous complete artifact.
type FileSink struct {
	mu        sync.Mutex
	path      string
	tmp       *os.File
	writer    Writer
	partition Partition
	done      bool
}

// NewFileSink creates a crash-safe file sink.
func NewFileSink(path string, format Format, opts ...SinkOption) (*FileSink, error) {
	cfg := newSinkConfig(opts)

	tmp, err := createTemp(path)
	if err != nil {
		return nil, err
	}

	w, err := NewWriter(tmp, format, cfg.writerOptions()...)
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return nil, err
	}

	logger.Debug("file sink opened", "path", path, "temp", tmp.Name(), "format", format, "partition", cfg.partition)
	return &FileSink{
		path:      path,
		tmp:       tmp,
		writer:    w,
		partition: cfg.partition,
	}, nil
}

// Accept hands one record to the writer.
func (s *FileSink) Accept(siteName string, rec map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return ErrFinalized
	}
	return s.writer.Write(s.partition.Key(siteName, rec), rec)
}

// Finalize serialises buffered records, syncs the temporary file and
// atomically replaces the destination.
func (s *FileSink) Finalize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return ErrFinalized
	}
	s.done = true

	tmpName := s.tmp.Name()
	fail := func(err error) error {
		_ = s.tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}

	if err := s.writer.Close(); err != nil {
		return fail(fmt.Errorf("failed to write output: %w", err))
	}
	if err := s.tmp.Sync(); err != nil {
		return fail(fmt.Errorf("failed to sync output: %w", err))
	}
	if err := s.tmp.Chmod(0o644); err != nil {
		return fail(fmt.Errorf("failed to set output permissions: %w", err))
	}
	if err := s.tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close output: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to move output into place: %w", err)
	}

	logger.Debug("file sink finalized", "path", s.path)
	return nil
}

// Abort discards the temporary file, leaving any previous artifact intact.
func (s *FileSink) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil
	}
	s.done = true
	_ = s.tmp.Close()
	return os.Remove(s.tmp.Name())
}

// StreamSink writes straight to an io.Writer such as stdout.
type StreamSink struct {
	mu        sync.Mutex
	writer    Writer
	partition Partition
	done      bool
}

// NewStreamSink creates a sink over w.
func NewStreamSink(w io.Writer, format Format, opts ...SinkOption) (*StreamSink, error) {
	cfg := newSinkConfig(opts)
	writer, err := NewWriter(w, format, cfg.writerOptions()...)
	if err != nil {
		return nil, err
	}
	return &StreamSink{writer: writer, partition: cfg.partition}, nil
}

// Accept hands one record to the writer.
func (s *StreamSink) Accept(siteName string, rec map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return ErrFinalized
	}
	return s.writer.Write(s.partition.Key(siteName, rec), rec)
}

// Finalize flushes the writer.
func (s *StreamSink) Finalize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return ErrFinalized
	}
	s.done = true
	return s.writer.Close()
}

// Abort stops accepting records. Buffered formats write nothing.
func (s *StreamSink) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
	return nil
}

// createTemp creates a hidden temporary file in the destination directory so
// the final rename never crosses filesystems.
func createTemp(path string) (*os.File, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary output: %w", err)
	}
	return tmp, nil
}
