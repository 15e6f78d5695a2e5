package output

import (
	"bufio"
	"io"

	"gopkg.in/yaml.v3"
)

// YAMLWriter writes YAML output.
type YAMLWriter struct {
	w       *bufio.Writer
	buf     buffer
	flushed bool
}

// NewYAMLWriter creates a YAML writer.
func NewYAMLWriter(w io.Writer, partitioned bool) *YAMLWriter {
	return &YAMLWriter{
		w:   bufio.NewWriter(w),
		buf: newBuffer(partitioned),
	}
}

// Write buffers a single record.
func (w *YAMLWriter) Write(key string, data any) error {
	w.buf.add(key, data)
	return nil
}

// Flush writes the buffered records as a YAML sequence (or mapping of
// sequences when partitioned). Only the first call writes.
func (w *YAMLWriter) Flush() error {
	if w.flushed {
		return w.w.Flush()
	}
	w.flushed = true

	encoder := yaml.NewEncoder(w.w)
	encoder.SetIndent(2)

	if err := encoder.Encode(w.buf.value()); err != nil {
		return err
	}
	if err := encoder.Close(); err != nil {
		return err
	}

	return w.w.Flush()
}

// Close flushes and closes the writer.
func (w *YAMLWriter) Close() error {
	return w.Flush()
}
