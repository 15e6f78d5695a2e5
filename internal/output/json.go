package output

import (
	"bufio"
	"encoding/json"
	"io"
)

// JSONWriter buffers records and writes them as one JSON document.
type JSONWriter struct {
	w       *bufio.Writer
	pretty  bool
	indent  string
	buf     buffer
	flushed bool
}

// NewJSONWriter creates a JSON writer.
func NewJSONWriter(w io.Writer, pretty bool, indent string, partitioned bool) *JSONWriter {
	return &JSONWriter{
		w:      bufio.NewWriter(w),
		pretty: pretty,
		indent: indent,
		buf:    newBuffer(partitioned),
	}
}

// Write buffers a single record.
func (w *JSONWriter) Write(key string, data any) error {
	w.buf.add(key, data)
	return nil
}

// Flush writes the buffered records. The output is always an array (or a
// map of arrays when partitioned), even for zero or one record. Only the
// first call writes.
func (w *JSONWriter) Flush() error {
	if w.flushed {
		return w.w.Flush()
	}
	w.flushed = true

	var output []byte
	var err error
	if w.pretty {
		output, err = json.MarshalIndent(w.buf.value(), "", w.indent)
	} else {
		output, err = json.Marshal(w.buf.value())
	}
	if err != nil {
		return err
	}

	if _, err := w.w.Write(output); err != nil {
		return err
	}
	if _, err := w.w.WriteString("\n"); err != nil {
		return err
	}

	return w.w.Flush()
}

// Close flushes the writer.
func (w *JSONWriter) Close() error {
	return w.Flush()
}

// JSONLWriter writes newline-delimited JSON (JSONL).
type JSONLWriter struct {
	w *bufio.Writer
}

// NewJSONLWriter creates a JSONL writer.
func NewJSONLWriter(w io.Writer) *JSONLWriter {
	return &JSONLWriter{
		w: bufio.NewWriter(w),
	}
}

// Write writes a single record as a JSON line.
func (w *JSONLWriter) Write(_ string, data any) error {
	output, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := w.w.Write(output); err != nil {
		return err
	}
	if _, err := w.w.WriteString("\n"); err != nil {
		return err
	}

	return w.w.Flush()
}

// Flush flushes the buffer.
func (w *JSONLWriter) Flush() error {
	return w.w.Flush()
}

// Close flushes the writer.
func (w *JSONLWriter) Close() error {
	return w.Flush()
}
