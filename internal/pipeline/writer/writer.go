// Package writer implements the record-sink side of the pipeline: the
// "writer factory" that spec.md §4.1 delegates per-element rendering
// to. The core only depends on the RecordWriter/Factory interfaces;
// the concrete formats below (line, JSONL, CSV) are default
// implementations, not a mandated format.
package writer

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
)

// RecordWriter is a line-oriented sink for a single stage's results.
// The core requires that single-string results produce one line each,
// verbatim, in production order (spec.md §6).
type RecordWriter interface {
	WriteRecord(value any) error
	Close() error
}

// Factory creates a RecordWriter for a declared element type and opens
// the backing file at path (creating or truncating it).
type Factory interface {
	NewWriter(elementType string, path string) (RecordWriter, error)
	// Ext returns the file extension (without a leading dot) this
	// factory uses, for building `<stageName>_result_<timestamp>.<ext>`.
	Ext() string
}

// lineWriter renders each record as its string form followed by a
// newline. For a string value this is the value verbatim.
type lineWriter struct {
	f *os.File
}

// NewLineFactory returns a Factory producing one plain-text line per
// record.
func NewLineFactory() Factory { return lineFactory{} }

type lineFactory struct{}

func (lineFactory) Ext() string { return "txt" }

func (lineFactory) NewWriter(_ string, path string) (RecordWriter, error) {
	f, err := os.Create(path) //nolint:gosec // path is built by the assembler from a sandboxed output dir
	if err != nil {
		return nil, fmt.Errorf("creating result file: %w", err)
	}
	return &lineWriter{f: f}, nil
}

func (w *lineWriter) WriteRecord(value any) error {
	line, ok := value.(string)
	if !ok {
		line = fmt.Sprintf("%v", value)
	}
	_, err := fmt.Fprintf(w.f, "%s\n", line)
	return err
}

func (w *lineWriter) Close() error {
	return w.f.Close()
}

// jsonLineWriter renders each record as one JSON object per line.
type jsonLineWriter struct {
	f   *os.File
	enc *json.Encoder
}

// NewJSONFactory returns a Factory producing JSON Lines (one JSON value
// per record, newline-delimited).
func NewJSONFactory() Factory { return jsonFactory{} }

type jsonFactory struct{}

func (jsonFactory) Ext() string { return "jsonl" }

func (jsonFactory) NewWriter(_ string, path string) (RecordWriter, error) {
	f, err := os.Create(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("creating result file: %w", err)
	}
	return &jsonLineWriter{f: f, enc: json.NewEncoder(f)}, nil
}

func (w *jsonLineWriter) WriteRecord(value any) error {
	return w.enc.Encode(value)
}

func (w *jsonLineWriter) Close() error {
	return w.f.Close()
}

// csvWriter renders each record as one CSV row. A []string value is
// written as-is; any other value is written as a single-column row via
// its string form.
type csvWriter struct {
	f *os.File
	w *csv.Writer
}

// NewCSVFactory returns a Factory producing comma-separated rows.
func NewCSVFactory() Factory { return csvFactory{} }

type csvFactory struct{}

func (csvFactory) Ext() string { return "csv" }

func (csvFactory) NewWriter(_ string, path string) (RecordWriter, error) {
	f, err := os.Create(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("creating result file: %w", err)
	}
	return &csvWriter{f: f, w: csv.NewWriter(f)}, nil
}

func (w *csvWriter) WriteRecord(value any) error {
	var row []string
	switch v := value.(type) {
	case []string:
		row = v
	case fmt.Stringer:
		row = []string{v.String()}
	default:
		row = []string{fmt.Sprintf("%v", v)}
	}
	if err := w.w.Write(row); err != nil {
		return err
	}
	w.w.Flush()
	return w.w.Error()
}

func (w *csvWriter) Close() error {
	w.w.Flush()
	if err := w.w.Error(); err != nil {
		_ = w.f.Close()
		return err
	}
	return w.f.Close()
}

// ByFormat returns the built-in Factory named by format ("line",
// "json", or "csv"); unknown values fall back to the line factory.
func ByFormat(format string) Factory {
	switch format {
	case "json":
		return NewJSONFactory()
	case "csv":
		return NewCSVFactory()
	default:
		return NewLineFactory()
	}
}
