// Package csvout renders decoded codes as CSV in the common spreadsheet dialect
// (RFC 4180 quoting, CRLF record terminators).
package csvout

import (
	"bytes"
	"encoding/csv"
	"io"
	"strconv"
)

// Schema selects the columns written for each row.
type Schema int

const (
	// SchemaPageContent writes a "Page,Content" header and one "<page>,<content>" row per code.
	SchemaPageContent Schema = iota
	// SchemaContentOnly writes one "<content>" row per code and no header.
	SchemaContentOnly
)

// Row is one decoded code and the 1-based page it came from.
type Row struct {
	Page    int
	Content string
}

// Writer handles CSV writing.
type Writer struct {
	writer *csv.Writer
	schema Schema
}

// NewWriter creates a new CSV writer.
func NewWriter(w io.Writer, schema Schema) *Writer {
	cw := csv.NewWriter(w)
	cw.UseCRLF = true
	return &Writer{writer: cw, schema: schema}
}

// WriteHeader writes the header row when the schema has one.
func (w *Writer) WriteHeader() error {
	if w.schema == SchemaContentOnly {
		return nil
	}
	return w.writer.Write([]string{"Page", "Content"})
}

// WriteRow writes a single CSV row.
func (w *Writer) WriteRow(r Row) error {
	if w.schema == SchemaContentOnly {
		return w.writer.Write([]string{r.Content})
	}
	return w.writer.Write([]string{strconv.Itoa(r.Page), r.Content})
}

// WriteAll writes the header and all rows, then flushes.
func (w *Writer) WriteAll(rows []Row) error {
	if err := w.WriteHeader(); err != nil {
		return err
	}
	for _, r := range rows {
		if err := w.WriteRow(r); err != nil {
			return err
		}
	}
	return w.Flush()
}

// Flush flushes any buffered data to the underlying writer.
func (w *Writer) Flush() error {
	w.writer.Flush()
	return w.writer.Error()
}

// Encode renders a complete document in memory.
func Encode(rows []Row, schema Schema) ([]byte, error) {
	var buf bytes.Buffer
	if err := NewWriter(&buf, schema).WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
