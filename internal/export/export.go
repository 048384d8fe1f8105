// Package export renders query outcomes as downloadable CSV or JSON.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	dberrors "github.com/puhuaqiang/db-query-tool/internal/errors"
	"github.com/puhuaqiang/db-query-tool/internal/resultset"
)

// Format is an export file format.
type Format string

const (
	CSV  Format = "csv"
	JSON Format = "json"
)

// ParseFormat accepts "csv" or "json" in any case.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case CSV:
		return CSV, nil
	case JSON:
		return JSON, nil
	}
	return "", dberrors.Newf(dberrors.ErrTypeValidation, "export format must be csv or json, got %q", s)
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	if f == CSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json"
}

// Filename returns the download file name for f.
func (f Format) Filename() string {
	return "query_result." + string(f)
}

// Write renders outcome to w in format f.
func Write(w io.Writer, f Format, outcome *resultset.Outcome) error {
	switch f {
	case CSV:
		return WriteCSV(w, outcome)
	case JSON:
		return WriteJSON(w, outcome)
	}
	return dberrors.Newf(dberrors.ErrTypeValidation, "unsupported export format %q", f)
}

// WriteCSV writes a header row followed by one record per row. NULL becomes
// an empty field.
func WriteCSV(w io.Writer, outcome *resultset.Outcome) error {
	cw := csv.NewWriter(w)

	header := make([]string, len(outcome.Columns))
	for i, c := range outcome.Columns {
		header[i] = c.Name
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	record := make([]string, len(outcome.Columns))
	for _, row := range outcome.Rows {
		for i := range record {
			record[i] = ""
			if i < len(row) {
				record[i] = resultset.Text(row[i])
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteJSON writes an indented array with one object per row. Keys keep the
// column order and non-ASCII text is written as is.
func WriteJSON(w io.Writer, outcome *resultset.Outcome) error {
	var raw bytes.Buffer
	raw.WriteByte('[')
	for r, row := range outcome.Rows {
		if r > 0 {
			raw.WriteByte(',')
		}
		raw.WriteByte('{')
		for i, col := range outcome.Columns {
			if i > 0 {
				raw.WriteByte(',')
			}
			var value any
			if i < len(row) {
				value = row[i]
			}
			if err := encodeValue(&raw, col.Name); err != nil {
				return err
			}
			raw.WriteByte(':')
			if err := encodeValue(&raw, value); err != nil {
				return fmt.Errorf("failed to encode column %s: %w", col.Name, err)
			}
		}
		raw.WriteByte('}')
	}
	raw.WriteByte(']')

	var out bytes.Buffer
	if err := json.Indent(&out, raw.Bytes(), "", "  "); err != nil {
		return err
	}
	out.WriteByte('\n')
	_, err := out.WriteTo(w)
	return err
}

func encodeValue(buf *bytes.Buffer, v any) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	// Encode terminates every value with a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}
