package formatter

import (
	"encoding/json"
	"fmt"
	"io"
)

// JSONFormatter formats output as JSON.
type JSONFormatter struct{}

// NewJSONFormatter creates a new JSON formatter.
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

func (f *JSONFormatter) Name() string {
	return "json"
}

func (f *JSONFormatter) Description() string {
	return "JSON output format"
}

// FormatList writes {"kind", "count", "data"}.
func (f *JSONFormatter) FormatList(w io.Writer, l Listing, rows []map[string]any, opts FormatOptions) error {
	data := projectAll(rows, opts.Columns)
	return f.encode(w, map[string]any{
		"kind":  l.Kind,
		"count": len(data),
		"data":  data,
	}, opts.Compact)
}

// FormatRecord writes {"kind", "data"}; data is null for a missing row.
func (f *JSONFormatter) FormatRecord(w io.Writer, l Listing, row map[string]any, opts FormatOptions) error {
	var data any
	if row != nil {
		data = project(row, opts.Columns)
	}
	return f.encode(w, map[string]any{
		"kind": l.Kind,
		"data": data,
	}, opts.Compact)
}

func (f *JSONFormatter) FormatError(w io.Writer, err error) error {
	return f.encode(w, map[string]any{"error": err.Error()}, false)
}

func (f *JSONFormatter) encode(w io.Writer, data any, compact bool) error {
	encoder := json.NewEncoder(w)
	if !compact {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

func init() {
	if err := Register(NewJSONFormatter()); err != nil {
		fmt.Printf("failed to register json formatter: %v\n", err)
	}
}
