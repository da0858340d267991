package formatter

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// YAMLFormatter formats output as YAML.
type YAMLFormatter struct{}

// NewYAMLFormatter creates a new YAML formatter.
func NewYAMLFormatter() *YAMLFormatter {
	return &YAMLFormatter{}
}

func (f *YAMLFormatter) Name() string {
	return "yaml"
}

func (f *YAMLFormatter) Description() string {
	return "YAML output format"
}

func (f *YAMLFormatter) FormatList(w io.Writer, l Listing, rows []map[string]any, opts FormatOptions) error {
	data := projectAll(rows, opts.Columns)
	return f.encode(w, map[string]any{
		"kind":  l.Kind,
		"count": len(data),
		"data":  data,
	})
}

func (f *YAMLFormatter) FormatRecord(w io.Writer, l Listing, row map[string]any, opts FormatOptions) error {
	var data any
	if row != nil {
		data = project(row, opts.Columns)
	}
	return f.encode(w, map[string]any{
		"kind": l.Kind,
		"data": data,
	})
}

func (f *YAMLFormatter) FormatError(w io.Writer, err error) error {
	return f.encode(w, map[string]any{"error": err.Error()})
}

func (f *YAMLFormatter) encode(w io.Writer, data any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(data); err != nil {
		return err
	}
	return encoder.Close()
}

func init() {
	if err := Register(NewYAMLFormatter()); err != nil {
		fmt.Printf("failed to register yaml formatter: %v\n", err)
	}
}
