package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"sigs.k8s.io/yaml"
)

// Supported output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// Options controls how a listing is rendered.
type Options struct {
	// Format is table, json or yaml. Empty means table.
	Format string

	// NoHeaders omits the table header row.
	NoHeaders bool

	// NoColor disables colors even on a terminal.
	NoColor bool

	// Wide adds the secondary item values to tables.
	Wide bool
}

// ValidateFormat checks that format is one of the supported formats.
func ValidateFormat(format string) error {
	switch strings.ToLower(format) {
	case "", FormatTable, FormatJSON, FormatYAML:
		return nil
	}
	return fmt.Errorf("unsupported output format: %s (supported: %s, %s, %s)", format, FormatTable, FormatJSON, FormatYAML)
}

// writeStructured writes v as indented JSON or as YAML. It reports false for
// the table format.
func writeStructured(w io.Writer, format string, v any) (bool, error) {
	switch strings.ToLower(format) {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case FormatYAML:
		data, err := yaml.Marshal(v)
		if err != nil {
			return true, fmt.Errorf("failed to marshal YAML: %w", err)
		}
		_, err = w.Write(data)
		return true, err
	case "", FormatTable:
		return false, nil
	}
	return true, ValidateFormat(format)
}
