package format

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Output encodings accepted by Encode.
const (
	OutputJSON = "json"
	OutputYAML = "yaml"
	OutputTOML = "toml"
	OutputText = "text"
)

// ErrUnknownOutput is returned for an unsupported output encoding.
var ErrUnknownOutput = errors.New("unknown output format")

// Outputs lists the supported encodings.
func Outputs() []string {
	return []string{OutputJSON, OutputYAML, OutputTOML, OutputText}
}

// ValidOutput reports whether output names a supported encoding.
func ValidOutput(output string) bool {
	switch strings.ToLower(output) {
	case OutputJSON, OutputYAML, OutputTOML, OutputText:
		return true
	}
	return false
}

// Encode writes records to w in the given encoding.
func Encode(w io.Writer, records []OutputRecord, output string) error {
	if records == nil {
		records = []OutputRecord{}
	}
	switch strings.ToLower(output) {
	case OutputJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	case OutputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(records); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case OutputTOML:
		// TOML has no top-level arrays.
		doc := struct {
			Records []OutputRecord `toml:"records"`
		}{records}
		return toml.NewEncoder(w).Encode(doc)
	case OutputText:
		return encodeText(w, records)
	}
	return fmt.Errorf("%w: %q", ErrUnknownOutput, output)
}

func encodeText(w io.Writer, records []OutputRecord) error {
	for i, r := range records {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		header := fmt.Sprintf("== %s (%d bytes, %s) ==\n", r.Path, r.Size, r.LastModified.Format(time.RFC3339))
		if _, err := io.WriteString(w, header+r.Content+"\n"); err != nil {
			return err
		}
	}
	return nil
}
