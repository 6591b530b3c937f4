package cli

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

// writeResult prints v as indented JSON, or calls text for the text format.
func writeResult(w io.Writer, format string, v any, text func(io.Writer)) error {
	if format != "json" {
		text(w)
		return nil
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))

	return err
}
