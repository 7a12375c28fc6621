// Package csvio serializes mapped rows into carrier-specific delimited
// text. Quoting follows the standard CSV rules regardless of delimiter:
// fields containing the delimiter, a double quote or a newline are wrapped
// in double quotes with internal quotes doubled.
package csvio

import (
	"encoding/csv"
	"fmt"
	"strings"
)

// TIPSA import files are semicolon-delimited.
const TIPSADelimiter = ';'

// Export renders a header line followed by one line per row, all joined by
// delim. Empty input still emits the header line with a trailing newline.
func Export(header []string, rows [][]string, delim rune) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	w.Comma = delim

	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("failed to write header: %w", err)
	}
	for i, row := range rows {
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to flush csv: %w", err)
	}
	return sb.String(), nil
}

// Parse reads delimited text back into records, the inverse of Export.
func Parse(text string, delim rune) ([][]string, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delim
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	return records, nil
}
