// Package output renders command results for the terminal.
package output

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// TableWriter collects rows and prints them as aligned columns.
type TableWriter struct {
	writer    *tabwriter.Writer
	headers   []string
	rows      [][]string
	separator string
}

// NewTableTo creates a table writing to w.
func NewTableTo(w io.Writer) *TableWriter {
	return &TableWriter{
		writer:    tabwriter.NewWriter(w, 0, 0, 2, ' ', 0),
		separator: "-",
	}
}

// WithHeaders sets the column headers.
func (t *TableWriter) WithHeaders(headers ...string) *TableWriter {
	t.headers = headers
	return t
}

// AddRow adds one row. Missing trailing cells print empty.
func (t *TableWriter) AddRow(values ...string) *TableWriter {
	t.rows = append(t.rows, values)
	return t
}

// Render writes the table.
func (t *TableWriter) Render() error {
	if len(t.headers) > 0 {
		fmt.Fprintln(t.writer, strings.Join(t.headers, "\t"))
		separators := make([]string, len(t.headers))
		for i, h := range t.headers {
			separators[i] = strings.Repeat(t.separator, len(h))
		}
		fmt.Fprintln(t.writer, strings.Join(separators, "\t"))
	}
	for _, row := range t.rows {
		fmt.Fprintln(t.writer, strings.Join(row, "\t"))
	}
	return t.writer.Flush()
}
