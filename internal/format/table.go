package format

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Alignment is a column alignment.
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignRight
)

// Table is a rounded-border text table. Short rows are padded.
type Table struct {
	Headers []string
	Rows    [][]string
	Align   []Alignment
}

// Render returns the table text, or "" when there are no headers.
func (t Table) Render() string {
	columns := len(t.Headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = t.Headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range t.Rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(t.Align) && t.Align[i] == AlignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

// Write writes the table followed by a newline, or "(none)" when it has no rows.
func (t Table) Write(w io.Writer) error {
	out := "(none)\n"
	if len(t.Rows) > 0 {
		out = t.Render() + "\n"
	}
	_, err := io.WriteString(w, out)
	return err
}
