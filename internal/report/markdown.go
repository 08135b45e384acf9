package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// Align is a table column alignment.
type Align int

const (
	AlignLeft Align = iota
	AlignRight
)

// Table is a header row plus data rows.
type Table struct {
	Headers []string
	Align   []Align
	Rows    [][]string

	// Limit truncates the rows with a "+N more" marker. Zero keeps all.
	Limit int
}

// Add appends a row of cells formatted with %v.
func (t *Table) Add(cells ...any) {
	row := make([]string, len(cells))
	for i, c := range cells {
		switch v := c.(type) {
		case float64:
			row[i] = FormatFloat(v, 2)
		case string:
			row[i] = v
		default:
			row[i] = fmt.Sprint(v)
		}
	}
	t.Rows = append(t.Rows, row)
}

func (t *Table) visible() ([][]string, int) {
	if t.Limit > 0 && len(t.Rows) > t.Limit {
		return t.Rows[:t.Limit], len(t.Rows) - t.Limit
	}
	return t.Rows, 0
}

// Markdown renders a pipe table.
func (t *Table) Markdown() string {
	var b strings.Builder
	b.WriteString("|")
	for _, h := range t.Headers {
		fmt.Fprintf(&b, " %s |", escapeCell(h))
	}
	b.WriteString("\n|")
	for i := range t.Headers {
		if i < len(t.Align) && t.Align[i] == AlignRight {
			b.WriteString("------:|")
		} else {
			b.WriteString(":------|")
		}
	}
	b.WriteString("\n")
	rows, more := t.visible()
	for _, r := range rows {
		b.WriteString("|")
		for i := range t.Headers {
			cell := ""
			if i < len(r) {
				cell = r[i]
			}
			fmt.Fprintf(&b, " %s |", escapeCell(cell))
		}
		b.WriteString("\n")
	}
	if more > 0 {
		fmt.Fprintf(&b, "| … +%d more |%s\n", more, strings.Repeat(" |", len(t.Headers)-1))
	}
	return b.String()
}

// WriteText renders the table as aligned plain text columns.
func (t *Table) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.ToUpper(strings.Join(t.Headers, "\t")))
	rows, more := t.visible()
	for _, r := range rows {
		fmt.Fprintln(tw, strings.Join(r, "\t"))
	}
	if more > 0 {
		fmt.Fprintf(tw, "… +%d more\n", more)
	}
	return tw.Flush()
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}

// Field is one summary line.
type Field struct {
	Label string
	Value any
}

// Section is a titled block with optional text and table.
type Section struct {
	Title string
	Text  string
	Table *Table
}

// Document is a Markdown report: title, summary, sections, recommendations.
type Document struct {
	Title           string
	Summary         []Field
	Sections        []Section
	Recommendations []string
}

// Markdown renders the document.
func (d *Document) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n## Summary\n\n", d.Title)
	for _, f := range d.Summary {
		fmt.Fprintf(&b, "- **%s**: %s\n", f.Label, formatValue(f.Value))
	}
	for _, s := range d.Sections {
		fmt.Fprintf(&b, "\n## %s\n\n", s.Title)
		if s.Text != "" {
			b.WriteString(strings.TrimRight(s.Text, "\n"))
			b.WriteString("\n")
			if s.Table != nil {
				b.WriteString("\n")
			}
		}
		if s.Table != nil {
			if len(s.Table.Rows) == 0 {
				b.WriteString("_None._\n")
			} else {
				b.WriteString(s.Table.Markdown())
			}
		}
	}
	if len(d.Recommendations) > 0 {
		b.WriteString("\n## Recommendations\n\n")
		for i, r := range d.Recommendations {
			fmt.Fprintf(&b, "%d. %s\n", i+1, r)
		}
	}
	return b.String()
}

// WriteText renders the document as plain text for terminals.
func (d *Document) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "%s\n%s\n", d.Title, strings.Repeat("=", len(d.Title)))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, f := range d.Summary {
		fmt.Fprintf(tw, "%s:\t%s\n", f.Label, formatValue(f.Value))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, s := range d.Sections {
		fmt.Fprintf(w, "\n%s\n%s\n", s.Title, strings.Repeat("-", len(s.Title)))
		if s.Text != "" {
			fmt.Fprintln(w, strings.TrimRight(s.Text, "\n"))
		}
		if s.Table != nil {
			if err := s.Table.WriteText(w); err != nil {
				return err
			}
		}
	}
	if len(d.Recommendations) > 0 {
		fmt.Fprintln(w, "\nRecommendations")
		for i, r := range d.Recommendations {
			fmt.Fprintf(w, "  %d. %s\n", i+1, r)
		}
	}
	return nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case float64:
		return FormatFloat(x, 3)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
