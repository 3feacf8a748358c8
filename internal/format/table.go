package format

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/dthanhvu03/threadsauto-sub000/internal/colors"
	"github.com/dthanhvu03/threadsauto-sub000/internal/domain"
)

// TableConfig holds configuration for table formatting.
type TableConfig struct {
	// ShowHeaders determines whether to show column headers.
	ShowHeaders bool

	// HeaderColor is the color to use for headers. Empty disables color.
	HeaderColor string
}

// DefaultTableConfig returns a default table configuration.
func DefaultTableConfig() *TableConfig {
	return &TableConfig{
		ShowHeaders: true,
		HeaderColor: colors.Blue,
	}
}

// TableColumn represents a column in a table.
type TableColumn struct {
	// Name is the column name displayed in the header.
	Name string

	// Width is the column width in characters.
	Width int

	// Alignment is the text alignment (left, right, center).
	Alignment string

	// Extractor extracts the raw value from a job.
	Extractor func(domain.Job) string
}

// DefaultColumns are the columns of the job table.
func DefaultColumns() []TableColumn {
	return []TableColumn{
		{Name: "ID", Width: 12, Extractor: func(j domain.Job) string { return j.ID }},
		{Name: "ACCOUNT", Width: 12, Extractor: func(j domain.Job) string { return j.AccountID }},
		{Name: "PLATFORM", Width: 9, Extractor: func(j domain.Job) string { return j.Platform.String() }},
		{Name: "STATUS", Width: 9, Extractor: func(j domain.Job) string { return j.Status.String() }},
		{Name: "RETRIES", Width: 7, Alignment: "right", Extractor: func(j domain.Job) string { return strconv.Itoa(j.Retries) }},
		{Name: "CREATED", Width: 20, Extractor: func(j domain.Job) string { return j.CreatedAt.UTC().Format("2006-01-02T15:04:05Z") }},
		{Name: "TITLE", Width: 32, Extractor: func(j domain.Job) string { return j.Title }},
	}
}

// TableFormatter formats jobs in a table with headers and a page summary.
type TableFormatter struct {
	config  *TableConfig
	columns []TableColumn
}

// NewTableFormatter creates a new TableFormatter with default columns.
func NewTableFormatter() *TableFormatter {
	return &TableFormatter{config: DefaultTableConfig(), columns: DefaultColumns()}
}

// WithConfig replaces the table configuration.
func (f *TableFormatter) WithConfig(cfg *TableConfig) *TableFormatter {
	f.config = cfg
	return f
}

// WithColumns adds custom columns to the formatter.
func (f *TableFormatter) WithColumns(columns ...TableColumn) *TableFormatter {
	f.columns = append(f.columns, columns...)
	return f
}

// FormatResult formats jobs in table format.
func (f *TableFormatter) FormatResult(result Result, writer io.Writer) error {
	if len(result.Items) == 0 {
		_, err := fmt.Fprintln(writer, "No jobs found.")
		return err
	}

	if f.config.ShowHeaders {
		if err := f.writeLine(writer, f.header()); err != nil {
			return err
		}
		if err := f.writeLine(writer, f.separator()); err != nil {
			return err
		}
	}

	for _, j := range result.Items {
		if _, err := fmt.Fprintln(writer, f.row(j)); err != nil {
			return err
		}
	}
	return writeSummary(result, writer)
}

func (f *TableFormatter) writeLine(writer io.Writer, line string) error {
	if f.config.HeaderColor == "" {
		_, err := fmt.Fprintln(writer, line)
		return err
	}
	_, err := fmt.Fprintf(writer, "%s%s%s\n", f.config.HeaderColor, line, colors.Reset)
	return err
}

func (f *TableFormatter) header() string {
	cells := make([]string, len(f.columns))
	for i, col := range f.columns {
		cells[i] = formatString(col.Name, col.Width, "left")
	}
	return strings.TrimRight(strings.Join(cells, "  "), " ")
}

func (f *TableFormatter) separator() string {
	cells := make([]string, len(f.columns))
	for i, col := range f.columns {
		cells[i] = strings.Repeat("-", col.Width)
	}
	return strings.Join(cells, "  ")
}

func (f *TableFormatter) row(j domain.Job) string {
	cells := make([]string, len(f.columns))
	for i, col := range f.columns {
		cells[i] = formatString(truncate(col.Extractor(j), col.Width), col.Width, col.Alignment)
	}
	return strings.TrimRight(strings.Join(cells, "  "), " ")
}

// formatString pads s to width with the given alignment.
func formatString(s string, width int, alignment string) string {
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s
	}

	switch alignment {
	case "right":
		return strings.Repeat(" ", width-n) + s
	case "center":
		left := (width - n) / 2
		right := width - n - left
		return strings.Repeat(" ", left) + s + strings.Repeat(" ", right)
	default: // left
		return s + strings.Repeat(" ", width-n)
	}
}

// truncate shortens s to width runes, adding "..." if truncated.
func truncate(s string, width int) string {
	if width <= 0 || utf8.RuneCountInString(s) <= width {
		return s
	}
	r := []rune(s)
	if width < 3 {
		return string(r[:width])
	}
	return string(r[:width-3]) + "..."
}
